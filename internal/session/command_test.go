package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		want Command
	}{
		{"checkout", Command{Kind: Checkout, Text: "checkout"}},
		{"/checkout", Command{Kind: Checkout, Text: "/checkout"}},
		{"  Cart ", Command{Kind: ViewCart, Text: "Cart"}},
		{"CANCEL", Command{Kind: Cancel, Text: "CANCEL"}},
		{"Scarf:15000", Command{Kind: CartAdd, Name: "Scarf", Price: 15000, Text: "Scarf:15000"}},
		{"Wool Scarf : 15000", Command{Kind: CartAdd, Name: "Wool Scarf", Price: 15000, Text: "Wool Scarf : 15000"}},
		{"Scarf:", Command{Kind: Plain, Text: "Scarf:"}},
		{":15000", Command{Kind: Plain, Text: ":15000"}},
		{"Scarf:-1", Command{Kind: Plain, Text: "Scarf:-1"}},
		{"Scarf:15.5", Command{Kind: Plain, Text: "Scarf:15.5"}},
		{"hello there", Command{Kind: Plain, Text: "hello there"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseCommand(tc.in), "input %q", tc.in)
	}
}

func TestCartSummaryEmpty(t *testing.T) {
	var c Cart
	assert.Equal(t, "Cart is empty.", c.Summary())
	assert.Zero(t, c.Total())
}
