package session

import (
	"fmt"
	"strings"
)

// CartItem is one "name:price" entry.
type CartItem struct {
	Name  string
	Price int64
}

// Cart accumulates items in insertion order. It is owned by a single session
// and inherits its serialization; no internal locking.
type Cart struct {
	items []CartItem
}

// Add appends an entry.
func (c *Cart) Add(name string, price int64) {
	c.items = append(c.items, CartItem{Name: name, Price: price})
}

// Len returns the number of entries.
func (c *Cart) Len() int {
	return len(c.items)
}

// Total sums all entry prices.
func (c *Cart) Total() int64 {
	var total int64
	for _, it := range c.items {
		total += it.Price
	}
	return total
}

// Items returns a copy of the entries in insertion order.
func (c *Cart) Items() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Summary renders the cart as one line per entry plus a total line.
func (c *Cart) Summary() string {
	if len(c.items) == 0 {
		return "Cart is empty."
	}
	var b strings.Builder
	for _, it := range c.items {
		fmt.Fprintf(&b, "%s - %d\n", it.Name, it.Price)
	}
	fmt.Fprintf(&b, "Total: %d", c.Total())
	return b.String()
}
