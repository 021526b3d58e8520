package session

import (
	"strconv"
	"strings"
)

// CommandKind is the closed set of inputs the shopping dialog understands.
// Free text is parsed into exactly one of these before dispatch.
type CommandKind int

const (
	// Plain is any text that matched nothing else.
	Plain CommandKind = iota
	// Checkout asks to finish shopping and submit the cart.
	Checkout
	// ViewCart asks to render the current cart.
	ViewCart
	// Cancel abandons the dialog.
	Cancel
	// CartAdd adds a "name:price" entry to the cart.
	CartAdd
)

// Command is the parsed form of one inbound text message.
type Command struct {
	Kind  CommandKind
	Name  string
	Price int64
	Text  string
}

// ParseCommand classifies inbound text. Prices are whole amounts in the
// smallest currency unit; a negative or unparseable price demotes the entry
// to Plain so the dialog can re-prompt.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	switch strings.ToLower(strings.TrimPrefix(trimmed, "/")) {
	case "checkout":
		return Command{Kind: Checkout, Text: trimmed}
	case "cart":
		return Command{Kind: ViewCart, Text: trimmed}
	case "cancel":
		return Command{Kind: Cancel, Text: trimmed}
	}

	if name, price, ok := parseCartEntry(trimmed); ok {
		return Command{Kind: CartAdd, Name: name, Price: price, Text: trimmed}
	}
	return Command{Kind: Plain, Text: trimmed}
}

func parseCartEntry(text string) (string, int64, bool) {
	idx := strings.LastIndex(text, ":")
	if idx <= 0 || idx == len(text)-1 {
		return "", 0, false
	}
	name := strings.TrimSpace(text[:idx])
	if name == "" {
		return "", 0, false
	}
	price, err := strconv.ParseInt(strings.TrimSpace(text[idx+1:]), 10, 64)
	if err != nil || price < 0 {
		return "", 0, false
	}
	return name, price, true
}
