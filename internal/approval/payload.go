package approval

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodePayload renders the callback payload carried by decision buttons:
// kind, payment ID and order ID joined with '|'.
func EncodePayload(sub Submission) string {
	return fmt.Sprintf("%s|%d|%d", sub.Kind, sub.PaymentID, sub.OrderID)
}

// DecodePayload parses a decision button payload back into its parts.
func DecodePayload(raw string) (kind string, paymentID, orderID int64, err error) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed decision payload %q", raw)
	}
	kind = parts[0]
	paymentID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed payment id in payload %q", raw)
	}
	orderID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed order id in payload %q", raw)
	}
	return kind, paymentID, orderID, nil
}
