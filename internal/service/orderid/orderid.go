package orderid

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix is prepended to every generated order identifier.
const Prefix = "ORD-"

// New produces an order identifier of the form ORD-XXXXXXXX, where the suffix
// is the first 8 characters of a random UUID's hex form, upper-cased.
// Uniqueness is probabilistic; the orders primary key catches the rest.
func New() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")

	return Prefix + strings.ToUpper(hex[:8])
}
