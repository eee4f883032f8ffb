package orderitem

import (
	"github.com/shopspring/decimal"
)

// OrderItem represents one line within an order.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"orderId"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}
