package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderlabs/order-svc/internal/service/models/orderitem"
)

// Order represents a created order in the system.
type Order struct {
	OrderID     string                `json:"orderId"`
	CustomerID  string                `json:"customerId"`
	TotalAmount decimal.Decimal       `json:"totalAmount"`
	ItemsCount  int                   `json:"itemsCount"`
	CreatedAt   time.Time             `json:"createdAt"`
	OrderItems  []orderitem.OrderItem `json:"orderItems"`
}
