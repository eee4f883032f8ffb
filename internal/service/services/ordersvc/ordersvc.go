package ordersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/orderlabs/order-svc/internal/dal/interfaces/iorderitemrepo"
	"github.com/orderlabs/order-svc/internal/dal/interfaces/iorderrepo"
	"github.com/orderlabs/order-svc/internal/dal/interfaces/ioutboxrepo"
	"github.com/orderlabs/order-svc/internal/dal/postgres"
	"github.com/orderlabs/order-svc/internal/dal/uow"
	"github.com/orderlabs/order-svc/internal/service/models/order"
	"github.com/orderlabs/order-svc/internal/service/models/orderitem"
	"github.com/orderlabs/order-svc/internal/service/models/outbox"
	"github.com/orderlabs/order-svc/internal/service/orderid"
)

// OrderService is a service for creating and querying orders.
type OrderService struct {
	pgClient *postgres.Client
	newUOW   func() unitOfWork
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close()

	OrderRepository() iorderrepo.IOrderRepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// CreateOrderItem is one line item of a create-order request.
type CreateOrderItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// OrderSummary is what the caller gets back for a created order.
type OrderSummary struct {
	OrderID     string
	TotalAmount decimal.Decimal
	ItemsCount  int
	ProcessedAt time.Time
}

// orderCreatedEvent is the outbox payload published after a successful commit.
type orderCreatedEvent struct {
	OrderID     string          `json:"orderId"`
	CustomerID  string          `json:"customerId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	ItemsCount  int             `json:"itemsCount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
		s.newUOW = func() unitOfWork {
			return uow.NewUnitOfWork(pgClient)
		}
	}
}

// WithUnitOfWorkFactory overrides how units of work are produced.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(s *OrderService) {
		s.newUOW = factory
	}
}

// CreateOrder computes the order aggregates, generates the order identifier
// and persists the order row together with all its item rows in a single
// transaction. Either everything is committed or nothing is.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	customerID string,
	items []CreateOrderItem,
) (*OrderSummary, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.CreateOrder")
	defer span.End()

	totalAmount := decimal.Zero
	itemsCount := 0
	for _, item := range items {
		totalAmount = totalAmount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		itemsCount += item.Quantity
	}

	orderID := orderid.New()
	processedAt := time.Now()

	orderItems := make([]orderitem.OrderItem, len(items))
	for i, item := range items {
		orderItems[i] = orderitem.OrderItem{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	work := s.newUOW()
	// Release the connection and undo any open transaction on every exit path,
	// including cancellation mid-transaction. Close is a no-op before Begin
	// acquires a connection.
	defer work.Close()
	if err := work.Begin(ctx); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer func() {
		if err := work.Rollback(context.WithoutCancel(ctx)); err != nil {
			slog.Error("Failed to roll back order transaction", "order_id", orderID, "error", err)
		}
	}()

	o := order.Order{
		OrderID:     orderID,
		CustomerID:  customerID,
		TotalAmount: totalAmount,
		ItemsCount:  itemsCount,
		CreatedAt:   processedAt,
		OrderItems:  orderItems,
	}

	if err := work.OrderRepository().Insert(ctx, o); err != nil {
		return nil, &PersistenceError{Op: "insert order", Err: err}
	}

	if err := work.OrderItemRepository().BulkInsert(ctx, orderItems); err != nil {
		return nil, &PersistenceError{Op: "insert order items", Err: err}
	}

	event, err := s.newOrderCreatedMessage(o)
	if err != nil {
		return nil, &PersistenceError{Op: "build order event", Err: err}
	}
	if err := work.OutboxRepository().Insert(ctx, event); err != nil {
		return nil, &PersistenceError{Op: "insert outbox event", Err: err}
	}

	if err := work.Commit(ctx); err != nil {
		return nil, &PersistenceError{Op: "commit", Err: err}
	}

	slog.Info("Order created",
		"order_id", orderID,
		"customer_id", customerID,
		"items_count", itemsCount,
	)

	return &OrderSummary{
		OrderID:     orderID,
		TotalAmount: totalAmount,
		ItemsCount:  itemsCount,
		ProcessedAt: processedAt,
	}, nil
}

// newOrderCreatedMessage builds the outbox row carrying the order.created event.
func (s *OrderService) newOrderCreatedMessage(o order.Order) (outbox.OutboxMessage, error) {
	payload, err := json.Marshal(orderCreatedEvent{
		OrderID:     o.OrderID,
		CustomerID:  o.CustomerID,
		TotalAmount: o.TotalAmount,
		ItemsCount:  o.ItemsCount,
		CreatedAt:   o.CreatedAt,
	})
	if err != nil {
		return outbox.OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}

	maxRetries := viper.GetInt("rabbitmq.outbox.max_retries")
	if maxRetries == 0 {
		maxRetries = 5
	}

	now := time.Now()

	return outbox.OutboxMessage{
		QueueName:    viper.GetString("rabbitmq.order_created_queue"),
		ExchangeName: "",
		RoutingKey:   viper.GetString("rabbitmq.order_created_queue"),
		Payload:      payload,
		ContentType:  "application/json",
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
		NextRetryAt:  now,
	}, nil
}

// GetOrders retrieves orders with their items based on filter.
func (s *OrderService) GetOrders(
	ctx context.Context,
	filter order.QueryOrdersModel,
) ([]order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.GetOrders")
	defer span.End()

	work := s.newUOW()

	orders, err := work.OrderRepository().Query(ctx, &filter)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	itemFilter := &orderitem.QueryOrderItemsModel{}
	for _, o := range orders {
		itemFilter.OrderIDs = append(itemFilter.OrderIDs, o.OrderID)
	}
	items, err := work.OrderItemRepository().Query(ctx, itemFilter)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		for _, item := range items {
			if item.OrderID == orders[i].OrderID {
				orders[i].OrderItems = append(orders[i].OrderItems, item)
			}
		}
	}

	return orders, nil
}
