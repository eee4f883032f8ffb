package ordersvc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderlabs/order-svc/internal/dal/interfaces/iorderitemrepo"
	"github.com/orderlabs/order-svc/internal/dal/interfaces/iorderrepo"
	"github.com/orderlabs/order-svc/internal/dal/interfaces/ioutboxrepo"
	"github.com/orderlabs/order-svc/internal/service/models/order"
	"github.com/orderlabs/order-svc/internal/service/models/orderitem"
	"github.com/orderlabs/order-svc/internal/service/models/outbox"
)

// --- Fakes ---

type fakeOrderRepo struct {
	insertErr   error
	inserted    []order.Order
	queryResult []order.Order
	queryErr    error
	queried     []*order.QueryOrdersModel
}

func (f *fakeOrderRepo) Insert(_ context.Context, o order.Order) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, o)

	return nil
}

func (f *fakeOrderRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	f.queried = append(f.queried, filter)

	return f.queryResult, f.queryErr
}

type fakeOrderItemRepo struct {
	bulkErr     error
	bulkCalls   [][]orderitem.OrderItem
	queryResult []orderitem.OrderItem
	queryErr    error
}

func (f *fakeOrderItemRepo) BulkInsert(_ context.Context, items []orderitem.OrderItem) error {
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.bulkCalls = append(f.bulkCalls, items)

	return nil
}

func (f *fakeOrderItemRepo) Query(_ context.Context, _ *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error) {
	return f.queryResult, f.queryErr
}

type fakeOutboxRepo struct {
	insertErr error
	messages  []outbox.OutboxMessage
}

func (f *fakeOutboxRepo) Insert(_ context.Context, msg outbox.OutboxMessage) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.messages = append(f.messages, msg)

	return nil
}

func (f *fakeOutboxRepo) GetPendingMessages(_ context.Context, _ int) ([]outbox.OutboxMessage, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) Delete(_ context.Context, _ int64) error { return nil }

func (f *fakeOutboxRepo) UpdateRetry(_ context.Context, _ int64, _ int, _ string, _ time.Time) error {
	return nil
}

type fakeUOW struct {
	beginErr  error
	commitErr error

	begun      bool
	committed  bool
	rolledBack bool
	closeCount int

	orders *fakeOrderRepo
	items  *fakeOrderItemRepo
	outbox *fakeOutboxRepo
}

func newFakeUOW() *fakeUOW {
	return &fakeUOW{
		orders: &fakeOrderRepo{},
		items:  &fakeOrderItemRepo{},
		outbox: &fakeOutboxRepo{},
	}
}

func (f *fakeUOW) Begin(_ context.Context) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	f.begun = true

	return nil
}

func (f *fakeUOW) Commit(_ context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true

	return nil
}

func (f *fakeUOW) Rollback(_ context.Context) error {
	// Mirrors pgx: rollback after commit is a no-op.
	if !f.committed {
		f.rolledBack = true
	}

	return nil
}

func (f *fakeUOW) Close() { f.closeCount++ }

func (f *fakeUOW) OrderRepository() iorderrepo.IOrderRepository { return f.orders }

func (f *fakeUOW) OrderItemRepository() iorderitemrepo.IOrderItemRepository { return f.items }

func (f *fakeUOW) OutboxRepository() ioutboxrepo.IOutboxRepository { return f.outbox }

func newTestService(work *fakeUOW) *OrderService {
	return MustNewOrderService(WithUnitOfWorkFactory(func() unitOfWork {
		return work
	}))
}

func testItems() []CreateOrderItem {
	return []CreateOrderItem{
		{ProductID: "P1", Quantity: 2, Price: decimal.RequireFromString("10.0")},
		{ProductID: "P2", Quantity: 1, Price: decimal.RequireFromString("5.0")},
	}
}

// --- Tests ---

func TestCreateOrder_Aggregates(t *testing.T) {
	work := newFakeUOW()
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("25.0").Equal(summary.TotalAmount))
	assert.Equal(t, 3, summary.ItemsCount)
	assert.Regexp(t, `^ORD-[A-Z0-9]{8}$`, summary.OrderID)

	require.Len(t, work.orders.inserted, 1)
	persisted := work.orders.inserted[0]
	assert.Equal(t, summary.OrderID, persisted.OrderID)
	assert.Equal(t, "C1", persisted.CustomerID)
	assert.True(t, summary.TotalAmount.Equal(persisted.TotalAmount))
	assert.Equal(t, 3, persisted.ItemsCount)
	assert.Equal(t, summary.ProcessedAt, persisted.CreatedAt)

	assert.True(t, work.committed)
	assert.False(t, work.rolledBack)
}

func TestCreateOrder_ItemRowsInInputOrder(t *testing.T) {
	work := newFakeUOW()
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.NoError(t, err)

	require.Len(t, work.items.bulkCalls, 1)
	rows := work.items.bulkCalls[0]
	require.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[0].ProductID)
	assert.Equal(t, "P2", rows[1].ProductID)
	for _, row := range rows {
		assert.Equal(t, summary.OrderID, row.OrderID)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	work := newFakeUOW()
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", nil)
	require.NoError(t, err)

	assert.True(t, decimal.Zero.Equal(summary.TotalAmount))
	assert.Equal(t, 0, summary.ItemsCount)

	// One order row, zero item rows, still committed.
	require.Len(t, work.orders.inserted, 1)
	require.Len(t, work.items.bulkCalls, 1)
	assert.Empty(t, work.items.bulkCalls[0])
	assert.True(t, work.committed)
}

func TestCreateOrder_BeginError(t *testing.T) {
	work := newFakeUOW()
	work.beginErr = errors.New("pool exhausted")
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.Error(t, err)
	assert.Nil(t, summary)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)

	assert.Empty(t, work.orders.inserted)
	assert.False(t, work.committed)
	assert.Equal(t, 1, work.closeCount)
}

func TestCreateOrder_OrderInsertFailure(t *testing.T) {
	work := newFakeUOW()
	work.orders.insertErr = errors.New("constraint violation")
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.Error(t, err)
	assert.Nil(t, summary)

	var persErr *PersistenceError
	require.ErrorAs(t, err, &persErr)

	assert.True(t, work.rolledBack)
	assert.False(t, work.committed)
	assert.Equal(t, 1, work.closeCount)
}

func TestCreateOrder_ItemInsertFailure(t *testing.T) {
	work := newFakeUOW()
	work.items.bulkErr = errors.New("connectivity lost")
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.Error(t, err)
	assert.Nil(t, summary)

	var persErr *PersistenceError
	require.ErrorAs(t, err, &persErr)

	// Order row was issued inside the transaction, but the rollback undoes it.
	assert.True(t, work.rolledBack)
	assert.False(t, work.committed)
	assert.Equal(t, 1, work.closeCount)
}

func TestCreateOrder_CommitFailure(t *testing.T) {
	work := newFakeUOW()
	work.commitErr = errors.New("connection reset")
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.Error(t, err)
	assert.Nil(t, summary)

	var persErr *PersistenceError
	require.ErrorAs(t, err, &persErr)
	assert.Equal(t, 1, work.closeCount)
}

func TestCreateOrder_ConnectionReleasedOnceOnSuccess(t *testing.T) {
	work := newFakeUOW()
	svc := newTestService(work)

	_, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.NoError(t, err)
	assert.Equal(t, 1, work.closeCount)
}

func TestCreateOrder_NotIdempotent(t *testing.T) {
	work := newFakeUOW()
	svc := newTestService(work)

	first, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.NoError(t, err)
	second, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.Len(t, work.orders.inserted, 2)
}

func TestCreateOrder_OutboxEventInTransaction(t *testing.T) {
	work := newFakeUOW()
	svc := newTestService(work)

	summary, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.NoError(t, err)

	require.Len(t, work.outbox.messages, 1)
	msg := work.outbox.messages[0]
	assert.Equal(t, "application/json", msg.ContentType)

	var event orderCreatedEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, summary.OrderID, event.OrderID)
	assert.Equal(t, "C1", event.CustomerID)
	assert.Equal(t, 3, event.ItemsCount)
	assert.True(t, summary.TotalAmount.Equal(event.TotalAmount))
}

func TestCreateOrder_OutboxInsertFailureRollsBack(t *testing.T) {
	work := newFakeUOW()
	work.outbox.insertErr = errors.New("disk full")
	svc := newTestService(work)

	_, err := svc.CreateOrder(context.Background(), "C1", testItems())
	require.Error(t, err)
	assert.True(t, work.rolledBack)
	assert.False(t, work.committed)
}

func TestGetOrders_StitchesItems(t *testing.T) {
	work := newFakeUOW()
	work.orders.queryResult = []order.Order{
		{OrderID: "ORD-AAAAAAAA", CustomerID: "C1"},
		{OrderID: "ORD-BBBBBBBB", CustomerID: "C2"},
	}
	work.items.queryResult = []orderitem.OrderItem{
		{OrderID: "ORD-AAAAAAAA", ProductID: "P1", Quantity: 2},
		{OrderID: "ORD-BBBBBBBB", ProductID: "P2", Quantity: 1},
		{OrderID: "ORD-AAAAAAAA", ProductID: "P3", Quantity: 4},
	}
	svc := newTestService(work)

	orders, err := svc.GetOrders(context.Background(), order.QueryOrdersModel{})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Len(t, orders[0].OrderItems, 2)
	assert.Len(t, orders[1].OrderItems, 1)
}

func TestGetOrders_Empty(t *testing.T) {
	work := newFakeUOW()
	svc := newTestService(work)

	orders, err := svc.GetOrders(context.Background(), order.QueryOrdersModel{CustomerIDs: []string{"C9"}})
	require.NoError(t, err)
	assert.Empty(t, orders)
}
