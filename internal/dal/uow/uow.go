package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderlabs/order-svc/internal/dal/interfaces/iorderitemrepo"
	"github.com/orderlabs/order-svc/internal/dal/interfaces/iorderrepo"
	"github.com/orderlabs/order-svc/internal/dal/interfaces/ioutboxrepo"
	"github.com/orderlabs/order-svc/internal/dal/postgres"
	orderrepo "github.com/orderlabs/order-svc/internal/dal/repositories/order/postgres"
	orderitemrepo "github.com/orderlabs/order-svc/internal/dal/repositories/orderitem/postgres"
	outboxrepo "github.com/orderlabs/order-svc/internal/dal/repositories/outbox/postgres"
)

// UnitOfWork scopes one pooled connection and at most one transaction.
// Before Begin the repositories run directly against the pool; after Begin
// they are rebound to the transaction. Close releases the connection exactly
// once on every exit path.
type UnitOfWork struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
	tx   pgx.Tx

	orderRepo     iorderrepo.IOrderRepository
	orderItemRepo iorderitemrepo.IOrderItemRepository
	outboxRepo    ioutboxrepo.IOutboxRepository
}

// NewUnitOfWork creates a unit of work over the given Postgres client.
func NewUnitOfWork(db *postgres.Client) *UnitOfWork {
	pool := db.Pool()

	return &UnitOfWork{
		pool:          pool,
		orderRepo:     orderrepo.NewPostgresOrderRepository(pool),
		orderItemRepo: orderitemrepo.NewPostgresOrderItemRepository(pool),
		outboxRepo:    outboxrepo.NewOutboxRepository(pool),
	}
}

// OrderRepository returns the order repository bound to the current scope.
func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

// OrderItemRepository returns the order item repository bound to the current scope.
func (u *UnitOfWork) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return u.orderItemRepo
}

// OutboxRepository returns the outbox repository bound to the current scope.
func (u *UnitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

// Begin acquires one connection from the pool and opens a transaction on it.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	conn, err := u.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()

		return fmt.Errorf("begin transaction: %w", err)
	}

	u.conn = conn
	u.tx = tx
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.orderItemRepo = orderitemrepo.NewPostgresOrderItemRepository(tx)
	u.outboxRepo = outboxrepo.NewOutboxRepository(tx)

	return nil
}

// Commit commits the open transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Commit(ctx)
}

// Rollback rolls back the open transaction. Calling it after Commit is a no-op.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}

	return nil
}

// Close releases the acquired connection back to the pool. Safe to call once
// per unit of work regardless of the transaction outcome.
func (u *UnitOfWork) Close() {
	if u.conn != nil {
		u.conn.Release()
		u.conn = nil
	}
}
