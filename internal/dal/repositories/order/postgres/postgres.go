package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/orderlabs/order-svc/internal/dal/postgres"
	"github.com/orderlabs/order-svc/internal/service/models/order"
	"github.com/orderlabs/order-svc/internal/service/models/orderitem"
)

// OrderDal represents the order data access layer model.
type OrderDal struct {
	OrderId     string          `db:"order_id"`
	CustomerId  string          `db:"customer_id"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	ItemsCount  int             `db:"items_count"`
	CreatedAt   time.Time       `db:"created_at"`
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() *order.Order {
	return &order.Order{
		OrderID:     o.OrderId,
		CustomerID:  o.CustomerId,
		TotalAmount: o.TotalAmount,
		ItemsCount:  o.ItemsCount,
		CreatedAt:   o.CreatedAt,
		OrderItems:  []orderitem.OrderItem{}, // Populated separately
	}
}

// OrderDalFromModel converts the service layer Order model to OrderDal.
func OrderDalFromModel(o *order.Order) *OrderDal {
	return &OrderDal{
		OrderId:     o.OrderID,
		CustomerId:  o.CustomerID,
		TotalAmount: o.TotalAmount,
		ItemsCount:  o.ItemsCount,
		CreatedAt:   o.CreatedAt,
	}
}

// PostgresOrderRepository represents a Postgres order repository.
type PostgresOrderRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderRepository creates a new Postgres order repository.
func NewPostgresOrderRepository(conn postgres.GenericConn) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert inserts a single order row.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) error {
	dal := OrderDalFromModel(&o)

	sql, args, err := r.sb.
		Insert("orders").
		Columns("order_id", "customer_id", "total_amount", "items_count", "created_at").
		Values(dal.OrderId, dal.CustomerId, dal.TotalAmount, dal.ItemsCount, dal.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// Query retrieves orders based on filter criteria.
func (r *PostgresOrderRepository) Query(
	ctx context.Context,
	filter *order.QueryOrdersModel,
) ([]order.Order, error) {
	query := r.sb.
		Select("order_id", "customer_id", "total_amount", "items_count", "created_at").
		From("orders").
		OrderBy("created_at DESC")

	if len(filter.OrderIDs) > 0 {
		query = query.Where(sq.Eq{"order_id": filter.OrderIDs})
	}

	if len(filter.CustomerIDs) > 0 {
		query = query.Where(sq.Eq{"customer_id": filter.CustomerIDs})
	}

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		err := rows.Scan(
			&dal.OrderId,
			&dal.CustomerId,
			&dal.TotalAmount,
			&dal.ItemsCount,
			&dal.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		result = append(result, *dal.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
