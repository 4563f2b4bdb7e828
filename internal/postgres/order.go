package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"settlement/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, user_id, amount, status, used_issued_coupon_id, point_amount_used, shipping_info_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`

	createShippingInfoSQL = `INSERT INTO shipping_info (id, address) VALUES ($1, $2)`

	getOrderSQL = `SELECT o.id, o.user_id, o.amount, o.status, o.used_issued_coupon_id,
		o.point_amount_used, o.shipping_info_id, s.address, o.created_at
		FROM orders o LEFT JOIN shipping_info s ON s.id = o.shipping_info_id
		WHERE o.id = $1`

	// Locks the orders row only; the joined shipping row is immutable.
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE OF o`

	getOrderItemsSQL = `SELECT product_id, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY product_id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its items and optional shipping info.
// Callers run it inside a transaction scope so the rows land together.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := from(ctx, r.pool)

	var shippingID *string
	if o.ShippingInfo != nil {
		if _, err := q.Exec(ctx, createShippingInfoSQL, o.ShippingInfo.ID, o.ShippingInfo.Address); err != nil {
			return fmt.Errorf("creating shipping info for order %q: %w", o.ID, err)
		}
		shippingID = &o.ShippingInfo.ID
	}

	var couponID *string
	if o.UsedIssuedCouponID != "" {
		couponID = &o.UsedIssuedCouponID
	}

	_, err := q.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Amount, string(o.Status), couponID, o.PointAmountUsed, shippingID, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		if _, err := q.Exec(ctx, createOrderItemSQL, o.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return fmt.Errorf("creating order item %q for order %q: %w", item.ProductID, o.ID, err)
		}
	}
	return nil
}

// Get returns the order with the given id, including items and shipping info.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

// GetForUpdate returns the order holding an exclusive row lock for the rest
// of the surrounding transaction, serializing concurrent completions.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) get(ctx context.Context, sql, id string) (*order.Order, error) {
	q := from(ctx, r.pool)

	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	itemRows, err := q.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}

	return &o, nil
}

// UpdateStatus advances the order's lifecycle state.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := from(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o          order.Order
		status     string
		amount     decimal.Decimal
		couponID   *string
		shippingID *string
		address    *string
		createdAt  time.Time
	)
	err := row.Scan(&o.ID, &o.UserID, &amount, &status, &couponID,
		&o.PointAmountUsed, &shippingID, &address, &createdAt)
	o.Amount = amount
	o.Status = order.Status(status)
	o.CreatedAt = createdAt
	if couponID != nil {
		o.UsedIssuedCouponID = *couponID
	}
	if shippingID != nil && address != nil {
		o.ShippingInfo = &order.ShippingInfo{ID: *shippingID, Address: *address}
	}
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item  order.Item
		price decimal.Decimal
	)
	err := row.Scan(&item.ProductID, &item.Quantity, &price)
	item.UnitPrice = price
	return item, err
}
