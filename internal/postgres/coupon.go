package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"settlement/internal/domain/coupon"
)

const (
	createCouponSQL = `INSERT INTO coupons (id, type, value) VALUES ($1, $2, $3)`

	getCouponSQL = `SELECT id, type, value FROM coupons WHERE id = $1`

	createIssuedSQL = `INSERT INTO issued_coupons
		(id, user_id, coupon_id, is_valid, valid_from, valid_until, is_used, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getIssuedSQL = `SELECT id, user_id, coupon_id, is_valid, valid_from, valid_until, is_used, used_at
		FROM issued_coupons WHERE id = $1`

	getIssuedForUpdateSQL = getIssuedSQL + ` FOR UPDATE`

	findIssuedByCouponAndUserSQL = `SELECT id, user_id, coupon_id, is_valid, valid_from, valid_until, is_used, used_at
		FROM issued_coupons WHERE coupon_id = $1 AND user_id = $2
		ORDER BY valid_from DESC LIMIT 1`

	updateIssuedSQL = `UPDATE issued_coupons
		SET is_valid = $2, is_used = $3, used_at = $4 WHERE id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// CreateCoupon persists a new coupon template.
func (r *CouponRepository) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	_, err := from(ctx, r.pool).Exec(ctx, createCouponSQL, c.ID, string(c.Type), c.Value)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.ID, err)
	}
	return nil
}

// GetCoupon returns the coupon template with the given id.
func (r *CouponRepository) GetCoupon(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getCouponSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// CreateIssued persists a new issued coupon instance.
func (r *CouponRepository) CreateIssued(ctx context.Context, ic coupon.Issued) error {
	_, err := from(ctx, r.pool).Exec(ctx, createIssuedSQL,
		ic.ID, ic.UserID, ic.CouponID, ic.IsValid, ic.ValidFrom, ic.ValidUntil, ic.IsUsed, ic.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("creating issued coupon %q: %w", ic.ID, err)
	}
	return nil
}

// GetIssued returns the issued coupon with the given id.
func (r *CouponRepository) GetIssued(ctx context.Context, id string) (*coupon.Issued, error) {
	return r.getIssued(ctx, getIssuedSQL, id)
}

// GetIssuedForUpdate returns the issued coupon with the given id, holding
// an exclusive row lock for the rest of the surrounding transaction.
func (r *CouponRepository) GetIssuedForUpdate(ctx context.Context, id string) (*coupon.Issued, error) {
	return r.getIssued(ctx, getIssuedForUpdateSQL, id)
}

func (r *CouponRepository) getIssued(ctx context.Context, sql, id string) (*coupon.Issued, error) {
	rows, err := from(ctx, r.pool).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting issued coupon %q: %w", id, err)
	}

	ic, err := pgx.CollectExactlyOneRow(rows, scanIssued)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("getting issued coupon %q: %w", id, err)
	}
	return &ic, nil
}

// FindIssuedByCouponAndUser resolves the issued instance the user holds for
// a coupon template. Returns coupon.ErrInvalidCoupon when the user holds none.
func (r *CouponRepository) FindIssuedByCouponAndUser(ctx context.Context, couponID, userID string) (*coupon.Issued, error) {
	rows, err := from(ctx, r.pool).Query(ctx, findIssuedByCouponAndUserSQL, couponID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding issued coupon %q for user %q: %w", couponID, userID, err)
	}

	ic, err := pgx.CollectExactlyOneRow(rows, scanIssued)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding issued coupon %q for user %q: %w", couponID, userID, err)
	}
	return &ic, nil
}

// UpdateIssued persists the mutable flags of an issued coupon.
func (r *CouponRepository) UpdateIssued(ctx context.Context, ic coupon.Issued) error {
	_, err := from(ctx, r.pool).Exec(ctx, updateIssuedSQL, ic.ID, ic.IsValid, ic.IsUsed, ic.UsedAt)
	if err != nil {
		return fmt.Errorf("updating issued coupon %q: %w", ic.ID, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c     coupon.Coupon
		typ   string
		value decimal.Decimal
	)
	err := row.Scan(&c.ID, &typ, &value)
	c.Type = coupon.Type(typ)
	c.Value = value
	return c, err
}

func scanIssued(row pgx.CollectableRow) (coupon.Issued, error) {
	var (
		ic     coupon.Issued
		usedAt *time.Time
	)
	err := row.Scan(&ic.ID, &ic.UserID, &ic.CouponID, &ic.IsValid,
		&ic.ValidFrom, &ic.ValidUntil, &ic.IsUsed, &usedAt)
	ic.UsedAt = usedAt
	return ic, err
}
