package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"settlement/internal/domain/point"
)

const (
	getPointSQL = `SELECT user_id, available_amount FROM points WHERE user_id = $1`

	// Balance rows are created lazily; the insert makes a row exist so the
	// subsequent locking select always has something to lock.
	ensurePointSQL = `INSERT INTO points (user_id, available_amount) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`

	getPointForUpdateSQL = getPointSQL + ` FOR UPDATE`

	savePointSQL = `INSERT INTO points (user_id, available_amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET available_amount = EXCLUDED.available_amount`

	appendPointLogSQL = `INSERT INTO point_logs (id, user_id, amount, reason, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listPointLogsSQL = `SELECT id, user_id, amount, reason, type, created_at
		FROM point_logs WHERE user_id = $1 ORDER BY created_at DESC, id`
)

var _ point.Repository = (*PointRepository)(nil)

// PointRepository implements point.Repository backed by PostgreSQL.
type PointRepository struct {
	pool *pgxpool.Pool
}

// NewPointRepository returns a PointRepository that uses the given pool.
func NewPointRepository(pool *pgxpool.Pool) *PointRepository {
	return &PointRepository{pool: pool}
}

// Get returns the user's balance. A user without a balance row reads as a
// zero balance.
func (r *PointRepository) Get(ctx context.Context, userID string) (*point.Point, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getPointSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting point balance for user %q: %w", userID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPoint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &point.Point{UserID: userID}, nil
		}
		return nil, fmt.Errorf("getting point balance for user %q: %w", userID, err)
	}
	return &p, nil
}

// GetForUpdate returns the user's balance holding an exclusive row lock for
// the rest of the surrounding transaction. The lock serializes concurrent
// read-modify-write cycles against the same balance. A missing balance row
// is created first so the lock always lands.
func (r *PointRepository) GetForUpdate(ctx context.Context, userID string) (*point.Point, error) {
	q := from(ctx, r.pool)

	if _, err := q.Exec(ctx, ensurePointSQL, userID); err != nil {
		return nil, fmt.Errorf("ensuring point balance for user %q: %w", userID, err)
	}

	rows, err := q.Query(ctx, getPointForUpdateSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("locking point balance for user %q: %w", userID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPoint)
	if err != nil {
		return nil, fmt.Errorf("locking point balance for user %q: %w", userID, err)
	}
	return &p, nil
}

// Save upserts the balance row.
func (r *PointRepository) Save(ctx context.Context, p point.Point) error {
	_, err := from(ctx, r.pool).Exec(ctx, savePointSQL, p.UserID, p.AvailableAmount)
	if err != nil {
		return fmt.Errorf("saving point balance for user %q: %w", p.UserID, err)
	}
	return nil
}

// AppendLog inserts one audit entry. Log rows are never updated or deleted.
func (r *PointRepository) AppendLog(ctx context.Context, l point.Log) error {
	_, err := from(ctx, r.pool).Exec(ctx, appendPointLogSQL,
		l.ID, l.UserID, l.Amount, l.Reason, string(l.Type), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending point log for user %q: %w", l.UserID, err)
	}
	return nil
}

// Logs returns the user's audit entries, most recent first.
func (r *PointRepository) Logs(ctx context.Context, userID string) ([]point.Log, error) {
	rows, err := from(ctx, r.pool).Query(ctx, listPointLogsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing point logs for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanPointLog)
}

func scanPoint(row pgx.CollectableRow) (point.Point, error) {
	var p point.Point
	err := row.Scan(&p.UserID, &p.AvailableAmount)
	return p, err
}

func scanPointLog(row pgx.CollectableRow) (point.Log, error) {
	var (
		l   point.Log
		typ string
	)
	err := row.Scan(&l.ID, &l.UserID, &l.Amount, &l.Reason, &typ, &l.CreatedAt)
	l.Type = point.EntryType(typ)
	return l, err
}
