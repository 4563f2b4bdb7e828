// Package point implements the point ledger: one mutable balance per user
// plus an append-only log of debits and credits.
package point

import (
	"context"
	"fmt"
	"time"
)

// EntryType marks a point log row as a debit or a credit.
type EntryType string

const (
	// EntryUse records a debit against the balance.
	EntryUse EntryType = "use"
	// EntryAdd records a credit to the balance.
	EntryAdd EntryType = "add"
)

// Point is a user's current spendable balance. AvailableAmount is never
// negative.
type Point struct {
	UserID          string
	AvailableAmount int64
}

// Log is one append-only audit entry. The amount is always non-negative;
// its direction is implied by Type.
type Log struct {
	ID        string
	UserID    string
	Amount    int64
	Reason    string
	Type      EntryType
	CreatedAt time.Time
}

// InsufficientPointsError indicates a debit larger than the available balance.
type InsufficientPointsError struct {
	UserID    string
	Requested int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for user %s: requested %d, available %d",
		e.UserID, e.Requested, e.Available)
}

// Debit returns the balance snapshot after subtracting amount, plus the log
// entry to append alongside it. It fails without touching the snapshot when
// the balance cannot cover the amount.
func Debit(p Point, logID string, amount int64, reason string, now time.Time) (Point, Log, error) {
	if amount > p.AvailableAmount || p.AvailableAmount < 0 {
		return Point{}, Log{}, &InsufficientPointsError{
			UserID:    p.UserID,
			Requested: amount,
			Available: p.AvailableAmount,
		}
	}
	p.AvailableAmount -= amount
	return p, Log{
		ID:        logID,
		UserID:    p.UserID,
		Amount:    amount,
		Reason:    reason,
		Type:      EntryUse,
		CreatedAt: now,
	}, nil
}

// Credit returns the balance snapshot after adding amount, plus the log
// entry to append alongside it.
func Credit(p Point, logID string, amount int64, reason string, now time.Time) (Point, Log) {
	p.AvailableAmount += amount
	return p, Log{
		ID:        logID,
		UserID:    p.UserID,
		Amount:    amount,
		Reason:    reason,
		Type:      EntryAdd,
		CreatedAt: now,
	}
}

// Repository defines persistence for point balances and their logs.
//
// GetForUpdate must take an exclusive row lock when called inside a
// transaction; it is the single-writer guarantee that keeps concurrent
// debits against one balance from losing updates.
type Repository interface {
	Get(ctx context.Context, userID string) (*Point, error)
	GetForUpdate(ctx context.Context, userID string) (*Point, error)
	Save(ctx context.Context, p Point) error
	AppendLog(ctx context.Context, l Log) error
	// Logs returns the user's audit entries, most recent first.
	Logs(ctx context.Context, userID string) ([]Log, error)
}
