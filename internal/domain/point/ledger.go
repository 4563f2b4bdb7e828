package point

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Ledger exposes balance mutations and the statement query over a point
// Repository. Each mutation persists the updated balance and its audit log
// entry as one unit.
//
// Debit and Credit must run inside a transaction scope (see
// postgres.TxRunner): the exclusive row lock they rely on is held only
// until the surrounding transaction ends, so outside one the load runs in
// autocommit and the lock releases before the save.
type Ledger struct {
	points Repository
	now    func() time.Time
}

// NewLedger constructs a Ledger backed by the given repository.
func NewLedger(points Repository) *Ledger {
	return &Ledger{points: points, now: time.Now}
}

// Debit subtracts amount from the user's balance and appends a "use" log
// entry. The balance row is loaded with an exclusive lock so concurrent
// debits against the same user serialize for the rest of the enclosing
// transaction. A debit beyond the available balance fails with
// InsufficientPointsError and persists nothing.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason string) (*Log, error) {
	p, err := l.points.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load point balance")
	}

	updated, entry, err := Debit(*p, uuid.New().String(), amount, reason, l.now())
	if err != nil {
		return nil, err
	}

	if err := l.points.Save(ctx, updated); err != nil {
		return nil, errors.Wrap(err, "save point balance")
	}
	if err := l.points.AppendLog(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "append point log")
	}
	return &entry, nil
}

// Credit adds amount to the user's balance and appends an "add" log entry.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason string) (*Log, error) {
	p, err := l.points.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load point balance")
	}

	updated, entry := Credit(*p, uuid.New().String(), amount, reason, l.now())

	if err := l.points.Save(ctx, updated); err != nil {
		return nil, errors.Wrap(err, "save point balance")
	}
	if err := l.points.AppendLog(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "append point log")
	}
	return &entry, nil
}

// Statement is the balance plus full history returned by History.
type Statement struct {
	UserID          string
	AvailableAmount int64
	Logs            []Log
}

// History returns the user's current balance and audit entries, most
// recent first. Read-only.
func (l *Ledger) History(ctx context.Context, userID string) (*Statement, error) {
	p, err := l.points.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load point balance")
	}
	logs, err := l.points.Logs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load point logs")
	}
	return &Statement{
		UserID:          p.UserID,
		AvailableAmount: p.AvailableAmount,
		Logs:            logs,
	}, nil
}
