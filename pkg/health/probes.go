package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is the slice of a connection pool the database probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabasePing probes a database round-trip through the given pool.
func DatabasePing(p Pinger) Probe {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping database")
		}
		return nil
	}
}

// GoroutineCount probes for goroutine leaks: it fails once the process
// holds more goroutines than limit.
func GoroutineCount(limit int) Probe {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds limit %d", n, limit)
		}
		return nil
	}
}
