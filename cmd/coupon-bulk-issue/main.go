package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"settlement/internal/domain/auth"
	"settlement/internal/domain/coupon"
	"settlement/internal/postgres"
)

const (
	numWorkers    = 8
	progressEvery = 10_000
)

func main() {
	var (
		databaseURL string
		emailsFile  string
		couponType  string
		couponValue string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&emailsFile, "emails-file", "", "gzip-compressed file with one recipient email per line")
	flag.StringVar(&couponType, "coupon-type", "fixed", "coupon type to issue: fixed or percent")
	flag.StringVar(&couponValue, "coupon-value", "1000", "coupon value: amount for fixed, rate for percent")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if emailsFile == "" {
		slog.Error("emails file is required: set --emails-file")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, emailsFile, couponType, couponValue); err != nil {
		slog.Error("bulk issue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("bulk issue completed successfully")
}

func run(ctx context.Context, databaseURL, emailsFile, couponType, couponValue string) error {
	typ, err := coupon.ParseType(couponType)
	if err != nil {
		return errors.Wrap(err, "parse coupon type")
	}

	value, err := decimal.NewFromString(couponValue)
	if err != nil {
		return errors.Wrap(err, "parse coupon value")
	}
	if !value.IsPositive() {
		return errors.New("coupon value must be positive")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	issued, skipped, err := issueToRecipients(ctx, pool, emailsFile, typ, value)
	if err != nil {
		return err
	}

	slog.Info("bulk issue summary",
		slog.Int64("issued", issued),
		slog.Int64("skipped_unknown_email", skipped),
	)
	return nil
}

// issueToRecipients streams the gzipped email list and issues one coupon per
// known recipient. Unknown emails are counted and skipped, not treated as errors.
func issueToRecipients(
	ctx context.Context,
	pool *pgxpool.Pool,
	emailsFile string,
	typ coupon.Type,
	value decimal.Decimal,
) (issued, skipped int64, err error) {
	users := postgres.NewUserRepository(pool)
	coupons := postgres.NewCouponRepository(pool)

	emails := make(chan string, numWorkers)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(emails)
		return streamEmails(ctx, emailsFile, emails)
	})

	var issuedCount, skippedCount atomic.Int64

	for range numWorkers {
		g.Go(func() error {
			for email := range emails {
				user, err := users.FindByEmail(ctx, email)
				if err != nil {
					if errors.Is(err, auth.ErrUserNotFound) {
						skippedCount.Add(1)
						continue
					}
					return errors.Wrapf(err, "find user %q", email)
				}

				if err := issueOne(ctx, coupons, user.ID, typ, value); err != nil {
					return errors.Wrapf(err, "issue coupon to %q", email)
				}

				if n := issuedCount.Add(1); n%progressEvery == 0 {
					slog.Info("issue progress", slog.Int64("issued", n))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	return issuedCount.Load(), skippedCount.Load(), nil
}

func issueOne(ctx context.Context, coupons coupon.Repository, userID string, typ coupon.Type, value decimal.Decimal) error {
	c := coupon.Coupon{
		ID:    uuid.New().String(),
		Type:  typ,
		Value: value,
	}
	if err := coupons.CreateCoupon(ctx, c); err != nil {
		return errors.Wrap(err, "create coupon")
	}

	ic := coupon.Issue(uuid.New().String(), userID, c.ID, time.Now())
	if err := coupons.CreateIssued(ctx, ic); err != nil {
		return errors.Wrap(err, "create issued coupon")
	}

	return nil
}

// streamEmails opens a gzip-compressed file and sends each non-empty line.
func streamEmails(ctx context.Context, path string, out chan<- string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		email := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}

		select {
		case out <- email:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
