// Package coupon implements the coupon ledger: issuing single-use coupons
// to users and consuming them at order settlement.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercent discounts a percentage of the order total.
	TypePercent Type = "percent"
	// TypeFixed discounts a fixed monetary value. The value is not capped
	// at the order total; only the final clamp at zero bounds the combined
	// discount.
	TypeFixed Type = "fixed"
)

// ParseType validates a raw coupon type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypePercent, TypeFixed:
		return Type(s), nil
	default:
		return "", errors.Errorf("unsupported coupon type: %q", s)
	}
}

// ValidityWindow is how long an issued coupon stays usable after issuance.
const ValidityWindow = 2 * 365 * 24 * time.Hour

var (
	// ErrInvalidCoupon is returned when a coupon was not issued to the
	// user, is flagged invalid, or is outside its validity window.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrAlreadyUsed is returned on a consume attempt against an issued
	// coupon whose single use has already fired.
	ErrAlreadyUsed = errors.New("coupon already used")
	// ErrNotAdmin is returned when a non-admin identity attempts issuance.
	ErrNotAdmin = errors.New("coupon issuance requires admin role")
)

// Coupon is the reusable discount template an issued coupon references.
type Coupon struct {
	ID    string
	Type  Type
	Value decimal.Decimal
}

// Discount computes the discount this coupon yields against the given
// order total.
func (c Coupon) Discount(total decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case TypePercent:
		return total.Mul(c.Value).Div(decimal.NewFromInt(100))
	case TypeFixed:
		return c.Value
	default:
		return decimal.Zero
	}
}

// Issued is a coupon instance bound to one user, with its own validity
// window and single-use flag.
type Issued struct {
	ID         string
	UserID     string
	CouponID   string
	IsValid    bool
	ValidFrom  time.Time
	ValidUntil time.Time
	IsUsed     bool
	UsedAt     *time.Time
}

// Usable reports whether the issued coupon can be redeemed at the given
// instant: flagged valid, inside [ValidFrom, ValidUntil), and not yet used.
func (ic Issued) Usable(now time.Time) bool {
	if !ic.IsValid || ic.IsUsed {
		return false
	}
	return !now.Before(ic.ValidFrom) && now.Before(ic.ValidUntil)
}

// Issue builds a new issued coupon for the given user with the standard
// two-year validity window starting at now.
func Issue(id, userID, couponID string, now time.Time) Issued {
	return Issued{
		ID:         id,
		UserID:     userID,
		CouponID:   couponID,
		IsValid:    true,
		ValidFrom:  now,
		ValidUntil: now.Add(ValidityWindow),
	}
}

// Consume returns the post-consumption snapshot of the issued coupon.
// It fails with ErrAlreadyUsed when the coupon's single use has already
// fired, so a replayed consume never silently succeeds.
func Consume(ic Issued, now time.Time) (Issued, error) {
	if ic.IsUsed {
		return Issued{}, errors.Wrapf(ErrAlreadyUsed, "issued coupon %s", ic.ID)
	}
	ic.IsUsed = true
	ic.IsValid = false
	ic.UsedAt = &now
	return ic, nil
}

// Repository defines persistence for coupons and their issued instances.
//
// GetIssuedForUpdate must take an exclusive row lock when called inside a
// transaction so that concurrent consumers of the same issued coupon
// serialize on the check-and-set.
type Repository interface {
	CreateCoupon(ctx context.Context, c Coupon) error
	GetCoupon(ctx context.Context, id string) (*Coupon, error)
	CreateIssued(ctx context.Context, ic Issued) error
	GetIssued(ctx context.Context, id string) (*Issued, error)
	GetIssuedForUpdate(ctx context.Context, id string) (*Issued, error)
	// FindIssuedByCouponAndUser resolves the issued instance a user holds
	// for a given coupon template. Returns ErrInvalidCoupon when none exists.
	FindIssuedByCouponAndUser(ctx context.Context, couponID, userID string) (*Issued, error)
	UpdateIssued(ctx context.Context, ic Issued) error
}
