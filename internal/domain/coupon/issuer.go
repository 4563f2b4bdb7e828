package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/domain/auth"
)

// IssueRequest holds the input for issuing a coupon to a user.
type IssueRequest struct {
	TargetEmail string
	Type        Type
	Value       decimal.Decimal
}

// IssueResult pairs the created coupon template with its issued instance
// and the resolved target user.
type IssueResult struct {
	Coupon Coupon
	Issued Issued
	User   auth.User
}

// Issuer creates coupons and hands them to users. Issuance is an admin
// capability, checked here at the ledger boundary rather than in transport.
type Issuer struct {
	users   auth.Repository
	coupons Repository
	now     func() time.Time
}

// NewIssuer constructs an Issuer with the required dependencies.
func NewIssuer(users auth.Repository, coupons Repository) *Issuer {
	return &Issuer{users: users, coupons: coupons, now: time.Now}
}

// Issue creates a new coupon of the requested type and value, persists it,
// and binds an issued instance to the user resolved by email. It fails with
// ErrNotAdmin unless the issuer identity holds the admin role.
func (i *Issuer) Issue(ctx context.Context, issuer auth.Identity, req IssueRequest) (*IssueResult, error) {
	if !issuer.IsAdmin() {
		return nil, ErrNotAdmin
	}
	if !req.Value.IsPositive() {
		return nil, errors.Errorf("coupon value must be positive, got %s", req.Value)
	}

	user, err := i.users.FindByEmail(ctx, req.TargetEmail)
	if err != nil {
		return nil, errors.Wrap(err, "resolve target user")
	}

	c := Coupon{
		ID:    uuid.New().String(),
		Type:  req.Type,
		Value: req.Value,
	}
	if err := i.coupons.CreateCoupon(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}

	ic := Issue(uuid.New().String(), user.ID, c.ID, i.now())
	if err := i.coupons.CreateIssued(ctx, ic); err != nil {
		return nil, errors.Wrap(err, "create issued coupon")
	}

	return &IssueResult{Coupon: c, Issued: ic, User: *user}, nil
}
