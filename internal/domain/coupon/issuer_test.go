package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/domain/auth"
)

// --- Mock implementations ---

type mockUserRepo struct {
	byEmail map[string]*auth.User
}

func (m *mockUserRepo) GetByID(_ context.Context, _ string) (*auth.User, error) {
	return nil, auth.ErrUserNotFound
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

type mockCouponRepo struct {
	coupons map[string]Coupon
	issued  map[string]Issued

	createCouponErr error
	createIssuedErr error
}

func newMockCouponRepo() *mockCouponRepo {
	return &mockCouponRepo{
		coupons: make(map[string]Coupon),
		issued:  make(map[string]Issued),
	}
}

func (m *mockCouponRepo) CreateCoupon(_ context.Context, c Coupon) error {
	if m.createCouponErr != nil {
		return m.createCouponErr
	}
	m.coupons[c.ID] = c
	return nil
}

func (m *mockCouponRepo) GetCoupon(_ context.Context, id string) (*Coupon, error) {
	c, ok := m.coupons[id]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return &c, nil
}

func (m *mockCouponRepo) CreateIssued(_ context.Context, ic Issued) error {
	if m.createIssuedErr != nil {
		return m.createIssuedErr
	}
	m.issued[ic.ID] = ic
	return nil
}

func (m *mockCouponRepo) GetIssued(_ context.Context, id string) (*Issued, error) {
	ic, ok := m.issued[id]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return &ic, nil
}

func (m *mockCouponRepo) GetIssuedForUpdate(ctx context.Context, id string) (*Issued, error) {
	return m.GetIssued(ctx, id)
}

func (m *mockCouponRepo) FindIssuedByCouponAndUser(_ context.Context, couponID, userID string) (*Issued, error) {
	for _, ic := range m.issued {
		if ic.CouponID == couponID && ic.UserID == userID {
			return &ic, nil
		}
	}
	return nil, ErrInvalidCoupon
}

func (m *mockCouponRepo) UpdateIssued(_ context.Context, ic Issued) error {
	m.issued[ic.ID] = ic
	return nil
}

// --- Tests ---

var (
	admin = auth.Identity{UserID: "admin1", Role: auth.RoleAdmin}
	buyer = auth.Identity{UserID: "u1", Role: auth.RoleUser}
)

func newTestIssuer(repo *mockCouponRepo) *Issuer {
	users := &mockUserRepo{byEmail: map[string]*auth.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com", Name: "Alice", Role: auth.RoleUser},
	}}
	issuer := NewIssuer(users, repo)
	issuer.now = func() time.Time { return testNow }
	return issuer
}

func TestIssuer_Issue(t *testing.T) {
	repo := newMockCouponRepo()
	issuer := newTestIssuer(repo)

	result, err := issuer.Issue(context.Background(), admin, IssueRequest{
		TargetEmail: "alice@example.com",
		Type:        TypePercent,
		Value:       decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	assert.Equal(t, TypePercent, result.Coupon.Type)
	assert.True(t, decimal.NewFromInt(10).Equal(result.Coupon.Value))
	assert.Equal(t, "u1", result.Issued.UserID)
	assert.Equal(t, result.Coupon.ID, result.Issued.CouponID)
	assert.Equal(t, testNow, result.Issued.ValidFrom)
	assert.Equal(t, testNow.Add(ValidityWindow), result.Issued.ValidUntil)
	assert.Equal(t, "alice@example.com", result.User.Email)

	// Both rows persisted.
	assert.Len(t, repo.coupons, 1)
	assert.Len(t, repo.issued, 1)
}

func TestIssuer_Issue_NotAdmin(t *testing.T) {
	issuer := newTestIssuer(newMockCouponRepo())

	_, err := issuer.Issue(context.Background(), buyer, IssueRequest{
		TargetEmail: "alice@example.com",
		Type:        TypeFixed,
		Value:       decimal.NewFromInt(1000),
	})
	require.ErrorIs(t, err, ErrNotAdmin)
}

func TestIssuer_Issue_UnknownUser(t *testing.T) {
	issuer := newTestIssuer(newMockCouponRepo())

	_, err := issuer.Issue(context.Background(), admin, IssueRequest{
		TargetEmail: "nobody@example.com",
		Type:        TypeFixed,
		Value:       decimal.NewFromInt(1000),
	})
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestIssuer_Issue_NonPositiveValue(t *testing.T) {
	issuer := newTestIssuer(newMockCouponRepo())

	_, err := issuer.Issue(context.Background(), admin, IssueRequest{
		TargetEmail: "alice@example.com",
		Type:        TypeFixed,
		Value:       decimal.Zero,
	})
	require.Error(t, err)
}
