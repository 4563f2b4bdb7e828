package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/domain/auth"
	"settlement/internal/domain/coupon"
	"settlement/internal/domain/order"
	"settlement/internal/domain/point"
	"settlement/internal/domain/product"
)

var testSecret = []byte("test-secret")

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	listErr  error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		for _, p := range m.products {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

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
	coupons map[string]coupon.Coupon
	issued  map[string]coupon.Issued
}

func newMockCouponRepo() *mockCouponRepo {
	return &mockCouponRepo{
		coupons: make(map[string]coupon.Coupon),
		issued:  make(map[string]coupon.Issued),
	}
}

func (m *mockCouponRepo) CreateCoupon(_ context.Context, c coupon.Coupon) error {
	m.coupons[c.ID] = c
	return nil
}

func (m *mockCouponRepo) GetCoupon(_ context.Context, id string) (*coupon.Coupon, error) {
	c, ok := m.coupons[id]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return &c, nil
}

func (m *mockCouponRepo) CreateIssued(_ context.Context, ic coupon.Issued) error {
	m.issued[ic.ID] = ic
	return nil
}

func (m *mockCouponRepo) GetIssued(_ context.Context, id string) (*coupon.Issued, error) {
	ic, ok := m.issued[id]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return &ic, nil
}

func (m *mockCouponRepo) GetIssuedForUpdate(ctx context.Context, id string) (*coupon.Issued, error) {
	return m.GetIssued(ctx, id)
}

func (m *mockCouponRepo) FindIssuedByCouponAndUser(_ context.Context, couponID, userID string) (*coupon.Issued, error) {
	for _, ic := range m.issued {
		if ic.CouponID == couponID && ic.UserID == userID {
			return &ic, nil
		}
	}
	return nil, coupon.ErrInvalidCoupon
}

func (m *mockCouponRepo) UpdateIssued(_ context.Context, ic coupon.Issued) error {
	m.issued[ic.ID] = ic
	return nil
}

type mockPointRepo struct {
	balances map[string]point.Point
	logs     []point.Log
}

func newMockPointRepo(balances ...point.Point) *mockPointRepo {
	m := &mockPointRepo{balances: make(map[string]point.Point)}
	for _, p := range balances {
		m.balances[p.UserID] = p
	}
	return m
}

func (m *mockPointRepo) Get(_ context.Context, userID string) (*point.Point, error) {
	p, ok := m.balances[userID]
	if !ok {
		p = point.Point{UserID: userID}
	}
	return &p, nil
}

func (m *mockPointRepo) GetForUpdate(ctx context.Context, userID string) (*point.Point, error) {
	return m.Get(ctx, userID)
}

func (m *mockPointRepo) Save(_ context.Context, p point.Point) error {
	m.balances[p.UserID] = p
	return nil
}

func (m *mockPointRepo) AppendLog(_ context.Context, l point.Log) error {
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockPointRepo) Logs(_ context.Context, userID string) ([]point.Log, error) {
	var out []point.Log
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].UserID == userID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	orders map[string]*order.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*order.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return m.Get(ctx, id)
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

// passthroughTx runs the function directly; rollback behavior is covered by
// the domain-level tests.
type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- Helpers ---

type fixture struct {
	srv     http.Handler
	orders  *mockOrderRepo
	coupons *mockCouponRepo
	points  *mockPointRepo
}

func newFixture() *fixture {
	products := &mockProductRepo{products: []product.Product{
		{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(2500), Category: "test"},
		{ID: "p2", Name: "Gadget", Price: decimal.NewFromInt(5000), Category: "test"},
	}}
	users := &mockUserRepo{byEmail: map[string]*auth.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com", Name: "Alice", Role: auth.RoleUser},
	}}
	coupons := newMockCouponRepo()
	points := newMockPointRepo(point.Point{UserID: "u1", AvailableAmount: 50000})
	orders := newMockOrderRepo()

	quoter := order.NewQuoter(products, coupons, points)
	svc := order.NewService(quoter, orders, coupons, point.NewLedger(points), passthroughTx{})
	issuer := coupon.NewIssuer(users, coupons)

	h := NewHandler(svc, point.NewLedger(points), issuer, products)

	return &fixture{
		srv:     h.Routes(NewTokenVerifier(testSecret)),
		orders:  orders,
		coupons: coupons,
		points:  points,
	}
}

func mintToken(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(role),
	})
	raw, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return raw
}

func doRequest(t *testing.T, srv http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// --- Tests ---

func TestAuth_MissingToken(t *testing.T) {
	f := newFixture()

	rec := doRequest(t, f.srv, http.MethodGet, "/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	f := newFixture()

	rec := doRequest(t, f.srv, http.MethodGet, "/products", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_WrongSecret(t *testing.T) {
	f := newFixture()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		Role:             "user",
	})
	raw, err := token.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	rec := doRequest(t, f.srv, http.MethodGet, "/products", raw, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ExpiredToken(t *testing.T) {
	f := newFixture()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: "user",
	})
	raw, err := token.SignedString(testSecret)
	require.NoError(t, err)

	rec := doRequest(t, f.srv, http.MethodGet, "/products", raw, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListProducts(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodGet, "/products", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	products := decodeBody[[]productResponse](t, rec)
	require.Len(t, products, 2)
	assert.Equal(t, "Widget", products[0].Name)
	assert.Equal(t, float64(2500), products[0].Price)
}

func TestCreateOrder(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:           []orderItemRequest{{ProductID: "p1", Quantity: 4}},
		ShippingAddress: "1 Main St",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	o := decodeBody[orderResponse](t, rec)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "started", o.Status)
	assert.Equal(t, float64(10000), o.Amount)
	require.NotNil(t, o.ShippingInfo)
	assert.Equal(t, "1 Main St", o.ShippingInfo.Address)
}

func TestCreateOrder_RepeatedProductLines(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items: []orderItemRequest{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p1", Quantity: 3},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	o := decodeBody[orderResponse](t, rec)
	assert.Equal(t, float64(10000), o.Amount)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 4, o.Items[0].Quantity)
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_NegativePoints(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:            []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		PointAmountToUse: -100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items: []orderItemRequest{{ProductID: "missing", Quantity: 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateOrder_UnknownCoupon(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:    []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		CouponID: "bogus",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateOrder_InsufficientPoints(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:            []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		PointAmountToUse: 999999,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCompleteOrder(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:            []orderItemRequest{{ProductID: "p1", Quantity: 4}},
		PointAmountToUse: 1000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[orderResponse](t, rec)

	rec = doRequest(t, f.srv, http.MethodPost, "/orders/"+created.ID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	settled := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "paid", settled.Status)
	assert.Equal(t, float64(9000), settled.Amount)

	// Debit 1000, reward 90.
	assert.Equal(t, int64(49090), f.points.balances["u1"].AvailableAmount)
}

func TestCompleteOrder_Twice(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[orderResponse](t, rec)

	rec = doRequest(t, f.srv, http.MethodPost, "/orders/"+created.ID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, f.srv, http.MethodPost, "/orders/"+created.ID+"/complete", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCompleteOrder_NotFound(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders/missing/complete", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	f := newFixture()
	owner := mintToken(t, "u1", auth.RoleUser)
	other := mintToken(t, "u2", auth.RoleUser)
	admin := mintToken(t, "a1", auth.RoleAdmin)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", owner, createOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[orderResponse](t, rec)

	rec = doRequest(t, f.srv, http.MethodGet, "/orders/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another user cannot see the order; admins can.
	rec = doRequest(t, f.srv, http.MethodGet, "/orders/"+created.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, f.srv, http.MethodGet, "/orders/"+created.ID, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIssueCoupon(t *testing.T) {
	f := newFixture()
	admin := mintToken(t, "a1", auth.RoleAdmin)

	rec := doRequest(t, f.srv, http.MethodPost, "/coupons", admin, issueCouponRequest{
		UserEmail:   "alice@example.com",
		CouponType:  "percent",
		CouponValue: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	issued := decodeBody[issuedCouponResponse](t, rec)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, "u1", issued.User.ID)
	assert.Equal(t, "percent", issued.Coupon.Type)
	assert.Equal(t, float64(10), issued.Coupon.Value)
	assert.True(t, issued.ValidUntil.After(issued.ValidFrom))
}

func TestIssueCoupon_NotAdmin(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/coupons", token, issueCouponRequest{
		UserEmail:   "alice@example.com",
		CouponType:  "fixed",
		CouponValue: 1000,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIssueCoupon_UnknownEmail(t *testing.T) {
	f := newFixture()
	admin := mintToken(t, "a1", auth.RoleAdmin)

	rec := doRequest(t, f.srv, http.MethodPost, "/coupons", admin, issueCouponRequest{
		UserEmail:   "nobody@example.com",
		CouponType:  "fixed",
		CouponValue: 1000,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueCoupon_BadType(t *testing.T) {
	f := newFixture()
	admin := mintToken(t, "a1", auth.RoleAdmin)

	rec := doRequest(t, f.srv, http.MethodPost, "/coupons", admin, issueCouponRequest{
		UserEmail:   "alice@example.com",
		CouponType:  "mystery",
		CouponValue: 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssuedCouponRoundTrip(t *testing.T) {
	f := newFixture()
	admin := mintToken(t, "a1", auth.RoleAdmin)
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/coupons", admin, issueCouponRequest{
		UserEmail:   "alice@example.com",
		CouponType:  "percent",
		CouponValue: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	issued := decodeBody[issuedCouponResponse](t, rec)

	rec = doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:    []orderItemRequest{{ProductID: "p1", Quantity: 4}},
		CouponID: issued.Coupon.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	o := decodeBody[orderResponse](t, rec)
	assert.Equal(t, float64(9000), o.Amount)
	assert.Equal(t, issued.ID, o.UsedIssuedCouponID)

	rec = doRequest(t, f.srv, http.MethodPost, "/orders/"+o.ID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The coupon's single use has fired; a new order cannot reference it.
	rec = doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:    []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		CouponID: issued.Coupon.ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetPointHistory(t *testing.T) {
	f := newFixture()
	token := mintToken(t, "u1", auth.RoleUser)

	rec := doRequest(t, f.srv, http.MethodPost, "/orders", token, createOrderRequest{
		Items:            []orderItemRequest{{ProductID: "p1", Quantity: 4}},
		PointAmountToUse: 1000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[orderResponse](t, rec)

	rec = doRequest(t, f.srv, http.MethodPost, "/orders/"+created.ID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, f.srv, http.MethodGet, "/points", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	history := decodeBody[pointHistoryResponse](t, rec)
	assert.Equal(t, int64(49090), history.AvailableAmount)
	require.Len(t, history.Logs, 2)
	// Most recent first: the reward credit, then the debit.
	assert.Equal(t, "order reward", history.Logs[0].Reason)
	assert.Equal(t, int64(90), history.Logs[0].Amount)
	assert.Equal(t, "order use", history.Logs[1].Reason)
	assert.Equal(t, int64(1000), history.Logs[1].Amount)
}
