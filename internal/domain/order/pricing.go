package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"settlement/internal/domain/coupon"
	"settlement/internal/domain/point"
	"settlement/internal/domain/product"
)

// QuoteRequest holds the input for a price quote.
type QuoteRequest struct {
	UserID string
	Items  []ItemRequest
	// CouponID references the coupon template; the quoter resolves the
	// issued instance the user holds for it.
	CouponID string
	// PointsToUse is the exact number of points to redeem; there is no
	// partial application.
	PointsToUse int64
}

// ItemRequest is one requested order line before price resolution.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// Quote is the priced order: per-line unit price snapshots plus the final
// payable amount after discounts, clamped at zero.
type Quote struct {
	Items              []Item
	Total              decimal.Decimal
	CouponDiscount     decimal.Decimal
	PointDiscount      int64
	Amount             decimal.Decimal
	UsedIssuedCouponID string
}

// Quoter computes the final payable amount from catalog prices, an
// optional coupon, and an optional point redemption. Quoting is strictly
// read-only: it validates coupon usability and point sufficiency but
// defers every mutation to settlement.
type Quoter struct {
	products product.Repository
	coupons  coupon.Repository
	points   point.Repository
	now      func() time.Time
}

// NewQuoter constructs a Quoter with the required collaborators.
func NewQuoter(products product.Repository, coupons coupon.Repository, points point.Repository) *Quoter {
	return &Quoter{products: products, coupons: coupons, points: points, now: time.Now}
}

// Quote resolves unit prices in one batch, applies the coupon and point
// discounts, and returns the priced order.
// The final amount is max(0, total − couponDiscount − pointDiscount).
func (q *Quoter) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	items, total, err := q.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	quote := &Quote{Items: items, Total: total}

	if req.CouponID != "" {
		discount, issuedID, err := q.couponDiscount(ctx, req.CouponID, req.UserID, total)
		if err != nil {
			return nil, err
		}
		quote.CouponDiscount = discount
		quote.UsedIssuedCouponID = issuedID
	}

	if req.PointsToUse > 0 {
		if err := q.checkPoints(ctx, req.UserID, req.PointsToUse); err != nil {
			return nil, err
		}
		quote.PointDiscount = req.PointsToUse
	}

	amount := total.Sub(quote.CouponDiscount).Sub(decimal.NewFromInt(quote.PointDiscount))
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	quote.Amount = amount.Round(2)
	quote.CouponDiscount = quote.CouponDiscount.Round(2)

	return quote, nil
}

// priceItems batch-fetches the catalog rows and snapshots unit prices.
// Lines repeating a product id collapse into one item with the summed
// quantity, so every order holds at most one row per product.
func (q *Quoter) priceItems(ctx context.Context, reqs []ItemRequest) ([]Item, decimal.Decimal, error) {
	ids := make([]string, 0, len(reqs))
	quantities := make(map[string]int, len(reqs))
	for _, r := range reqs {
		if r.Quantity <= 0 {
			return nil, decimal.Zero, &InvalidQuantityError{ProductID: r.ProductID}
		}
		if _, seen := quantities[r.ProductID]; !seen {
			ids = append(ids, r.ProductID)
		}
		quantities[r.ProductID] += r.Quantity
	}

	fetched, err := q.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, len(ids))
	total := decimal.Zero
	for i, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, decimal.Zero, &ProductNotFoundError{ProductID: id}
		}
		qty := quantities[id]
		items[i] = Item{
			ProductID: id,
			Quantity:  qty,
			UnitPrice: p.Price,
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return items, total, nil
}

// couponDiscount resolves the issued coupon the user holds for the coupon
// template, checks usability at quote time, and computes the discount.
func (q *Quoter) couponDiscount(ctx context.Context, couponID, userID string, total decimal.Decimal) (decimal.Decimal, string, error) {
	issued, err := q.coupons.FindIssuedByCouponAndUser(ctx, couponID, userID)
	if err != nil {
		if errors.Is(err, coupon.ErrInvalidCoupon) {
			return decimal.Zero, "", errors.Wrapf(coupon.ErrInvalidCoupon,
				"user %s holds no coupon %s", userID, couponID)
		}
		return decimal.Zero, "", errors.Wrap(err, "find issued coupon")
	}

	if !issued.Usable(q.now()) {
		return decimal.Zero, "", errors.Wrapf(coupon.ErrInvalidCoupon,
			"issued coupon %s not usable", issued.ID)
	}

	c, err := q.coupons.GetCoupon(ctx, issued.CouponID)
	if err != nil {
		return decimal.Zero, "", errors.Wrap(err, "get coupon")
	}

	return c.Discount(total), issued.ID, nil
}

// checkPoints verifies the user's balance covers the requested redemption.
func (q *Quoter) checkPoints(ctx context.Context, userID string, amount int64) error {
	p, err := q.points.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get point balance")
	}
	if p.AvailableAmount < 0 || p.AvailableAmount < amount {
		return &point.InsufficientPointsError{
			UserID:    userID,
			Requested: amount,
			Available: p.AvailableAmount,
		}
	}
	return nil
}
