package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/domain/coupon"
	"settlement/internal/domain/point"
)

// Reasons recorded in the point log during settlement.
const (
	ReasonOrderUse    = "order use"
	ReasonOrderReward = "order reward"
)

// rewardRate is the cashback fraction of the paid amount credited back as
// points at settlement. Fractional points are truncated.
var rewardRate = decimal.NewFromFloat(0.01)

// RewardPoints returns the points credited for a paid amount.
func RewardPoints(amount decimal.Decimal) int64 {
	return amount.Mul(rewardRate).Floor().IntPart()
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	UserID          string
	Items           []ItemRequest
	CouponID        string
	PointsToUse     int64
	ShippingAddress string
}

// Service orchestrates the order lifecycle: pricing at creation and the
// atomic settlement at completion.
type Service struct {
	quoter  *Quoter
	orders  Repository
	coupons coupon.Repository
	points  *point.Ledger
	tx      TxRunner
	now     func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	quoter *Quoter,
	orders Repository,
	coupons coupon.Repository,
	points *point.Ledger,
	tx TxRunner,
) *Service {
	return &Service{
		quoter:  quoter,
		orders:  orders,
		coupons: coupons,
		points:  points,
		tx:      tx,
		now:     time.Now,
	}
}

// InitOrder quotes the payable amount with current coupon and point state,
// snapshots unit prices, and persists the order in the started state.
// Eligibility is validated here but no coupon or point state is mutated;
// settlement happens at completion.
func (s *Service) InitOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	quote, err := s.quoter.Quote(ctx, QuoteRequest{
		UserID:      req.UserID,
		Items:       req.Items,
		CouponID:    req.CouponID,
		PointsToUse: req.PointsToUse,
	})
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:                 uuid.New().String(),
		UserID:             req.UserID,
		Amount:             quote.Amount,
		Status:             StatusStarted,
		Items:              quote.Items,
		UsedIssuedCouponID: quote.UsedIssuedCouponID,
		PointAmountUsed:    quote.PointDiscount,
		CreatedAt:          s.now(),
	}
	if req.ShippingAddress != "" {
		o.ShippingInfo = &ShippingInfo{
			ID:      uuid.New().String(),
			Address: req.ShippingAddress,
		}
	}

	// Order, items, and shipping info land together or not at all.
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.orders.Create(ctx, o)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// GetOrder returns the order with the given id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// CompleteOrder transitions the order from started to paid, settling the
// coupon and point ledgers in one all-or-nothing transaction:
// consume the referenced coupon, debit the redeemed points, credit the
// reward points, flip the status. Any failure rolls everything back and
// leaves the order started. A second call fails with
// InvalidTransitionError and mutates nothing, which makes client retries
// safe against double settlement.
func (s *Service) CompleteOrder(ctx context.Context, orderID string) (*Order, error) {
	var settled *Order

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusStarted {
			return &InvalidTransitionError{OrderID: o.ID, Status: o.Status}
		}

		if o.UsedIssuedCouponID != "" {
			if err := s.consumeCoupon(ctx, o.UsedIssuedCouponID); err != nil {
				return err
			}
		}

		if o.PointAmountUsed > 0 {
			if _, err := s.points.Debit(ctx, o.UserID, o.PointAmountUsed, ReasonOrderUse); err != nil {
				return err
			}
		}

		if _, err := s.points.Credit(ctx, o.UserID, RewardPoints(o.Amount), ReasonOrderReward); err != nil {
			return err
		}

		if err := s.orders.UpdateStatus(ctx, o.ID, StatusPaid); err != nil {
			return errors.Wrap(err, "update order status")
		}

		o.Status = StatusPaid
		settled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// consumeCoupon loads the issued coupon under an exclusive lock and fires
// its single use. The lock makes the check-and-set atomic relative to
// concurrent consumers.
func (s *Service) consumeCoupon(ctx context.Context, issuedID string) error {
	ic, err := s.coupons.GetIssuedForUpdate(ctx, issuedID)
	if err != nil {
		return errors.Wrap(err, "load issued coupon")
	}
	consumed, err := coupon.Consume(*ic, s.now())
	if err != nil {
		return err
	}
	if err := s.coupons.UpdateIssued(ctx, consumed); err != nil {
		return errors.Wrap(err, "update issued coupon")
	}
	return nil
}
