// Package order implements order pricing and the started→paid lifecycle,
// including the atomic settlement against the coupon and point ledgers.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the order lifecycle states. The only transition is
// started → paid; there is no reverse edge.
type Status string

const (
	StatusStarted Status = "started"
	StatusPaid    Status = "paid"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems    = errors.New("items required")
	ErrOrderNotFound = errors.New("order not found")
)

// ProductNotFoundError indicates an order item references an unresolvable
// product id.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InvalidTransitionError indicates a completion attempt on an order that
// is not in the started state.
type InvalidTransitionError struct {
	OrderID string
	Status  Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot be completed from status %q", e.OrderID, e.Status)
}

// Order is a customer order. Amount reflects all discounts applied at
// creation time and is never negative.
type Order struct {
	ID                 string
	UserID             string
	Amount             decimal.Decimal
	Status             Status
	Items              []Item
	UsedIssuedCouponID string
	PointAmountUsed    int64
	ShippingInfo       *ShippingInfo
	CreatedAt          time.Time
}

// Item is a single order line. UnitPrice is snapshotted at order creation
// and immune to later catalog changes.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ShippingInfo is the immutable delivery address attached to an order.
type ShippingInfo struct {
	ID      string
	Address string
}

// Repository defines persistence operations for orders.
//
// GetForUpdate must take an exclusive row lock when called inside a
// transaction so that concurrent completions of the same order serialize.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// TxRunner runs fn inside one all-or-nothing transaction scope. Any error
// returned by fn rolls the whole scope back; repositories called with the
// context fn receives participate in the scope.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
