package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"settlement/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Items            []orderItemRequest `json:"items"`
	CouponID         string             `json:"couponId,omitempty"`
	PointAmountToUse int64              `json:"pointAmountToUse,omitempty"`
	ShippingAddress  string             `json:"shippingAddress,omitempty"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type shippingInfoResponse struct {
	Address string `json:"address"`
}

type orderResponse struct {
	ID                 string                `json:"id"`
	UserID             string                `json:"userId"`
	Status             string                `json:"status"`
	Amount             float64               `json:"amount"`
	Items              []orderItemResponse   `json:"items"`
	PointAmountUsed    int64                 `json:"pointAmountUsed"`
	UsedIssuedCouponID string                `json:"usedIssuedCouponId,omitempty"`
	ShippingInfo       *shippingInfoResponse `json:"shippingInfo,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
}

// CreateOrder handles POST /orders: price the items with current coupon and
// point state and persist the order in the started state.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PointAmountToUse < 0 {
		writeError(w, http.StatusBadRequest, "pointAmountToUse must not be negative")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	o, err := h.orders.InitOrder(r.Context(), order.CreateOrderRequest{
		UserID:          id.UserID,
		Items:           items,
		CouponID:        req.CouponID,
		PointsToUse:     req.PointAmountToUse,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// CompleteOrder handles POST /orders/{orderID}/complete: the atomic
// settlement transitioning the order to paid.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.CompleteOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// GetOrder handles GET /orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	// Orders are visible to their owner and to admins.
	if o.UserID != id.UserID && !id.IsAdmin() {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.InexactFloat64(),
		}
	}

	resp := orderResponse{
		ID:                 o.ID,
		UserID:             o.UserID,
		Status:             string(o.Status),
		Amount:             o.Amount.InexactFloat64(),
		Items:              items,
		PointAmountUsed:    o.PointAmountUsed,
		UsedIssuedCouponID: o.UsedIssuedCouponID,
		CreatedAt:          o.CreatedAt,
	}
	if o.ShippingInfo != nil {
		resp.ShippingInfo = &shippingInfoResponse{Address: o.ShippingInfo.Address}
	}
	return resp
}
