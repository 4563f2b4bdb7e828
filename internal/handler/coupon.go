package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/domain/coupon"
)

type issueCouponRequest struct {
	UserEmail   string  `json:"userEmail"`
	CouponType  string  `json:"couponType"`
	CouponValue float64 `json:"couponValue"`
}

type issuedCouponResponse struct {
	ID         string         `json:"id"`
	User       userResponse   `json:"user"`
	Coupon     couponResponse `json:"coupon"`
	ValidFrom  time.Time      `json:"validFrom"`
	ValidUntil time.Time      `json:"validUntil"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type couponResponse struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// IssueCoupon handles POST /coupons: an admin creates a coupon and hands it
// to the user resolved by email.
func (h *Handler) IssueCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req issueCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctype, err := coupon.ParseType(req.CouponType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CouponValue <= 0 {
		writeError(w, http.StatusBadRequest, "couponValue must be positive")
		return
	}

	res, err := h.issuer.Issue(r.Context(), id, coupon.IssueRequest{
		TargetEmail: req.UserEmail,
		Type:        ctype,
		Value:       decimal.NewFromFloat(req.CouponValue),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, issuedCouponResponse{
		ID: res.Issued.ID,
		User: userResponse{
			ID:    res.User.ID,
			Email: res.User.Email,
			Name:  res.User.Name,
		},
		Coupon: couponResponse{
			ID:    res.Coupon.ID,
			Type:  string(res.Coupon.Type),
			Value: res.Coupon.Value.InexactFloat64(),
		},
		ValidFrom:  res.Issued.ValidFrom,
		ValidUntil: res.Issued.ValidUntil,
	})
}
