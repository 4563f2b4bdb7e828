package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"settlement/internal/domain/auth"
	"settlement/internal/domain/coupon"
	"settlement/internal/domain/order"
	"settlement/internal/domain/point"
)

// errorResponse is the JSON body returned for every failed request.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// respondError maps domain errors to client-facing statuses. Unrecognized
// errors are treated as storage failures: the transaction has rolled back,
// nothing partial survived, and the client may retry.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		quantityErr   *order.InvalidQuantityError
		productErr    *order.ProductNotFoundError
		pointsErr     *point.InsufficientPointsError
		transitionErr *order.InvalidTransitionError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusBadRequest, quantityErr.Error())
	case errors.As(err, &productErr):
		writeError(w, http.StatusUnprocessableEntity, productErr.Error())
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusUnprocessableEntity, "invalid coupon")
	case errors.As(err, &pointsErr):
		writeError(w, http.StatusUnprocessableEntity, pointsErr.Error())
	case errors.Is(err, coupon.ErrAlreadyUsed):
		writeError(w, http.StatusConflict, "coupon already used")
	case errors.Is(err, coupon.ErrNotAdmin):
		writeError(w, http.StatusForbidden, "admin role required")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
	}
}
