package handler

import (
	"net/http"
	"time"
)

type pointLogResponse struct {
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

type pointHistoryResponse struct {
	AvailableAmount int64              `json:"availableAmount"`
	Logs            []pointLogResponse `json:"logs"`
}

// GetPointHistory handles GET /points: the authenticated user's balance
// statement, most recent entries first.
func (h *Handler) GetPointHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	st, err := h.points.History(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logs := make([]pointLogResponse, len(st.Logs))
	for i, l := range st.Logs {
		logs[i] = pointLogResponse{
			Amount:    l.Amount,
			Reason:    l.Reason,
			Type:      string(l.Type),
			CreatedAt: l.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, pointHistoryResponse{
		AvailableAmount: st.AvailableAmount,
		Logs:            logs,
	})
}
