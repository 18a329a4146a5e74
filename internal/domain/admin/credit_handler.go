package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formaai/ledger-api/internal/middleware"
	"github.com/formaai/ledger-api/internal/pkg/response"
)

// AdjustCredits handles POST /admin/users/{id}/credits
func (h *Handler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req AdjustCreditsRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	adj, err := h.service.AdjustUserCredits(r.Context(), middleware.GetUserID(r), userID, req.Amount, req.Reason, Direction(req.Direction))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, adj)
}

// GetUserCredits handles GET /admin/users/{id}/credits
func (h *Handler) GetUserCredits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	credits, err := h.service.GetUserCredits(r.Context(), userID, r.URL.Query().Get("cursor"), queryInt(r, "limit", 20))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, credits)
}
