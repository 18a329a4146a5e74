package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/middleware"
	"github.com/formaai/ledger-api/internal/pkg/response"
)

// GetUser handles GET /admin/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, u.ToProfile())
}

// ChangeRole handles PATCH /admin/users/{id}/role
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	u, err := h.service.ChangeRole(r.Context(), middleware.GetUserID(r), chi.URLParam(r, "id"), user.Role(req.Role), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, u.ToProfile())
}

// Suspend handles POST /admin/users/{id}/suspend
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	var req SuspensionRequest
	if !decodeAndValidate(w, r, &req, true) {
		return
	}

	u, err := h.service.Suspend(r.Context(), middleware.GetUserID(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, u.ToProfile())
}

// Unsuspend handles POST /admin/users/{id}/unsuspend
func (h *Handler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	var req SuspensionRequest
	if !decodeAndValidate(w, r, &req, true) {
		return
	}

	u, err := h.service.Unsuspend(r.Context(), middleware.GetUserID(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, u.ToProfile())
}
