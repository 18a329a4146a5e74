package auth

import (
	"net/http"

	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/pkg/errorhandler"
	"github.com/formaai/ledger-api/internal/pkg/response"
)

// Handler serves the resolved caller's own account.
type Handler struct {
	users user.Repository
}

// NewHandler creates auth handler
func NewHandler(users user.Repository) *Handler {
	return &Handler{users: users}
}

// Me handles GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	if id == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	u, err := h.users.GetByID(r.Context(), id.UserID)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}
	if u == nil {
		response.NotFound(w, "User not found")
		return
	}
	response.OK(w, u.ToProfile())
}
