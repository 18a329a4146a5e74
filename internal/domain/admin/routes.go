package admin

import (
	"github.com/go-chi/chi/v5"

	"github.com/formaai/ledger-api/internal/middleware"
)

// Routes returns admin router. The caller mounts it behind the auth middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireAdmin())
	r.Use(CaptureRequestMeta)

	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.ListPayments)
		r.Post("/manual-credit", h.ManualCredit)
		r.Get("/{id}", h.GetPayment)
		r.Patch("/{id}", h.UpdatePayment)
	})

	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/", h.GetUser)
		r.Patch("/role", h.ChangeRole)
		r.Post("/suspend", h.Suspend)
		r.Post("/unsuspend", h.Unsuspend)

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", h.GetUserCredits)
			r.Post("/", h.AdjustCredits)
		})
	})

	r.Get("/ledger/drift", h.LedgerDrift)
	r.Get("/audit/logs", h.AuditLogs)

	return r
}
