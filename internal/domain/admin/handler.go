package admin

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formaai/ledger-api/internal/domain/auth"
	"github.com/formaai/ledger-api/internal/domain/credit"
	"github.com/formaai/ledger-api/internal/domain/payment"
	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/middleware"
	"github.com/formaai/ledger-api/internal/pkg/errorhandler"
	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
	"github.com/formaai/ledger-api/internal/pkg/response"
	"github.com/formaai/ledger-api/internal/pkg/validator"
)

// Handler handles admin HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates admin handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// --- Payments ---

// UpdatePayment handles PATCH /admin/payments/{id}
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid payment ID")
		return
	}

	var req UpdatePaymentRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}
	if req.Action != "refund" {
		h.writeError(w, r, ErrInvalidAction)
		return
	}

	p, err := h.service.RefundPayment(r.Context(), middleware.GetUserID(r), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, p)
}

// ManualCredit handles POST /admin/payments/manual-credit
func (h *Handler) ManualCredit(w http.ResponseWriter, r *http.Request) {
	var req ManualCreditRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	out, err := h.service.ManualCredit(r.Context(), middleware.GetUserID(r), ManualCreditInput{
		UserID:    req.UserID,
		PackID:    req.PackID,
		Credits:   req.Credits,
		Reference: req.Reference,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if out.Duplicate {
		status = http.StatusOK
	}
	response.JSON(w, status, out)
}

// ListPayments handles GET /admin/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := payment.Filter{
		UserID:   q.Get("user_id"),
		Provider: q.Get("provider"),
		Status:   payment.Status(q.Get("status")),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	payments, err := h.service.ListPayments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"payments": payments,
		"limit":    f.Limit,
		"offset":   f.Offset,
	})
}

// GetPayment handles GET /admin/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid payment ID")
		return
	}

	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, p)
}

// --- Reports ---

// LedgerDrift handles GET /admin/ledger/drift
func (h *Handler) LedgerDrift(w http.ResponseWriter, r *http.Request) {
	drift, err := h.service.LedgerDrift(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if drift == nil {
		drift = []credit.Drift{}
	}
	response.OK(w, map[string]interface{}{
		"accounts": drift,
		"count":    len(drift),
	})
}

// AuditLogs handles GET /admin/audit/logs
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := h.service.ListAuditLogs(r.Context(), AuditFilter{
		AdminID:    q.Get("admin_id"),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, logs)
}

// --- Helpers ---

// decodeAndValidate writes the error response itself and reports whether
// the handler should continue. An empty body is accepted when optional.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	if err := response.DecodeJSON(r.Body, dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			response.BadRequest(w, "Invalid JSON body")
			return false
		}
	}
	if errs := validator.Validate(dst); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// writeError maps the error taxonomy to statuses. Admins see the reason.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidOperation):
		response.Error(w, http.StatusBadRequest, "INVALID_OPERATION", err.Error())
	case errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrReasonRequired),
		errors.Is(err, credit.ErrInvalidCursor),
		errors.Is(err, pkgpayment.ErrMalformedPayload):
		response.BadRequest(w, err.Error())
	case errors.Is(err, pkgpayment.ErrInvalidPack):
		response.Error(w, http.StatusBadRequest, "INVALID_PACK", err.Error())
	case errors.Is(err, credit.ErrInsufficientCredits):
		response.Error(w, http.StatusConflict, "INSUFFICIENT_CREDITS", "Insufficient credits")
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, payment.ErrPaymentNotFound):
		response.NotFound(w, "Payment not found")
	case errors.Is(err, payment.ErrAlreadyRefunded):
		response.Error(w, http.StatusConflict, "ALREADY_REFUNDED", "Payment already refunded")
	case errors.Is(err, payment.ErrNotRefundable):
		response.Error(w, http.StatusConflict, "NOT_REFUNDABLE", "Only completed payments can be refunded")
	case errors.Is(err, payment.ErrDuplicateReference), errors.Is(err, credit.ErrDuplicateReference):
		response.Error(w, http.StatusConflict, "DUPLICATE_REFERENCE", "Reference already used for another user")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}
