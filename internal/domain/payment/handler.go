package payment

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/middleware"
	"github.com/formaai/ledger-api/internal/pkg/errorhandler"
	"github.com/formaai/ledger-api/internal/pkg/logger"
	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
	"github.com/formaai/ledger-api/internal/pkg/response"
	"github.com/formaai/ledger-api/internal/pkg/validator"
)

const maxWebhookBytes = 1 << 20

// Handler handles payment HTTP requests
type Handler struct {
	service     *Service
	frontendURL string
}

// NewHandler creates payment handler
func NewHandler(service *Service, frontendURL string) *Handler {
	return &Handler{service: service, frontendURL: frontendURL}
}

// UserRoutes registers the authenticated purchase endpoints.
func (h *Handler) UserRoutes(r chi.Router) {
	r.Post("/create-checkout", h.CreateCheckout)
	r.Post("/capture-order", h.CaptureOrder)
	r.Get("/payments", h.ListPayments)
	r.Get("/packs", h.ListPacks)
}

// WebhookRoutes registers the provider callbacks under /webhooks.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/paypal", h.PayPalWebhook)
	r.Post("/paymob", h.PaymobWebhook)
	r.Get("/paymob", h.PaymobRedirect)
}

type CreateCheckoutRequest struct {
	Provider string `json:"provider" validate:"required,provider"`
	PackID   string `json:"pack_id" validate:"required,pack_id"`
}

type CaptureOrderRequest struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
}

type CaptureOrderResponse struct {
	PaymentID   string `json:"payment_id"`
	Status      Status `json:"status"`
	Credits     int64  `json:"credits"`
	Duplicate   bool   `json:"duplicate"`
	NeedsReview bool   `json:"needs_review,omitempty"`
}

// CreateCheckout handles POST /create-checkout
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req CreateCheckoutRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	order, err := h.service.CreateCheckout(r.Context(), userID, req.Provider, req.PackID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	response.Created(w, order)
}

// CaptureOrder handles POST /capture-order
func (h *Handler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req CaptureOrderRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.service.CaptureOrder(r.Context(), userID, req.OrderID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	if out.Payment == nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", errors.New("capture returned no payment record"))
		return
	}

	status := http.StatusOK
	if out.Payment.Status == StatusPending || out.NeedsReview {
		status = http.StatusAccepted
	}
	response.JSON(w, status, CaptureOrderResponse{
		PaymentID:   out.Payment.ID.String(),
		Status:      out.Payment.Status,
		Credits:     out.Payment.Credits,
		Duplicate:   out.Duplicate,
		NeedsReview: out.NeedsReview,
	})
}

// ListPayments handles GET /payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	payments, err := h.service.ListPayments(r.Context(), userID, limit)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}
	response.OK(w, payments)
}

// ListPacks handles GET /packs
func (h *Handler) ListPacks(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{
		"packs":     h.service.Packs(),
		"providers": h.service.Providers(),
	})
}

// PayPalWebhook handles POST /webhooks/paypal
func (h *Handler) PayPalWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, pkgpayment.ProviderPayPal)
}

// PaymobWebhook handles POST /webhooks/paymob?hmac=
func (h *Handler) PaymobWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, pkgpayment.ProviderPaymob)
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request, provider string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		response.BadRequest(w, "Cannot read body")
		return
	}

	out, err := h.service.HandleNotification(r.Context(), provider, pkgpayment.Notification{
		Method: r.Method,
		Header: r.Header,
		Query:  r.URL.Query(),
		Body:   body,
	})
	if err != nil {
		h.writeWebhookError(w, r, provider, err)
		return
	}

	response.OK(w, map[string]any{
		"received":     true,
		"status":       out.Status,
		"duplicate":    out.Duplicate,
		"needs_review": out.NeedsReview,
	})
}

// PaymobRedirect handles GET /webhooks/paymob, the buyer's return from the
// hosted checkout. The query is a signed transaction and is applied like a
// webhook before the buyer is sent to the frontend.
func (h *Handler) PaymobRedirect(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.HandleNotification(r.Context(), pkgpayment.ProviderPaymob, pkgpayment.Notification{
		Method: http.MethodGet,
		Header: r.Header,
		Query:  r.URL.Query(),
	})

	target := h.frontendURL + "/payment/fail"
	q := url.Values{"provider": {pkgpayment.ProviderPaymob}}
	switch {
	case err != nil:
		logger.FromContext(r.Context()).Warn().Err(err).Msg("paymob redirect not applied")
	case out.NeedsReview:
		target = h.frontendURL + "/payment/pending"
	case out.Status == pkgpayment.EventSucceeded:
		target = h.frontendURL + "/payment/success"
	case out.Status == pkgpayment.EventPending:
		target = h.frontendURL + "/payment/pending"
	}
	if err == nil && out.Payment != nil {
		q.Set("payment_id", out.Payment.ID.String())
	}

	http.Redirect(w, r, target+"?"+q.Encode(), http.StatusFound)
}

// writeUserError maps failures to generic end-user messages.
func (h *Handler) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, pkgpayment.ErrInvalidPack):
		response.BadRequest(w, "Unknown credit pack")
	case errors.Is(err, pkgpayment.ErrUnknownProvider):
		response.BadRequest(w, "Payment provider not available")
	case errors.Is(err, pkgpayment.ErrMalformedPayload):
		response.BadRequest(w, "Invalid payment request")
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(w, "Order does not belong to you")
	case errors.Is(err, ErrCaptureNotCompleted):
		response.Unprocessable(w, "PAYMENT_NOT_COMPLETED", "Payment was not completed")
	case errors.Is(err, ErrUnresolvableOrder):
		errorhandler.HandleError(ctx, w, http.StatusUnprocessableEntity, "UNRESOLVABLE_ORDER", "Payment could not be verified", err)
	case errors.Is(err, pkgpayment.ErrGatewayUnavailable):
		errorhandler.HandleError(ctx, w, http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment provider is unavailable, please retry", err)
	default:
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}

func (h *Handler) writeWebhookError(w http.ResponseWriter, r *http.Request, provider string, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, ErrVerificationFailed):
		response.Error(w, http.StatusBadRequest, "VERIFICATION_FAILED", "Verification failed")
	case errors.Is(err, pkgpayment.ErrMalformedPayload):
		response.BadRequest(w, "Malformed payload")
	case errors.Is(err, pkgpayment.ErrUnknownProvider):
		response.NotFound(w, "Provider not configured")
	case errors.Is(err, ErrUnresolvableOrder):
		errorhandler.HandleError(ctx, w, http.StatusUnprocessableEntity, "UNRESOLVABLE_ORDER", "Order cannot be resolved", err)
	default:
		logger.FromContext(ctx).Error().Err(err).Str("provider", provider).Msg("webhook processing failed")
		response.InternalError(w)
	}
}
