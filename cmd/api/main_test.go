package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/formaai/ledger-api/internal/domain/admin"
	"github.com/formaai/ledger-api/internal/domain/auth"
	"github.com/formaai/ledger-api/internal/domain/credit"
	"github.com/formaai/ledger-api/internal/domain/payment"
	"github.com/formaai/ledger-api/internal/pkg/response"
)

func testRouter(health func(context.Context) error) chi.Router {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			response.Unauthorized(w, "Missing authorization header")
		})
	}
	return newRouter(routerHandlers{
		auth:    auth.NewHandler(nil),
		credit:  credit.NewHandler(nil),
		payment: payment.NewHandler(nil, "http://front"),
		admin:   admin.NewHandler(nil),
	}, deny, []string{"http://front"}, health)
}

func TestRouterRegistersSurface(t *testing.T) {
	patterns := map[string]bool{}
	if err := chi.Walk(testRouter(nil), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		patterns[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk routes: %v", err)
	}

	for _, want := range []string{
		"GET /health",
		"POST /api/create-checkout",
		"POST /api/capture-order",
		"POST /api/webhooks/paypal",
		"POST /api/webhooks/paymob",
		"GET /api/webhooks/paymob",
		"GET /api/me",
		"GET /api/credits/balance",
		"GET /api/credits/transactions",
		"GET /api/payments",
		"GET /api/packs",
		"PATCH /api/admin/payments/{id}",
		"POST /api/admin/payments/manual-credit",
		"POST /api/admin/users/{id}/credits/",
		"GET /api/admin/ledger/drift",
	} {
		if !patterns[want] {
			t.Errorf("expected %s to be registered", want)
		}
	}
}

func TestRouterAuthBoundary(t *testing.T) {
	root := testRouter(nil)

	for _, path := range []string{"/api/me", "/api/credits/balance", "/api/admin/ledger/drift"} {
		rr := httptest.NewRecorder()
		root.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(func(context.Context) error { return nil }).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	testRouter(func(context.Context) error { return errors.New("down") }).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
