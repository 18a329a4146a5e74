package admin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/formaai/ledger-api/internal/domain/admin"
	"github.com/formaai/ledger-api/internal/domain/auth"
	"github.com/formaai/ledger-api/internal/domain/payment"
	"github.com/formaai/ledger-api/internal/domain/user"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type adminFixture struct {
	ledger   *fakeLedger
	payments *fakePayments
	users    *fakeUsers
	audit    *fakeAudit
	router   http.Handler
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		ledger: &fakeLedger{balances: map[string]int64{"u1": 20, "a1": 0}},
		users: &fakeUsers{users: map[string]*user.User{
			"u1": {ID: "u1", Role: user.RoleUser},
			"a1": {ID: "a1", Role: user.RoleAdmin},
		}},
		audit: &fakeAudit{},
	}
	f.payments = &fakePayments{payments: map[uuid.UUID]*payment.Payment{}, refs: map[string]uuid.UUID{}, ledger: f.ledger}

	h := admin.NewHandler(admin.NewService(f.audit, f.ledger, f.payments, f.users))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Test-User"); id != "" {
				role := user.RoleUser
				if id == "a1" {
					role = user.RoleAdmin
				}
				r = r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UserID: id, Role: role}))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Mount("/api/admin", h.Routes())
	f.router = r
	return f
}

func (f *adminFixture) do(t *testing.T, method, path, as, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if as != "" {
		req.Header.Set("X-Test-User", as)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAdminFixture()

	code, _ := f.do(t, http.MethodGet, "/api/admin/ledger/drift", "", "")
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodPost, "/api/admin/users/u1/credits", "u1", `{"amount":5,"direction":"add","reason":"self grant"}`)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, int64(20), f.ledger.balances["u1"])
}

func TestAdminAdjustCreditsEndpoint(t *testing.T) {
	f := newAdminFixture()

	code, env := f.do(t, http.MethodPost, "/api/admin/users/u1/credits", "a1", `{"amount":30,"direction":"deduct","reason":"chargeback"}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "INSUFFICIENT_CREDITS", env.Error.Code)

	code, env = f.do(t, http.MethodPost, "/api/admin/users/u1/credits", "a1", `{"amount":10,"direction":"sideways","reason":"bad enum"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)

	code, env = f.do(t, http.MethodPost, "/api/admin/users/u1/credits", "a1", `{"amount":10,"direction":"add","reason":"goodwill"}`)
	require.Equal(t, http.StatusOK, code)
	var adj admin.CreditAdjustment
	require.NoError(t, json.Unmarshal(env.Data, &adj))
	require.Equal(t, int64(30), adj.Balance)

	code, env = f.do(t, http.MethodGet, "/api/admin/users/u1/credits", "a1", "")
	require.Equal(t, http.StatusOK, code)
	var uc admin.UserCredits
	require.NoError(t, json.Unmarshal(env.Data, &uc))
	require.Equal(t, int64(30), uc.Balance)
	require.Len(t, uc.Transactions, 1)
}

func TestAdminSelfSuspendRejected(t *testing.T) {
	f := newAdminFixture()

	code, env := f.do(t, http.MethodPost, "/api/admin/users/a1/suspend", "a1", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "INVALID_OPERATION", env.Error.Code)
	require.Contains(t, env.Error.Message, "cannot suspend your own account")
	require.False(t, f.users.users["a1"].IsSuspended)

	code, _ = f.do(t, http.MethodPatch, "/api/admin/users/a1/role", "a1", `{"role":"user"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, user.RoleAdmin, f.users.users["a1"].Role)

	code, _ = f.do(t, http.MethodPost, "/api/admin/users/u1/suspend", "a1", "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, f.users.users["u1"].IsSuspended)
}

func TestAdminRefundEndpoint(t *testing.T) {
	f := newAdminFixture()
	p := &payment.Payment{ID: uuid.New(), UserID: "u1", Credits: 10, Status: payment.StatusCompleted}
	f.payments.payments[p.ID] = p
	path := "/api/admin/payments/" + p.ID.String()

	code, env := f.do(t, http.MethodPatch, path, "a1", `{"action":"complete","reason":"typo"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "INVALID_OPERATION", env.Error.Code)

	code, _ = f.do(t, http.MethodPatch, path, "a1", `{"action":"refund","reason":"customer request"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(10), f.ledger.balances["u1"])

	code, env = f.do(t, http.MethodPatch, path, "a1", `{"action":"refund","reason":"customer request"}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "ALREADY_REFUNDED", env.Error.Code)
	require.Equal(t, "Payment already refunded", env.Error.Message)

	code, _ = f.do(t, http.MethodPatch, "/api/admin/payments/"+uuid.New().String(), "a1", `{"action":"refund","reason":"unknown"}`)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPatch, "/api/admin/payments/not-a-uuid", "a1", `{"action":"refund","reason":"unknown"}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAdminManualCreditEndpoint(t *testing.T) {
	f := newAdminFixture()
	body := `{"user_id":"u1","credits":40,"reference":"wire-9","reason":"bank transfer"}`

	code, _ := f.do(t, http.MethodPost, "/api/admin/payments/manual-credit", "a1", body)
	require.Equal(t, http.StatusCreated, code)

	code, env := f.do(t, http.MethodPost, "/api/admin/payments/manual-credit", "a1", body)
	require.Equal(t, http.StatusOK, code)
	var out admin.ManualCreditResult
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.True(t, out.Duplicate)
	require.Equal(t, int64(60), f.ledger.balances["u1"])

	code, _ = f.do(t, http.MethodPost, "/api/admin/payments/manual-credit", "a1", `{"user_id":"u1","reference":"wire-10","reason":"no amount"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestAdminRoutesRegistered(t *testing.T) {
	h := admin.NewHandler(nil)
	patterns := map[string]bool{}
	err := chi.Walk(h.Routes(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		patterns[method+" "+route] = true
		return nil
	})
	require.NoError(t, err)

	for _, want := range []string{
		"PATCH /payments/{id}",
		"POST /payments/manual-credit",
		"GET /payments/",
		"POST /users/{id}/credits/",
		"GET /users/{id}/credits/",
		"PATCH /users/{id}/role",
		"POST /users/{id}/suspend",
		"POST /users/{id}/unsuspend",
		"GET /ledger/drift",
	} {
		require.True(t, patterns[want], "missing route %s", want)
	}
}
