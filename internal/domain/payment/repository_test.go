package payment_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/formaai/ledger-api/internal/domain/credit"
	"github.com/formaai/ledger-api/internal/domain/payment"
	"github.com/formaai/ledger-api/internal/pkg/database"
	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
)

func setupTestDB(t *testing.T) (*sqlx.DB, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("db not available: %v", err)
	}
	require.NoError(t, database.MigrateUp(db))

	userID := "pay-" + uuid.New().String()
	_, err = db.Exec(`INSERT INTO users (id, email) VALUES ($1, $2)`, userID, userID+"@test.com")
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Exec(`DELETE FROM credit_transactions WHERE user_id = $1`, userID)
		db.Exec(`DELETE FROM payments WHERE user_id = $1`, userID)
		db.Exec(`DELETE FROM users WHERE id = $1`, userID)
		db.Close()
	})
	return db, userID
}

func balanceOf(t *testing.T, db *sqlx.DB, userID string) int64 {
	var b int64
	require.NoError(t, db.Get(&b, `SELECT credit_balance FROM users WHERE id = $1`, userID))
	return b
}

func TestRepositoryGrantOnceConcurrent(t *testing.T) {
	db, userID := setupTestDB(t)
	store := payment.NewRepository(db, credit.NewRepository(db))
	captureID := "cap_" + uuid.New().String()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.GrantOnce(context.Background(), payment.Grant{Payment: payment.Payment{
				UserID:            userID,
				PackID:            "starter",
				AmountMinor:       999,
				Currency:          "USD",
				Credits:           100,
				Provider:          pkgpayment.ProviderPayPal,
				OrderID:           "O-race",
				CaptureID:         captureID,
				CorrelationSource: pkgpayment.SourcePayload,
				RawPayload:        []byte(`{"id":"evt"}`),
			}})
			if err != nil {
				t.Errorf("grant: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, granted)
	require.Equal(t, int64(100), balanceOf(t, db, userID))

	var entries int
	require.NoError(t, db.Get(&entries, `SELECT COUNT(*) FROM credit_transactions WHERE user_id = $1 AND reference = $2`, userID, captureID))
	require.Equal(t, 1, entries)
}

func TestRepositoryPendingFailAndRefund(t *testing.T) {
	db, userID := setupTestDB(t)
	ctx := context.Background()
	store := payment.NewRepository(db, credit.NewRepository(db))

	base := payment.Payment{
		UserID:            userID,
		PackID:            "starter",
		AmountMinor:       999,
		Currency:          "USD",
		Credits:           100,
		Provider:          pkgpayment.ProviderPaymob,
		OrderID:           "9001",
		CorrelationSource: pkgpayment.SourceReference,
		RawPayload:        []byte("id=1&success=true"),
	}

	failed := base
	failed.CaptureID = "tx-" + uuid.New().String()
	p, err := store.RecordPending(ctx, failed)
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, p.Status)

	n, err := store.FailPending(ctx, pkgpayment.ProviderPaymob, failed.CaptureID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	settled := base
	settled.CaptureID = "tx-" + uuid.New().String()
	_, err = store.RecordPending(ctx, settled)
	require.NoError(t, err)
	granted, ok, err := store.GrantOnce(ctx, payment.Grant{Payment: settled})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payment.StatusCompleted, granted.Status)

	_, err = db.Exec(`UPDATE users SET credit_balance = 40 WHERE id = $1`, userID)
	require.NoError(t, err)

	refunded, res, err := store.RefundOnce(ctx, payment.Refund{
		Target:  payment.Locator{ID: granted.ID},
		ActorID: "admin-1",
		Reason:  "chargeback",
	})
	require.NoError(t, err)
	require.Equal(t, payment.StatusRefunded, refunded.Status)
	require.Equal(t, int64(60), res.Deficit)
	require.Equal(t, int64(60), refunded.RefundDeficit)
	require.Equal(t, int64(0), balanceOf(t, db, userID))

	_, _, err = store.RefundOnce(ctx, payment.Refund{Target: payment.Locator{Provider: pkgpayment.ProviderPaymob, CaptureID: settled.CaptureID}})
	require.ErrorIs(t, err, payment.ErrAlreadyRefunded)

	_, _, err = store.RefundOnce(ctx, payment.Refund{Target: payment.Locator{Provider: pkgpayment.ProviderPaymob, CaptureID: failed.CaptureID}})
	require.ErrorIs(t, err, payment.ErrNotRefundable)

	list, err := store.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestRepositoryFailPendingIsScopedToCapture(t *testing.T) {
	db, userID := setupTestDB(t)
	ctx := context.Background()
	store := payment.NewRepository(db, credit.NewRepository(db))

	attempt := func(captureID string) payment.Payment {
		return payment.Payment{
			UserID:            userID,
			PackID:            "starter",
			AmountMinor:       999,
			Currency:          "USD",
			Credits:           100,
			Provider:          pkgpayment.ProviderPayPal,
			OrderID:           "order-" + userID,
			CaptureID:         captureID,
			CorrelationSource: pkgpayment.SourcePayload,
		}
	}
	a := attempt("cap-a-" + uuid.New().String())
	b := attempt("cap-b-" + uuid.New().String())

	_, err := store.RecordPending(ctx, a)
	require.NoError(t, err)

	n, err := store.FailPending(ctx, pkgpayment.ProviderPayPal, b.CaptureID)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	n, err = store.FailPending(ctx, pkgpayment.ProviderPayPal, "")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	stale, err := store.List(ctx, payment.Filter{UserID: userID, Status: payment.StatusPending, CreatedBefore: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, stale, 1)

	granted, ok, err := store.GrantOnce(ctx, payment.Grant{Payment: a})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payment.StatusCompleted, granted.Status)
	require.Equal(t, int64(100), balanceOf(t, db, userID))

	// a settlement for a failed capture leaves the ledger untouched
	_, err = store.RecordPending(ctx, b)
	require.NoError(t, err)
	n, err = store.FailPending(ctx, pkgpayment.ProviderPayPal, b.CaptureID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	existing, ok, err := store.GrantOnce(ctx, payment.Grant{Payment: b})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, payment.StatusFailed, existing.Status)
	require.Equal(t, int64(100), balanceOf(t, db, userID))
}
