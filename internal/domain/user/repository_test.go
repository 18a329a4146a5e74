package user_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/pkg/database"
)

func setupTestDB(t *testing.T) *sqlx.DB {
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
	t.Cleanup(func() { db.Close() })
	return db
}

func rowVersion(t *testing.T, db *sqlx.DB, id string) string {
	var xmin string
	require.NoError(t, db.Get(&xmin, `SELECT xmin::text FROM users WHERE id = $1`, id))
	return xmin
}

func TestEnsureUserReadsExistingAccountWithoutWriting(t *testing.T) {
	db := setupTestDB(t)
	repo := user.NewRepository(db)
	ctx := context.Background()
	id := "ensure-" + uuid.New().String()
	t.Cleanup(func() { db.Exec(`DELETE FROM users WHERE id = $1`, id) })

	created, err := repo.EnsureUser(ctx, id, id+"@test.com", "Test")
	require.NoError(t, err)
	require.Equal(t, user.RoleUser, created.Role)
	version := rowVersion(t, db, id)

	again, err := repo.EnsureUser(ctx, id, "other@test.com", "Other")
	require.NoError(t, err)
	require.Equal(t, id+"@test.com", again.Email)
	require.Equal(t, version, rowVersion(t, db, id))
}

func TestEnsureUserConcurrentFirstSight(t *testing.T) {
	db := setupTestDB(t)
	repo := user.NewRepository(db)
	id := "ensure-" + uuid.New().String()
	t.Cleanup(func() { db.Exec(`DELETE FROM users WHERE id = $1`, id) })

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := repo.EnsureUser(context.Background(), id, id+"@test.com", "")
			if err == nil && u.ID != id {
				err = user.ErrUserNotFound
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM users WHERE id = $1`, id))
	require.Equal(t, 1, count)
}
