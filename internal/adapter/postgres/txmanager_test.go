package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	postgres "github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	"github.com/heartmarshall/bggcatalog/internal/adapter/postgres/testhelper"
)

func trackedUserExists(t *testing.T, ctx context.Context, q postgres.Querier, username string) bool {
	t.Helper()
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("check tracked user: %v", err)
	}
	return exists
}

func TestTxManager_Commit(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	txm := postgres.NewTxManager(pool)
	ctx := context.Background()

	username := "tx-commit-" + uuid.New().String()[:8]

	err := txm.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, pool)
		_, err := q.Exec(ctx, `INSERT INTO tracked_users (username) VALUES ($1)`, username)
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	if !trackedUserExists(t, ctx, pool, username) {
		t.Error("committed row should be visible")
	}
}

func TestTxManager_RollbackOnError(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	txm := postgres.NewTxManager(pool)
	ctx := context.Background()

	username := "tx-rollback-" + uuid.New().String()[:8]
	wantErr := errors.New("abort")

	err := txm.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, pool)
		if _, err := q.Exec(ctx, `INSERT INTO tracked_users (username) VALUES ($1)`, username); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("RunInTx = %v, want original error", err)
	}

	if trackedUserExists(t, ctx, pool, username) {
		t.Error("rolled-back row should not be visible")
	}
}

func TestTxManager_RollbackOnPanic(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	txm := postgres.NewTxManager(pool)
	ctx := context.Background()

	username := "tx-panic-" + uuid.New().String()[:8]

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("panic should propagate")
			}
		}()
		_ = txm.RunInTx(ctx, func(ctx context.Context) error {
			q := postgres.QuerierFromCtx(ctx, pool)
			if _, err := q.Exec(ctx, `INSERT INTO tracked_users (username) VALUES ($1)`, username); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	if trackedUserExists(t, ctx, pool, username) {
		t.Error("row inserted before panic should be rolled back")
	}
}

func TestQuerierFromCtx_FallsBackToPool(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)

	q := postgres.QuerierFromCtx(context.Background(), pool)

	var one int
	if err := q.QueryRow(context.Background(), `SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query via pool: %v", err)
	}
	if one != 1 {
		t.Errorf("got %d", one)
	}
}
