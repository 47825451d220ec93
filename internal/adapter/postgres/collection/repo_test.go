package collection_test

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/bggcatalog/internal/adapter/postgres/collection"
	"github.com/heartmarshall/bggcatalog/internal/adapter/postgres/testhelper"
)

func newRepo(t *testing.T) (*collection.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return collection.New(pool), pool
}

func TestRepo_GetOrCreate(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	username := "alice-" + uuid.New().String()[:8]

	first, err := repo.GetOrCreate(ctx, username)
	if err != nil {
		t.Fatalf("GetOrCreate first: %v", err)
	}
	if first.Username != username {
		t.Errorf("Username mismatch: got %q", first.Username)
	}
	if first.ID == uuid.Nil {
		t.Error("expected non-nil collection ID")
	}

	second, err := repo.GetOrCreate(ctx, username)
	if err != nil {
		t.Fatalf("GetOrCreate second: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("GetOrCreate must be idempotent: %s vs %s", second.ID, first.ID)
	}
}

func TestRepo_AddLinks_SkipsExisting(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	g1 := testhelper.SeedGame(t, pool)
	g2 := testhelper.SeedGame(t, pool)
	c := testhelper.SeedCollection(t, pool, g1.ID)

	created, err := repo.AddLinks(ctx, c.ID, []uuid.UUID{g1.ID, g2.ID})
	if err != nil {
		t.Fatalf("AddLinks: %v", err)
	}
	if created != 1 {
		t.Errorf("AddLinks created %d links, want 1 (g1 already linked)", created)
	}

	ids, err := repo.ListOwnedGameIDs(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListOwnedGameIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 links, got %d", len(ids))
	}
}

func TestRepo_AddLinks_Empty(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	c := testhelper.SeedCollection(t, pool)

	created, err := repo.AddLinks(context.Background(), c.ID, nil)
	if err != nil {
		t.Fatalf("AddLinks(nil): %v", err)
	}
	if created != 0 {
		t.Errorf("AddLinks(nil) = %d, want 0", created)
	}
}

func TestRepo_ReconcileLinks(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	g1 := testhelper.SeedGame(t, pool)
	g2 := testhelper.SeedGame(t, pool)
	g3 := testhelper.SeedGame(t, pool)
	c := testhelper.SeedCollection(t, pool, g1.ID, g2.ID)

	// g1 stays, g2 goes, g3 arrives.
	removed, err := repo.ReconcileLinks(ctx, c.ID, []uuid.UUID{g1.ID, g3.ID})
	if err != nil {
		t.Fatalf("ReconcileLinks: %v", err)
	}
	if len(removed) != 1 || removed[0] != g2.ID {
		t.Errorf("removed = %v, want [%s]", removed, g2.ID)
	}

	ids, err := repo.ListOwnedGameIDs(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListOwnedGameIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 links, got %d", len(ids))
	}
	for _, id := range ids {
		if id != g1.ID && id != g3.ID {
			t.Errorf("unexpected link %s", id)
		}
	}
}

func TestRepo_ReconcileLinks_EmptyClearsAll(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	g := testhelper.SeedGame(t, pool)
	c := testhelper.SeedCollection(t, pool, g.ID)

	removed, err := repo.ReconcileLinks(ctx, c.ID, nil)
	if err != nil {
		t.Fatalf("ReconcileLinks(nil): %v", err)
	}
	if len(removed) != 1 || removed[0] != g.ID {
		t.Errorf("removed = %v, want [%s]", removed, g.ID)
	}

	ids, err := repo.ListOwnedGameIDs(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListOwnedGameIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no links, got %d", len(ids))
	}
}

// Runs sequentially: DeleteExcept touches the whole collections table.
func TestRepo_DeleteExcept(t *testing.T) {
	repo, pool := newRepo(t)
	ctx := context.Background()

	shared := testhelper.SeedGame(t, pool)
	only := testhelper.SeedGame(t, pool)
	keep := testhelper.SeedCollection(t, pool, shared.ID)
	drop := testhelper.SeedCollection(t, pool, shared.ID, only.ID)

	// Keep every existing collection except "drop".
	usernames, err := repo.ListUsernames(ctx)
	if err != nil {
		t.Fatalf("ListUsernames: %v", err)
	}
	keepSet := usernames[:0]
	for _, u := range usernames {
		if u != drop.Username {
			keepSet = append(keepSet, u)
		}
	}

	orphaned, err := repo.DeleteExcept(ctx, keepSet)
	if err != nil {
		t.Fatalf("DeleteExcept: %v", err)
	}

	// Both of drop's games come back for ownership recompute, even the one
	// still owned by the surviving collection.
	sort.Slice(orphaned, func(i, j int) bool { return orphaned[i].String() < orphaned[j].String() })
	if len(orphaned) != 2 {
		t.Fatalf("orphaned = %v, want 2 game ids", orphaned)
	}
	for _, id := range orphaned {
		if id != shared.ID && id != only.ID {
			t.Errorf("unexpected orphaned id %s", id)
		}
	}

	remaining, err := repo.ListUsernames(ctx)
	if err != nil {
		t.Fatalf("ListUsernames after delete: %v", err)
	}
	for _, u := range remaining {
		if u == drop.Username {
			t.Error("dropped collection still present")
		}
	}
	found := false
	for _, u := range remaining {
		if u == keep.Username {
			found = true
		}
	}
	if !found {
		t.Error("kept collection disappeared")
	}

	// Links cascade.
	ids, err := repo.ListOwnedGameIDs(ctx, drop.ID)
	if err != nil {
		t.Fatalf("ListOwnedGameIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("links of the dropped collection must cascade, got %d", len(ids))
	}
}
