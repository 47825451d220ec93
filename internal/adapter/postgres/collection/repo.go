// Package collection implements the collections repository using PostgreSQL.
// It owns the collections table and the owned_games ownership-link junction.
package collection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// Repo provides collection persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new collection repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// GetOrCreate returns the collection for a username, creating it if absent.
// Creation is idempotent under concurrent callers (ON CONFLICT + reselect).
func (r *Repo) GetOrCreate(ctx context.Context, username string) (*domain.Collection, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx,
		`INSERT INTO collections (id, username) VALUES ($1, $2)
		 ON CONFLICT (username) DO NOTHING`,
		uuid.New(), username,
	)
	if err != nil {
		return nil, postgres.MapError(err, "collection", username)
	}

	var c domain.Collection
	err = q.QueryRow(ctx,
		`SELECT id, username, created_at FROM collections WHERE username = $1`, username,
	).Scan(&c.ID, &c.Username, &c.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "collection", username)
	}
	return &c, nil
}

// ListUsernames returns all collection usernames sorted ascending.
func (r *Repo) ListUsernames(ctx context.Context) ([]string, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, `SELECT username FROM collections ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list collection usernames: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListOwnedGameIDs returns the game ids currently linked to a collection.
func (r *Repo) ListOwnedGameIDs(ctx context.Context, collectionID uuid.UUID) ([]uuid.UUID, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`SELECT game_id FROM owned_games WHERE collection_id = $1`, collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list owned game ids: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owned game id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddLinks inserts ownership links for the given games, skipping existing
// ones. Used by incremental chunk application, which never deletes.
func (r *Repo) AddLinks(ctx context.Context, collectionID uuid.UUID, gameIDs []uuid.UUID) (int, error) {
	if len(gameIDs) == 0 {
		return 0, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)

	batch := &pgx.Batch{}
	for _, gid := range gameIDs {
		batch.Queue(
			`INSERT INTO owned_games (collection_id, game_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			collectionID, gid,
		)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range batch.Len() {
		tag, err := results.Exec()
		if err != nil {
			return created, fmt.Errorf("add ownership links: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// ReconcileLinks sets a collection's ownership links to exactly the given
// game set: missing links are created, links outside the set deleted. It
// returns the game ids whose links were removed, so the caller can recompute
// their derived ownership even when they fall outside the synced set.
func (r *Repo) ReconcileLinks(ctx context.Context, collectionID uuid.UUID, gameIDs []uuid.UUID) ([]uuid.UUID, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`DELETE FROM owned_games WHERE collection_id = $1 AND game_id != ALL($2::uuid[])
		 RETURNING game_id`,
		collectionID, gameIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("delete stale ownership links: %w", err)
	}
	defer rows.Close()

	var removed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan removed link game id: %w", err)
		}
		removed = append(removed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := r.AddLinks(ctx, collectionID, gameIDs); err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteExcept removes every collection whose username is not in the keep
// set and returns the ids of games that were linked to the deleted
// collections, so the caller can recompute their derived ownership.
func (r *Repo) DeleteExcept(ctx context.Context, keepUsernames []string) ([]uuid.UUID, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`SELECT DISTINCT og.game_id
		 FROM owned_games og
		 JOIN collections c ON c.id = og.collection_id
		 WHERE c.username != ALL($1::text[])`,
		keepUsernames,
	)
	if err != nil {
		return nil, fmt.Errorf("list orphaned game ids: %w", err)
	}
	defer rows.Close()

	var orphaned []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphaned game id: %w", err)
		}
		orphaned = append(orphaned, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Links cascade with the collections.
	_, err = q.Exec(ctx,
		`DELETE FROM collections WHERE username != ALL($1::text[])`, keepUsernames,
	)
	if err != nil {
		return nil, fmt.Errorf("delete untracked collections: %w", err)
	}
	return orphaned, nil
}
