// Package game implements the games repository using PostgreSQL.
// It owns the games table, the category/family vocabularies and their M2M
// join tables, the per-player-count recommendation rows, and the derived
// ownership fields.
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// Repo provides game persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new game repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// Games
// ---------------------------------------------------------------------------

const gameColumns = `id, bgg_id, title, kind, year, avg_rating, num_voters,
	weight, weight_votes, bgg_rank, owned, owned_by, created_at, updated_at`

const getByBGGIDsSQL = `
SELECT ` + gameColumns + `
FROM games
WHERE bgg_id = ANY($1::text[])`

// GetByBGGIDs returns the stored games for the given external ids, keyed by
// bgg_id. Missing ids are simply absent from the map.
func (r *Repo) GetByBGGIDs(ctx context.Context, bggIDs []string) (map[string]*domain.Game, error) {
	if len(bggIDs) == 0 {
		return map[string]*domain.Game{}, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, getByBGGIDsSQL, bggIDs)
	if err != nil {
		return nil, fmt.Errorf("get games by bgg_ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Game, len(bggIDs))
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("get games by bgg_ids: %w", err)
		}
		out[g.BGGID] = g
	}
	return out, rows.Err()
}

// BulkUpsert creates or updates games by bgg_id using pgx.Batch. The derived
// owned/owned_by fields are never written here; RecomputeOwnership is the
// only writer of those. Returns the number of statements executed.
func (r *Repo) BulkUpsert(ctx context.Context, games []*domain.Game) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}

	now := time.Now()

	batch := &pgx.Batch{}
	for _, g := range games {
		id := g.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(
			`INSERT INTO games (id, bgg_id, title, kind, year, avg_rating, num_voters,
			                    weight, weight_votes, bgg_rank, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			 ON CONFLICT (bgg_id) DO UPDATE SET
			     title        = EXCLUDED.title,
			     kind         = EXCLUDED.kind,
			     year         = EXCLUDED.year,
			     avg_rating   = EXCLUDED.avg_rating,
			     num_voters   = EXCLUDED.num_voters,
			     weight       = EXCLUDED.weight,
			     weight_votes = EXCLUDED.weight_votes,
			     bgg_rank     = EXCLUDED.bgg_rank,
			     updated_at   = EXCLUDED.updated_at`,
			id, g.BGGID, g.Title, string(g.Kind), g.Year, g.AvgRating, g.NumVoters,
			g.Weight, g.WeightVotes, g.BGGRank, now,
		)
	}

	return r.sendBatchExec(ctx, batch)
}

// CountNotIn returns how many stored games fall outside the candidate set.
func (r *Repo) CountNotIn(ctx context.Context, bggIDs []string) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var n int
	err := q.QueryRow(ctx,
		`SELECT count(*) FROM games WHERE bgg_id != ALL($1::text[])`, bggIDs,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count games outside candidate set: %w", err)
	}
	return n, nil
}

// DeleteNotIn prunes every game whose bgg_id is absent from the candidate
// set. Join rows and player-count rows go with them via ON DELETE CASCADE.
func (r *Repo) DeleteNotIn(ctx context.Context, bggIDs []string) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx,
		`DELETE FROM games WHERE bgg_id != ALL($1::text[])`, bggIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("prune games: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---------------------------------------------------------------------------
// Vocabulary (categories / families)
// ---------------------------------------------------------------------------

// EnsureCategories get-or-creates categories by unique name and returns a
// name → id map. Creation is idempotent (ON CONFLICT DO NOTHING + reselect).
func (r *Repo) EnsureCategories(ctx context.Context, names []string) (map[string]uuid.UUID, error) {
	return r.ensureVocab(ctx, "categories", names)
}

// EnsureFamilies is the family-vocabulary counterpart of EnsureCategories.
func (r *Repo) EnsureFamilies(ctx context.Context, names []string) (map[string]uuid.UUID, error) {
	return r.ensureVocab(ctx, "families", names)
}

func (r *Repo) ensureVocab(ctx context.Context, table string, names []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(names))
	if len(names) == 0 {
		return out, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)

	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(
			fmt.Sprintf(`INSERT INTO %s (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, table),
			uuid.New(), name,
		)
	}
	if _, err := r.sendBatchExec(ctx, batch); err != nil {
		return nil, fmt.Errorf("ensure %s: %w", table, err)
	}

	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT id, name FROM %s WHERE name = ANY($1::text[])`, table), names,
	)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out[name] = id
	}
	return out, rows.Err()
}

// ReplaceCategories sets a game's category associations to exactly the given
// set: stale links are deleted, missing ones inserted.
func (r *Repo) ReplaceCategories(ctx context.Context, gameID uuid.UUID, categoryIDs []uuid.UUID) error {
	return r.replaceLinks(ctx, "game_categories", "category_id", gameID, categoryIDs)
}

// ReplaceFamilies sets a game's family associations to exactly the given set.
func (r *Repo) ReplaceFamilies(ctx context.Context, gameID uuid.UUID, familyIDs []uuid.UUID) error {
	return r.replaceLinks(ctx, "game_families", "family_id", gameID, familyIDs)
}

func (r *Repo) replaceLinks(ctx context.Context, table, column string, gameID uuid.UUID, ids []uuid.UUID) error {
	batch := &pgx.Batch{}
	batch.Queue(
		fmt.Sprintf(`DELETE FROM %s WHERE game_id = $1 AND %s != ALL($2::uuid[])`, table, column),
		gameID, ids,
	)
	for _, id := range ids {
		batch.Queue(
			fmt.Sprintf(`INSERT INTO %s (game_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, column),
			gameID, id,
		)
	}
	if _, err := r.sendBatchExec(ctx, batch); err != nil {
		return fmt.Errorf("replace %s for game %s: %w", table, gameID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Player-count recommendations
// ---------------------------------------------------------------------------

// ReplacePlayerCounts reconciles a game's recommendation rows to exactly the
// incoming per-count set: rows for counts no longer present are deleted,
// existing counts are updated in place, new counts inserted.
func (r *Repo) ReplacePlayerCounts(ctx context.Context, gameID uuid.UUID, rows []domain.PlayerCountVotes) error {
	counts := make([]int, len(rows))
	for i, row := range rows {
		counts[i] = row.Count
	}

	batch := &pgx.Batch{}
	batch.Queue(
		`DELETE FROM player_count_recommendations
		 WHERE game_id = $1 AND count != ALL($2::int[])`,
		gameID, counts,
	)
	for _, row := range rows {
		batch.Queue(
			`INSERT INTO player_count_recommendations
			     (id, game_id, count, best_pct, best_votes, rec_pct, rec_votes,
			      notrec_pct, notrec_votes, vote_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (game_id, count) DO UPDATE SET
			     best_pct     = EXCLUDED.best_pct,
			     best_votes   = EXCLUDED.best_votes,
			     rec_pct      = EXCLUDED.rec_pct,
			     rec_votes    = EXCLUDED.rec_votes,
			     notrec_pct   = EXCLUDED.notrec_pct,
			     notrec_votes = EXCLUDED.notrec_votes,
			     vote_count   = EXCLUDED.vote_count`,
			uuid.New(), gameID, row.Count, row.BestPct, row.BestVotes, row.RecPct,
			row.RecVotes, row.NotRecPct, row.NotRecVotes, row.VoteCount,
		)
	}
	if _, err := r.sendBatchExec(ctx, batch); err != nil {
		return fmt.Errorf("replace player counts for game %s: %w", gameID, err)
	}
	return nil
}

// ListPlayerCounts returns stored recommendation rows for a game ordered by
// count.
func (r *Repo) ListPlayerCounts(ctx context.Context, gameID uuid.UUID) ([]domain.PlayerCountRecommendation, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`SELECT id, game_id, count, best_pct, best_votes, rec_pct, rec_votes,
		        notrec_pct, notrec_votes, vote_count
		 FROM player_count_recommendations
		 WHERE game_id = $1
		 ORDER BY count`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list player counts: %w", err)
	}
	defer rows.Close()

	var out []domain.PlayerCountRecommendation
	for rows.Next() {
		var rec domain.PlayerCountRecommendation
		if err := rows.Scan(&rec.ID, &rec.GameID, &rec.Count, &rec.BestPct, &rec.BestVotes,
			&rec.RecPct, &rec.RecVotes, &rec.NotRecPct, &rec.NotRecVotes, &rec.VoteCount); err != nil {
			return nil, fmt.Errorf("scan player count: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Derived ownership
// ---------------------------------------------------------------------------

const recomputeOwnershipSQL = `
UPDATE games g SET
    owned_by = sub.owners,
    owned    = sub.owners <> '{}'::text[]
FROM (
    SELECT g2.id,
           COALESCE(
               array_agg(DISTINCT c.username ORDER BY c.username)
                   FILTER (WHERE c.username IS NOT NULL),
               '{}'::text[]
           ) AS owners
    FROM games g2
    LEFT JOIN owned_games og ON og.game_id = g2.id
    LEFT JOIN collections c ON c.id = og.collection_id
    WHERE g2.id = ANY($1::uuid[])
    GROUP BY g2.id
) sub
WHERE g.id = sub.id`

// RecomputeOwnership re-derives owned/owned_by for the given games from the
// authoritative ownership links. It is the only code path that writes those
// two columns.
func (r *Repo) RecomputeOwnership(ctx context.Context, gameIDs []uuid.UUID) error {
	if len(gameIDs) == 0 {
		return nil
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)

	if _, err := q.Exec(ctx, recomputeOwnershipSQL, gameIDs); err != nil {
		return fmt.Errorf("recompute ownership: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (r *Repo) sendBatchExec(ctx context.Context, batch *pgx.Batch) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	affected := 0
	for range batch.Len() {
		tag, err := results.Exec()
		if err != nil {
			return affected, err
		}
		affected += int(tag.RowsAffected())
	}
	return affected, nil
}

func scanGame(rows pgx.Rows) (*domain.Game, error) {
	var g domain.Game
	var kind string
	if err := rows.Scan(&g.ID, &g.BGGID, &g.Title, &kind, &g.Year, &g.AvgRating,
		&g.NumVoters, &g.Weight, &g.WeightVotes, &g.BGGRank, &g.Owned, &g.OwnedBy,
		&g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Kind = domain.GameKind(kind)
	return &g, nil
}
