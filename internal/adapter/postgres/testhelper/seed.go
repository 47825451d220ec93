package testhelper

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedGame inserts a game with a unique BGG id and returns it. Optional
// mutators adjust the row before insertion.
func SeedGame(t *testing.T, pool *pgxpool.Pool, mutate ...func(*domain.Game)) domain.Game {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	now := time.Now().UTC().Truncate(time.Microsecond)
	year := "2015"
	rating := 7.5
	voters := 1000
	weight := 2.5
	weightVotes := 200
	rank := 100

	game := domain.Game{
		ID:          uuid.New(),
		BGGID:       "test-" + suffix,
		Title:       "Test Game " + suffix,
		Kind:        domain.GameKindBase,
		Year:        &year,
		AvgRating:   &rating,
		NumVoters:   &voters,
		Weight:      &weight,
		WeightVotes: &weightVotes,
		BGGRank:     &rank,
		OwnedBy:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, m := range mutate {
		m(&game)
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO games (id, bgg_id, title, kind, year, avg_rating, num_voters,
		                    weight, weight_votes, bgg_rank, owned, owned_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		game.ID, game.BGGID, game.Title, string(game.Kind), game.Year, game.AvgRating,
		game.NumVoters, game.Weight, game.WeightVotes, game.BGGRank,
		game.Owned, game.OwnedBy, game.CreatedAt, game.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedGame insert: %v", err)
	}
	return game
}

// SeedPlayerCount inserts a player count recommendation row for a game.
func SeedPlayerCount(t *testing.T, pool *pgxpool.Pool, gameID uuid.UUID, count int, best, rec, notrec float64, votes int) domain.PlayerCountRecommendation {
	t.Helper()
	ctx := context.Background()

	pc := domain.PlayerCountRecommendation{
		ID:        uuid.New(),
		GameID:    gameID,
		Count:     count,
		BestPct:   best,
		RecPct:    rec,
		NotRecPct: notrec,
		VoteCount: votes,
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO player_count_recommendations
		     (id, game_id, count, best_pct, best_votes, rec_pct, rec_votes, notrec_pct, notrec_votes, vote_count)
		 VALUES ($1, $2, $3, $4, 0, $5, 0, $6, 0, $7)`,
		pc.ID, pc.GameID, pc.Count, pc.BestPct, pc.RecPct, pc.NotRecPct, pc.VoteCount,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedPlayerCount insert: %v", err)
	}
	return pc
}

// SeedCollection inserts a collection with a unique username, optionally
// linked to the given games.
func SeedCollection(t *testing.T, pool *pgxpool.Pool, gameIDs ...uuid.UUID) domain.Collection {
	t.Helper()
	ctx := context.Background()

	c := domain.Collection{
		ID:        uuid.New(),
		Username:  "user-" + uniqueSuffix(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO collections (id, username, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.Username, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedCollection insert: %v", err)
	}

	for i, gid := range gameIDs {
		_, err := pool.Exec(ctx,
			`INSERT INTO owned_games (collection_id, game_id) VALUES ($1, $2)`,
			c.ID, gid,
		)
		if err != nil {
			t.Fatalf("testhelper: SeedCollection link[%d]: %v", i, err)
		}
	}
	return c
}

// SeedTrackedUser inserts a tracked user row and returns it.
func SeedTrackedUser(t *testing.T, pool *pgxpool.Pool) domain.TrackedUser {
	t.Helper()
	ctx := context.Background()

	u := domain.TrackedUser{
		Username:  "tracked-" + uniqueSuffix(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO tracked_users (username, created_at) VALUES ($1, $2)`,
		u.Username, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedTrackedUser insert: %v", err)
	}
	return u
}

// SeedGames inserts n games and returns them in insertion order.
func SeedGames(t *testing.T, pool *pgxpool.Pool, n int) []domain.Game {
	t.Helper()

	games := make([]domain.Game, n)
	for i := range games {
		rank := i + 1
		games[i] = SeedGame(t, pool, func(g *domain.Game) {
			g.Title = "Test Game " + strconv.Itoa(i+1) + " " + uniqueSuffix()
			g.BGGRank = &rank
		})
	}
	return games
}
