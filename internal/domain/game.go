package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GameKind distinguishes base games from expansions.
type GameKind string

const (
	GameKindBase      GameKind = "Base Game"
	GameKindExpansion GameKind = "Expansion"
)

func (k GameKind) String() string { return string(k) }

func (k GameKind) IsValid() bool {
	switch k {
	case GameKindBase, GameKindExpansion:
		return true
	}
	return false
}

// NormalizeKind maps free-form source type strings onto a GameKind.
// Anything starting with "exp" (case-insensitive) is an expansion,
// everything else, including empty input, is a base game.
func NormalizeKind(raw string) GameKind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "exp") {
		return GameKindExpansion
	}
	return GameKindBase
}

// Game is a board game or expansion sourced from the remote catalog.
// BGGID is the remote service's identifier and is unique and stable
// across refresh cycles.
//
// Owned and OwnedBy are derived from ownership links and must only be
// written by the ownership recompute; they are never set from fetched
// data directly.
type Game struct {
	ID          uuid.UUID
	BGGID       string
	Title       string
	Kind        GameKind
	Year        *string // free text from the source, may be non-numeric
	AvgRating   *float64
	NumVoters   *int
	Weight      *float64 // rounded to 2 decimals at parse time
	WeightVotes *int
	BGGRank     *int // only well-defined for base games
	Owned       bool
	OwnedBy     []string
	Categories  []string
	Families    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category is a controlled-vocabulary tag attached to games (M2M).
type Category struct {
	ID   uuid.UUID
	Name string
}

// Family is a controlled-vocabulary grouping attached to games (M2M).
type Family struct {
	ID   uuid.UUID
	Name string
}

// PlayerCountRecommendation holds poll results for one (game, player count)
// pair. Percentages are always derived from the vote counts; see
// VotePercentages.
type PlayerCountRecommendation struct {
	ID           uuid.UUID
	GameID       uuid.UUID
	Count        int
	BestPct      float64
	BestVotes    int
	RecPct       float64
	RecVotes     int
	NotRecPct    float64
	NotRecVotes  int
	VoteCount    int
}

// VotePercentages computes best/recommended/not-recommended percentages of
// the 3-way vote total, rounded to one decimal. All zeros when the total is
// zero.
func VotePercentages(best, rec, notrec int) (bestPct, recPct, notrecPct float64) {
	total := best + rec + notrec
	if total == 0 {
		return 0, 0, 0
	}
	return round1(float64(best) / float64(total) * 100),
		round1(float64(rec) / float64(total) * 100),
		round1(float64(notrec) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Collection is one username's set of owned games, built from fetched
// ownership data. It may exist transiently for a one-off collection fetch
// even when the username is not tracked.
type Collection struct {
	ID        uuid.UUID
	Username  string
	CreatedAt time.Time
}

// TrackedUser is a username whose collection a full refresh fetches.
type TrackedUser struct {
	Username  string
	CreatedAt time.Time
}
