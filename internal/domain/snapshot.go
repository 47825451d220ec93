package domain

// Snapshot types carry normalized fetched data between the remote client and
// the reconciler. They are not persisted as-is.

// RankedGame is one row of the ranked dump, or one item of an owned
// collection merged into the candidate map.
type RankedGame struct {
	BGGID     string
	Title     string
	Kind      GameKind
	AvgRating *float64
	NumVoters *int
	Rank      *int
	Owned     bool
}

// OwnedGame is one item of a user's fetched collection.
type OwnedGame struct {
	BGGID     string
	Title     string
	Kind      GameKind
	AvgRating *float64
	NumVoters *int
}

// GameDetail is the extended attribute set from a detail/statistics batch.
type GameDetail struct {
	BGGID        string
	Year         *string
	AvgRating    *float64
	NumVoters    *int
	Weight       *float64
	WeightVotes  *int
	BGGRank      *int
	Categories   []string
	Families     []string
	PlayerCounts []PlayerCountVotes
}

// PlayerCountVotes is one parsed suggested-player-count poll row.
// Percentages are derived via VotePercentages at construction.
type PlayerCountVotes struct {
	Count       int
	BestPct     float64
	BestVotes   int
	RecPct      float64
	RecVotes    int
	NotRecPct   float64
	NotRecVotes int
	VoteCount   int
}

// NewPlayerCountVotes builds a poll row with derived percentages and total.
func NewPlayerCountVotes(count, best, rec, notrec int) PlayerCountVotes {
	bp, rp, np := VotePercentages(best, rec, notrec)
	return PlayerCountVotes{
		Count:       count,
		BestPct:     bp,
		BestVotes:   best,
		RecPct:      rp,
		RecVotes:    rec,
		NotRecPct:   np,
		NotRecVotes: notrec,
		VoteCount:   best + rec + notrec,
	}
}
