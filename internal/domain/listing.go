package domain

// GameListFilter contains filtering/sorting/pagination parameters for the
// games listing. Listing rows are (game, player count) pairs: one row per
// stored recommendation.
type GameListFilter struct {
	// Search performs ILIKE '%...%' on the game title.
	Search string

	// Kind filters base games or expansions. Empty means both.
	Kind GameKind

	// PlayerCount filters rows for an exact count; PlayerCount8Plus selects
	// counts >= 8 instead. Zero means all counts.
	PlayerCount      int
	PlayerCount8Plus bool

	// Year bounds apply to numeric years only; rows with non-numeric source
	// years never satisfy a numeric bound.
	MinYear *int
	MaxYear *int

	MinRating *float64
	MaxRating *float64
	MinWeight *float64
	MaxWeight *float64
	MinVoters *int

	// Owners keeps rows whose game is owned by at least one of the given
	// usernames.
	Owners []string

	// Categories keeps rows whose game carries at least one of the given
	// category or family names.
	Categories []string

	// SortBy is one of the whitelisted listing columns. Default score_factor.
	SortBy   string
	SortDesc bool

	Limit  int
	Offset int
}

// GameListItem is one listing row: a game joined with one of its
// player-count recommendations plus the read-time composite scores.
type GameListItem struct {
	Game         Game
	PlayerCount  PlayerCountRecommendation
	PCScoreUnadj float64
	PCScore      float64
	ScoreFactor  float64
}
