package rest

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// gameService defines the minimal interface needed by GameHandler.
type gameService interface {
	ListGames(ctx context.Context, filter domain.GameListFilter) ([]domain.GameListItem, int, error)
}

// GameHandler serves the games listing endpoint.
type GameHandler struct {
	svc gameService
	log *slog.Logger
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(logger *slog.Logger, svc gameService) *GameHandler {
	return &GameHandler{svc: svc, log: logger.With("handler", "games")}
}

// Register mounts the games endpoints on mux.
func (h *GameHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/games", h.List)
}

type gameListItemResponse struct {
	ID           string    `json:"id"`
	BGGID        string    `json:"bgg_id"`
	Title        string    `json:"title"`
	Kind         string    `json:"kind"`
	Year         *string   `json:"year,omitempty"`
	AvgRating    *float64  `json:"avg_rating,omitempty"`
	NumVoters    *int      `json:"num_voters,omitempty"`
	Weight       *float64  `json:"weight,omitempty"`
	WeightVotes  *int      `json:"weight_votes,omitempty"`
	BGGRank      *int      `json:"bgg_rank,omitempty"`
	Owned        bool      `json:"owned"`
	OwnedBy      []string  `json:"owned_by"`
	PlayerCount  int       `json:"player_count"`
	BestPct      float64   `json:"best_pct"`
	RecPct       float64   `json:"rec_pct"`
	NotRecPct    float64   `json:"notrec_pct"`
	VoteCount    int       `json:"vote_count"`
	PCScoreUnadj float64   `json:"pc_score_unadj"`
	PCScore      float64   `json:"pc_score"`
	ScoreFactor  float64   `json:"score_factor"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// List handles GET /api/games: one row per (game, player count) pair with
// read-time composite scores.
func (h *GameHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseGameFilter(r.URL.Query())
	if err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items, total, svcErr := h.svc.ListGames(r.Context(), filter)
	if svcErr != nil {
		h.log.ErrorContext(r.Context(), "list games", slog.String("error", svcErr.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]gameListItemResponse, 0, len(items))
	for i := range items {
		out = append(out, toGameListItemResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
	})
}

// parseGameFilter maps query parameters onto the listing filter. The second
// return value is a non-empty message on invalid input.
func parseGameFilter(q url.Values) (domain.GameListFilter, string) {
	var f domain.GameListFilter

	f.Search = q.Get("search")

	switch kind := q.Get("kind"); kind {
	case "":
	case "base":
		f.Kind = domain.GameKindBase
	case "expansion":
		f.Kind = domain.GameKindExpansion
	default:
		return f, "kind must be base or expansion"
	}

	if v := q.Get("players"); v != "" {
		if v == "8+" {
			f.PlayerCount8Plus = true
		} else {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return f, "players must be a positive number or 8+"
			}
			f.PlayerCount = n
		}
	}

	intParams := map[string]**int{
		"min_year":   &f.MinYear,
		"max_year":   &f.MaxYear,
		"min_voters": &f.MinVoters,
	}
	for name, dst := range intParams {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, name + " must be a number"
			}
			*dst = &n
		}
	}

	floatParams := map[string]**float64{
		"min_rating": &f.MinRating,
		"max_rating": &f.MaxRating,
		"min_weight": &f.MinWeight,
		"max_weight": &f.MaxWeight,
	}
	for name, dst := range floatParams {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return f, name + " must be a number"
			}
			*dst = &n
		}
	}

	f.Owners = splitList(q.Get("owners"))
	f.Categories = splitList(q.Get("categories"))

	f.SortBy = q.Get("sort")
	switch order := q.Get("order"); order {
	case "", "desc":
		f.SortDesc = true
	case "asc":
		f.SortDesc = false
	default:
		return f, "order must be asc or desc"
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, "invalid limit"
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, "invalid offset"
		}
		f.Offset = n
	}

	return f, ""
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toGameListItemResponse(item *domain.GameListItem) gameListItemResponse {
	g := &item.Game
	ownedBy := g.OwnedBy
	if ownedBy == nil {
		ownedBy = []string{}
	}
	return gameListItemResponse{
		ID:           g.ID.String(),
		BGGID:        g.BGGID,
		Title:        g.Title,
		Kind:         g.Kind.String(),
		Year:         g.Year,
		AvgRating:    g.AvgRating,
		NumVoters:    g.NumVoters,
		Weight:       g.Weight,
		WeightVotes:  g.WeightVotes,
		BGGRank:      g.BGGRank,
		Owned:        g.Owned,
		OwnedBy:      ownedBy,
		PlayerCount:  item.PlayerCount.Count,
		BestPct:      item.PlayerCount.BestPct,
		RecPct:       item.PlayerCount.RecPct,
		NotRecPct:    item.PlayerCount.NotRecPct,
		VoteCount:    item.PlayerCount.VoteCount,
		PCScoreUnadj: item.PCScoreUnadj,
		PCScore:      item.PCScore,
		ScoreFactor:  item.ScoreFactor,
		UpdatedAt:    g.UpdatedAt,
	}
}
