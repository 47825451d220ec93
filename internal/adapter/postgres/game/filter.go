package game

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	postgres "github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	"github.com/heartmarshall/bggcatalog/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// pcScoreExpr is the unadjusted composite of the three poll percentages.
const pcScoreExpr = "(p.best_pct * 3.0 + p.rec_pct * 2.0 - p.notrec_pct * 2.0)"

// sortColumns whitelists SortBy values onto SQL expressions.
var sortColumns = map[string]string{
	"title":          "g.title",
	"game_id":        "g.bgg_id",
	"year":           "year_int",
	"bgg_rank":       "g.bgg_rank",
	"avg_rating":     "COALESCE(g.avg_rating, 0)",
	"num_voters":     "COALESCE(g.num_voters, 0)",
	"weight":         "COALESCE(g.weight, 0)",
	"weight_votes":   "g.weight_votes",
	"owned":          "g.owned",
	"kind":           "g.kind",
	"player_count":   "p.count",
	"best_pct":       "p.best_pct",
	"best_votes":     "p.best_votes",
	"rec_pct":        "p.rec_pct",
	"rec_votes":      "p.rec_votes",
	"not_pct":        "p.notrec_pct",
	"not_votes":      "p.notrec_votes",
	"total_votes":    "p.vote_count",
	"pc_score_unadj": "pc_score_unadj",
	"pc_score":       "pc_score",
	"score_factor":   "score_factor",
}

func normalizeFilter(f *domain.GameListFilter) {
	if _, ok := sortColumns[f.SortBy]; !ok {
		f.SortBy = "score_factor"
		f.SortDesc = true
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// List returns listing rows matching the filter plus the total row count
// before pagination. The pc_score normalization range is computed over the
// whole table so scores stay stable across filters.
func (r *Repo) List(ctx context.Context, filter domain.GameListFilter) ([]domain.GameListItem, int, error) {
	normalizeFilter(&filter)

	q := postgres.QuerierFromCtx(ctx, r.pool)

	pcMin, pcRange, err := r.pcScoreRange(ctx)
	if err != nil {
		return nil, 0, err
	}

	pcScoreSQL := "0.0"
	if pcRange > 0 {
		pcScoreSQL = fmt.Sprintf("((%s - %g) / %g * 10.0)", pcScoreExpr, pcMin, pcRange)
	}
	scoreFactorSQL := fmt.Sprintf("((COALESCE(g.avg_rating, 0) * 3.0 + %s) / 4.0)", pcScoreSQL)

	base := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(
			"g.id", "g.bgg_id", "g.title", "g.kind", "g.year", "g.avg_rating",
			"g.num_voters", "g.weight", "g.weight_votes", "g.bgg_rank",
			"g.owned", "g.owned_by", "g.created_at", "g.updated_at",
			"p.id", "p.count", "p.best_pct", "p.best_votes", "p.rec_pct",
			"p.rec_votes", "p.notrec_pct", "p.notrec_votes", "p.vote_count",
			pcScoreExpr+" AS pc_score_unadj",
			pcScoreSQL+" AS pc_score",
			scoreFactorSQL+" AS score_factor",
			`CASE WHEN g.year ~ '^\d+$' THEN g.year::int ELSE NULL END AS year_int`,
		).
		From("player_count_recommendations p").
		Join("games g ON g.id = p.game_id")

	base = applyFilter(base, filter)

	countQ := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From("player_count_recommendations p").
		Join("games g ON g.id = p.game_id")
	countQ = applyFilter(countQ, filter)

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listing rows: %w", err)
	}

	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	base = base.
		OrderBy(fmt.Sprintf("%s %s NULLS LAST", sortColumns[filter.SortBy], dir)).
		OrderBy("g.title ASC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	listSQL, listArgs, err := base.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build listing query: %w", err)
	}

	rows, err := q.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query listing: %w", err)
	}
	defer rows.Close()

	var items []domain.GameListItem
	for rows.Next() {
		var item domain.GameListItem
		var kind string
		var yearInt *int
		if err := rows.Scan(
			&item.Game.ID, &item.Game.BGGID, &item.Game.Title, &kind, &item.Game.Year,
			&item.Game.AvgRating, &item.Game.NumVoters, &item.Game.Weight,
			&item.Game.WeightVotes, &item.Game.BGGRank, &item.Game.Owned,
			&item.Game.OwnedBy, &item.Game.CreatedAt, &item.Game.UpdatedAt,
			&item.PlayerCount.ID, &item.PlayerCount.Count, &item.PlayerCount.BestPct,
			&item.PlayerCount.BestVotes, &item.PlayerCount.RecPct, &item.PlayerCount.RecVotes,
			&item.PlayerCount.NotRecPct, &item.PlayerCount.NotRecVotes, &item.PlayerCount.VoteCount,
			&item.PCScoreUnadj, &item.PCScore, &item.ScoreFactor, &yearInt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan listing row: %w", err)
		}
		item.Game.Kind = domain.GameKind(kind)
		item.PlayerCount.GameID = item.Game.ID
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// pcScoreRange returns the min and spread of the unadjusted composite over
// all stored rows, for 0–10 normalization.
func (r *Repo) pcScoreRange(ctx context.Context) (low, spread float64, err error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var lo, hi *float64
	err = q.QueryRow(ctx,
		`SELECT min(`+pcScoreExpr+`), max(`+pcScoreExpr+`) FROM player_count_recommendations p`,
	).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, fmt.Errorf("pc score range: %w", err)
	}
	if lo == nil || hi == nil || *hi <= *lo {
		return 0, 0, nil
	}
	return *lo, *hi - *lo, nil
}

func applyFilter(b sq.SelectBuilder, f domain.GameListFilter) sq.SelectBuilder {
	if f.Search != "" {
		b = b.Where(sq.ILike{"g.title": "%" + f.Search + "%"})
	}
	if f.Kind != "" {
		b = b.Where(sq.Eq{"g.kind": string(f.Kind)})
	}
	if f.PlayerCount8Plus {
		b = b.Where(sq.GtOrEq{"p.count": 8})
	} else if f.PlayerCount > 0 {
		b = b.Where(sq.Eq{"p.count": f.PlayerCount})
	}
	if f.MinYear != nil {
		b = b.Where(`g.year ~ '^\d+$' AND g.year::int >= ?`, *f.MinYear)
	}
	if f.MaxYear != nil {
		b = b.Where(`g.year ~ '^\d+$' AND g.year::int <= ?`, *f.MaxYear)
	}
	if f.MinRating != nil {
		b = b.Where(sq.GtOrEq{"COALESCE(g.avg_rating, 0)": *f.MinRating})
	}
	if f.MaxRating != nil {
		b = b.Where(sq.LtOrEq{"COALESCE(g.avg_rating, 0)": *f.MaxRating})
	}
	if f.MinWeight != nil {
		b = b.Where(sq.GtOrEq{"COALESCE(g.weight, 0)": *f.MinWeight})
	}
	if f.MaxWeight != nil {
		b = b.Where(sq.LtOrEq{"COALESCE(g.weight, 0)": *f.MaxWeight})
	}
	if f.MinVoters != nil {
		b = b.Where(sq.GtOrEq{"COALESCE(g.num_voters, 0)": *f.MinVoters})
	}
	if len(f.Owners) > 0 {
		b = b.Where("g.owned_by && ?::text[]", f.Owners)
	}
	if len(f.Categories) > 0 {
		b = b.Where(`(
			EXISTS (SELECT 1 FROM game_categories gc JOIN categories c ON c.id = gc.category_id
			        WHERE gc.game_id = g.id AND c.name = ANY(?::text[]))
			OR EXISTS (SELECT 1 FROM game_families gf JOIN families fam ON fam.id = gf.family_id
			           WHERE gf.game_id = g.id AND fam.name = ANY(?::text[]))
		)`, f.Categories, f.Categories)
	}
	return b
}
