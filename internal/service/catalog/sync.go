package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// Sync reconciles a whole snapshot: optional prune, item upsert, vocabulary
// and player-count replacement, per-user ownership link reconciliation, and
// a derived-ownership recompute over every touched item.
func (s *Service) Sync(ctx context.Context, in SyncInput, progress ProgressFunc) error {
	ids := sortedKeys(in.Games)

	pruneCount := 0
	if in.Prune {
		n, err := s.games.CountNotIn(ctx, ids)
		if err != nil {
			return fmt.Errorf("count prunable games: %w", err)
		}
		pruneCount = n
	}

	tracker := newProgressTracker(progress, pruneCount+s.unitTotal(in))

	if in.Prune {
		deleted, err := s.games.DeleteNotIn(ctx, ids)
		if err != nil {
			return fmt.Errorf("prune games: %w", err)
		}
		s.log.InfoContext(ctx, "pruned stale games", slog.Int("deleted", deleted))
		tracker.add(pruneCount)
	}

	byID, err := s.applyGames(ctx, in, tracker)
	if err != nil {
		return err
	}

	touched, err := s.reconcileOwnership(ctx, in.OwnedByUser, byID, tracker)
	if err != nil {
		return err
	}

	// The recompute covers the full candidate set, not just linked items,
	// so games that lost their last owner are cleared too.
	for _, g := range byID {
		touched[g.ID] = struct{}{}
	}
	if err := s.games.RecomputeOwnership(ctx, setToSlice(touched)); err != nil {
		return err
	}

	tracker.finish()
	return nil
}

// SyncChunk applies one detail batch: same upsert/vocabulary/player-count
// logic as Sync over an arbitrary id subset, but ownership links are only
// added (never deleted) and the derived recompute stays within the chunk.
// No pruning. The full refresh's cleanup pass settles the global state.
func (s *Service) SyncChunk(ctx context.Context, in SyncInput, progress ProgressFunc) error {
	tracker := newProgressTracker(progress, s.unitTotal(in))

	byID, err := s.applyGames(ctx, in, tracker)
	if err != nil {
		return err
	}

	touched := make(map[uuid.UUID]struct{})
	for _, username := range sortedKeys(in.OwnedByUser) {
		coll, err := s.collections.GetOrCreate(ctx, username)
		if err != nil {
			return fmt.Errorf("collection for %s: %w", username, err)
		}
		gameIDs := s.resolveGameIDs(ctx, in.OwnedByUser[username], byID)
		if _, err := s.collections.AddLinks(ctx, coll.ID, gameIDs); err != nil {
			return fmt.Errorf("add ownership links for %s: %w", username, err)
		}
		for _, id := range gameIDs {
			touched[id] = struct{}{}
		}
		tracker.add(len(gameIDs))
	}

	if err := s.games.RecomputeOwnership(ctx, setToSlice(touched)); err != nil {
		return err
	}

	tracker.finish()
	return nil
}

// unitTotal is the weighted work-unit count for progress scaling: items +
// relations + player-count rows + ownership links.
func (s *Service) unitTotal(in SyncInput) int {
	total := len(in.Games)
	for _, d := range in.Details {
		total += len(d.Categories) + len(d.Families) + len(d.PlayerCounts)
	}
	for _, owned := range in.OwnedByUser {
		total += len(owned)
	}
	return total
}

// applyGames upserts items and replaces their vocabulary associations and
// player-count rows, then returns the stored rows keyed by external id.
func (s *Service) applyGames(ctx context.Context, in SyncInput, tracker *progressTracker) (map[string]*domain.Game, error) {
	ids := sortedKeys(in.Games)

	existing, err := s.games.GetByBGGIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load existing games: %w", err)
	}

	rows := make([]*domain.Game, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, mergeGame(in.Games[id], in.Details[id], existing[id]))
	}
	if _, err := s.games.BulkUpsert(ctx, rows); err != nil {
		return nil, fmt.Errorf("upsert games: %w", err)
	}
	tracker.add(len(rows))

	byID, err := s.games.GetByBGGIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload games: %w", err)
	}

	if err := s.applyDetails(ctx, in, byID, tracker); err != nil {
		return nil, err
	}
	return byID, nil
}

// applyDetails replaces vocabulary links and player-count rows for every
// item that has detail data. Items without detail are left untouched.
func (s *Service) applyDetails(ctx context.Context, in SyncInput, byID map[string]*domain.Game, tracker *progressTracker) error {
	var categoryNames, familyNames []string
	catSeen := map[string]struct{}{}
	famSeen := map[string]struct{}{}
	for _, id := range sortedKeys(in.Details) {
		d := in.Details[id]
		for _, name := range d.Categories {
			if _, ok := catSeen[name]; !ok {
				catSeen[name] = struct{}{}
				categoryNames = append(categoryNames, name)
			}
		}
		for _, name := range d.Families {
			if _, ok := famSeen[name]; !ok {
				famSeen[name] = struct{}{}
				familyNames = append(familyNames, name)
			}
		}
	}

	categories, err := s.games.EnsureCategories(ctx, categoryNames)
	if err != nil {
		return err
	}
	families, err := s.games.EnsureFamilies(ctx, familyNames)
	if err != nil {
		return err
	}

	for _, id := range sortedKeys(in.Details) {
		d := in.Details[id]
		g, ok := byID[id]
		if !ok {
			// Detail for an id outside the candidate set; nothing stored to
			// attach it to.
			continue
		}

		catIDs := make([]uuid.UUID, 0, len(d.Categories))
		for _, name := range d.Categories {
			if cid, ok := categories[name]; ok {
				catIDs = append(catIDs, cid)
			}
		}
		famIDs := make([]uuid.UUID, 0, len(d.Families))
		for _, name := range d.Families {
			if fid, ok := families[name]; ok {
				famIDs = append(famIDs, fid)
			}
		}

		// One game's replacements land atomically so a failure mid-item
		// cannot leave it with new categories but stale poll rows.
		err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.games.ReplaceCategories(ctx, g.ID, catIDs); err != nil {
				return err
			}
			if err := s.games.ReplaceFamilies(ctx, g.ID, famIDs); err != nil {
				return err
			}
			return s.games.ReplacePlayerCounts(ctx, g.ID, d.PlayerCounts)
		})
		if err != nil {
			return fmt.Errorf("replace detail data for %s: %w", id, err)
		}
		tracker.add(len(catIDs) + len(famIDs) + len(d.PlayerCounts))
	}
	return nil
}

// reconcileOwnership sets each user's link set to exactly the owned ids and
// returns the touched game ids.
func (s *Service) reconcileOwnership(ctx context.Context, ownedByUser map[string][]string, byID map[string]*domain.Game, tracker *progressTracker) (map[uuid.UUID]struct{}, error) {
	touched := make(map[uuid.UUID]struct{})
	for _, username := range sortedKeys(ownedByUser) {
		coll, err := s.collections.GetOrCreate(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("collection for %s: %w", username, err)
		}
		gameIDs := s.resolveGameIDs(ctx, ownedByUser[username], byID)
		removed, err := s.collections.ReconcileLinks(ctx, coll.ID, gameIDs)
		if err != nil {
			return nil, fmt.Errorf("reconcile ownership links for %s: %w", username, err)
		}
		for _, id := range gameIDs {
			touched[id] = struct{}{}
		}
		// Games that lost their link may sit outside the synced set; their
		// derived ownership still has to be recomputed.
		for _, id := range removed {
			touched[id] = struct{}{}
		}
		tracker.add(len(gameIDs))
	}
	return touched, nil
}

// resolveGameIDs maps external ids onto stored row ids, dropping unknowns.
func (s *Service) resolveGameIDs(ctx context.Context, bggIDs []string, byID map[string]*domain.Game) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(bggIDs))
	for _, bggID := range bggIDs {
		g, ok := byID[bggID]
		if !ok {
			s.log.WarnContext(ctx, "owned game missing from candidate set, skipping link",
				slog.String("bgg_id", bggID))
			continue
		}
		out = append(out, g.ID)
	}
	return out
}

// mergeGame builds the row to store from the candidate entry, optional
// detail, and the previously stored row. Detail-only fields survive a
// detail-less pass; year in particular is never blanked by missing detail.
func mergeGame(entry domain.RankedGame, detail domain.GameDetail, existing *domain.Game) *domain.Game {
	g := &domain.Game{
		BGGID:     entry.BGGID,
		Title:     entry.Title,
		Kind:      entry.Kind,
		AvgRating: entry.AvgRating,
		NumVoters: entry.NumVoters,
		BGGRank:   entry.Rank,
	}
	if existing != nil {
		g.ID = existing.ID
		g.Year = existing.Year
		g.Weight = existing.Weight
		g.WeightVotes = existing.WeightVotes
		if g.AvgRating == nil {
			g.AvgRating = existing.AvgRating
		}
		if g.NumVoters == nil {
			g.NumVoters = existing.NumVoters
		}
		if g.BGGRank == nil {
			g.BGGRank = existing.BGGRank
		}
	}

	if detail.BGGID != "" {
		if detail.Year != nil {
			g.Year = detail.Year
		}
		if detail.Weight != nil {
			g.Weight = detail.Weight
		}
		if detail.WeightVotes != nil {
			g.WeightVotes = detail.WeightVotes
		}
		if detail.AvgRating != nil {
			g.AvgRating = detail.AvgRating
		}
		if detail.NumVoters != nil {
			g.NumVoters = detail.NumVoters
		}
		if detail.BGGRank != nil {
			g.BGGRank = detail.BGGRank
		}
	}
	return g
}

func setToSlice(set map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
