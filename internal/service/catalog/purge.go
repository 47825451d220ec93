package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// PurgeUntrackedCollections deletes every collection whose username is not
// in the keep set, then recomputes derived ownership for the games that
// lost a link. Runs once at the start of a full refresh so stale tracked
// users are fully retired.
func (s *Service) PurgeUntrackedCollections(ctx context.Context, keepUsernames []string) error {
	var orphaned []uuid.UUID
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		orphaned, err = s.collections.DeleteExcept(ctx, keepUsernames)
		if err != nil {
			return err
		}
		if len(orphaned) == 0 {
			return nil
		}
		return s.games.RecomputeOwnership(ctx, orphaned)
	})
	if err != nil {
		return fmt.Errorf("purge untracked collections: %w", err)
	}
	if len(orphaned) == 0 {
		return nil
	}

	s.log.InfoContext(ctx, "purged untracked collections",
		slog.Int("keep", len(keepUsernames)),
		slog.Int("orphaned_games", len(orphaned)),
	)
	return nil
}
