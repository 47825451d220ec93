package catalog

import (
	"context"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// ListGames returns filtered, sorted listing rows plus the pre-pagination
// total. Composite scores are computed by the storage layer at read time
// and never persisted.
func (s *Service) ListGames(ctx context.Context, filter domain.GameListFilter) ([]domain.GameListItem, int, error) {
	return s.games.List(ctx, filter)
}
