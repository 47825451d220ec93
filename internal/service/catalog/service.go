// Package catalog implements the reconciler: idempotent diff-and-upsert of
// fetched snapshots into persistent storage, ownership aggregation across
// tracked users, and the filterable games read model.
package catalog

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type gameRepo interface {
	GetByBGGIDs(ctx context.Context, bggIDs []string) (map[string]*domain.Game, error)
	BulkUpsert(ctx context.Context, games []*domain.Game) (int, error)
	CountNotIn(ctx context.Context, bggIDs []string) (int, error)
	DeleteNotIn(ctx context.Context, bggIDs []string) (int, error)
	EnsureCategories(ctx context.Context, names []string) (map[string]uuid.UUID, error)
	EnsureFamilies(ctx context.Context, names []string) (map[string]uuid.UUID, error)
	ReplaceCategories(ctx context.Context, gameID uuid.UUID, categoryIDs []uuid.UUID) error
	ReplaceFamilies(ctx context.Context, gameID uuid.UUID, familyIDs []uuid.UUID) error
	ReplacePlayerCounts(ctx context.Context, gameID uuid.UUID, rows []domain.PlayerCountVotes) error
	RecomputeOwnership(ctx context.Context, gameIDs []uuid.UUID) error
	List(ctx context.Context, filter domain.GameListFilter) ([]domain.GameListItem, int, error)
}

type collectionRepo interface {
	GetOrCreate(ctx context.Context, username string) (*domain.Collection, error)
	AddLinks(ctx context.Context, collectionID uuid.UUID, gameIDs []uuid.UUID) (int, error)
	ReconcileLinks(ctx context.Context, collectionID uuid.UUID, gameIDs []uuid.UUID) ([]uuid.UUID, error)
	DeleteExcept(ctx context.Context, keepUsernames []string) ([]uuid.UUID, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service reconciles fetched snapshots into storage. All operations are
// re-enterable: a failure mid-sequence leaves prior steps committed, and
// re-running the same inputs repairs any partial state.
type Service struct {
	log         *slog.Logger
	tx          txManager
	games       gameRepo
	collections collectionRepo
}

// NewService creates the reconciler service.
func NewService(logger *slog.Logger, tx txManager, games gameRepo, collections collectionRepo) *Service {
	return &Service{
		log:         logger.With("service", "catalog"),
		tx:          tx,
		games:       games,
		collections: collections,
	}
}

// ProgressFunc receives monotonically non-decreasing progress updates. The
// reconciler guarantees a final call with done == total.
type ProgressFunc func(done, total int)

// SyncInput is one snapshot to reconcile. Maps are keyed by external id.
type SyncInput struct {
	// Games is the candidate universe (or chunk) of items to upsert.
	Games map[string]domain.RankedGame

	// Details holds extended attributes per id. Items without an entry keep
	// their stored year/weight/tags untouched.
	Details map[string]domain.GameDetail

	// OwnedByUser maps usernames onto the ids they own.
	OwnedByUser map[string][]string

	// Prune deletes stored items absent from Games' key set before
	// upserting.
	Prune bool
}

// sortedKeys returns map keys in a fixed order so writes and progress are
// deterministic.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// progressTracker scales completed work units onto the caller's sink,
// enforcing monotonicity and the guaranteed final call.
type progressTracker struct {
	sink  ProgressFunc
	total int
	done  int
	last  int
}

func newProgressTracker(sink ProgressFunc, total int) *progressTracker {
	return &progressTracker{sink: sink, total: total, last: -1}
}

func (p *progressTracker) add(units int) {
	p.done += units
	if p.sink == nil {
		return
	}
	v := min(p.done, p.total)
	if v > p.last {
		p.last = v
		p.sink(v, p.total)
	}
}

func (p *progressTracker) finish() {
	if p.sink == nil {
		return
	}
	if p.last < p.total {
		p.last = p.total
		p.sink(p.total, p.total)
	}
}
