// Package fetchjob orchestrates background ingestion jobs: it creates job
// records, runs them on goroutines through phased runners, and persists
// throttled progress through a single writer per job.
package fetchjob

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/bggcatalog/internal/config"
	"github.com/heartmarshall/bggcatalog/internal/domain"
	"github.com/heartmarshall/bggcatalog/internal/service/catalog"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces
// ---------------------------------------------------------------------------

type jobRepo interface {
	Create(ctx context.Context, kind domain.JobKind, params domain.JobParams) (*domain.FetchJob, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.FetchJob, error)
	List(ctx context.Context, limit int) ([]domain.FetchJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress, total int, params domain.JobParams) error
	Finish(ctx context.Context, id uuid.UUID, status domain.JobStatus, errMsg *string) error
	DeleteAll(ctx context.Context) (int, error)
}

type reconciler interface {
	Sync(ctx context.Context, in catalog.SyncInput, progress catalog.ProgressFunc) error
	SyncChunk(ctx context.Context, in catalog.SyncInput, progress catalog.ProgressFunc) error
	PurgeUntrackedCollections(ctx context.Context, keepUsernames []string) error
}

type trackedUsers interface {
	Usernames(ctx context.Context) ([]string, error)
}

// DetailStream is the pull-based detail batch iterator the remote client
// hands out. Exported so the wiring layer can adapt the concrete client.
type DetailStream interface {
	Total() int
	Next(ctx context.Context) bool
	Batch() []domain.GameDetail
	Err() error
}

type remoteClient interface {
	FetchRankedGames(ctx context.Context, ranksURL string, n int) ([]domain.RankedGame, error)
	FetchOwnedCollection(ctx context.Context, username string) ([]domain.OwnedGame, error)
	StreamDetails(ids []string, batchSize int) DetailStream
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service starts and tracks background fetch jobs. One Service instance runs
// for the process lifetime; Wait drains running jobs on shutdown.
type Service struct {
	log     *slog.Logger
	cfg     config.CatalogConfig
	jobs    jobRepo
	catalog reconciler
	tracked trackedUsers
	client  remoteClient

	wg sync.WaitGroup
}

// NewService creates the job orchestrator.
func NewService(
	logger *slog.Logger,
	cfg config.CatalogConfig,
	jobs jobRepo,
	cat reconciler,
	tracked trackedUsers,
	client remoteClient,
) *Service {
	return &Service{
		log:     logger.With("service", "fetchjob"),
		cfg:     cfg,
		jobs:    jobs,
		catalog: cat,
		tracked: tracked,
		client:  client,
	}
}

// StartRefresh launches a full refresh: purge untracked collections, fetch
// the ranked dump, fetch tracked users' collections, stream details, settle.
// Zero n and batchSize fall back to configured defaults; an empty ranksURL
// falls back to the configured dump URL and fails with ErrConfiguration if
// none is set.
func (s *Service) StartRefresh(ctx context.Context, n, batchSize int, ranksURL string) (*domain.FetchJob, error) {
	params, err := s.buildParams(n, batchSize, ranksURL, nil, true)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, domain.JobKindRefresh, params)
}

// StartTopN launches a ranked-dump-only ingestion: no collections are
// fetched and nothing is pruned.
func (s *Service) StartTopN(ctx context.Context, n, batchSize int, ranksURL string) (*domain.FetchJob, error) {
	params, err := s.buildParams(n, batchSize, ranksURL, nil, true)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, domain.JobKindTopN, params)
}

// StartCollection launches a collection-only ingestion for the given
// usernames, defaulting to the tracked set when none are given.
func (s *Service) StartCollection(ctx context.Context, usernames []string, batchSize int) (*domain.FetchJob, error) {
	usernames = normalizeUsernames(usernames)
	if len(usernames) == 0 {
		tracked, err := s.tracked.Usernames(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tracked users: %w", err)
		}
		usernames = tracked
	}
	if len(usernames) == 0 {
		return nil, fmt.Errorf("no usernames given and no tracked users: %w", domain.ErrValidation)
	}

	params, err := s.buildParams(0, batchSize, "", usernames, false)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, domain.JobKindCollection, params)
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.FetchJob, error) {
	return s.jobs.Get(ctx, id)
}

// List returns recent jobs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]domain.FetchJob, error) {
	return s.jobs.List(ctx, limit)
}

// Clear deletes all job records. Running jobs keep going.
func (s *Service) Clear(ctx context.Context) (int, error) {
	return s.jobs.DeleteAll(ctx)
}

// Cancel requests cancellation of a running job. The runner honors the
// request at the next phase boundary only.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s already %s: %w", id, job.Status, domain.ErrConflict)
	}
	return s.jobs.UpdateStatus(ctx, id, domain.JobStatusCancelling)
}

// Wait blocks until every running job finishes or the timeout elapses.
// Returns false on timeout.
func (s *Service) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Service) buildParams(n, batchSize int, ranksURL string, usernames []string, needRanks bool) (domain.JobParams, error) {
	if n <= 0 {
		n = s.cfg.DefaultTopN
	}
	if batchSize <= 0 {
		batchSize = s.cfg.DefaultBatchSize
	}
	if ranksURL == "" {
		ranksURL = s.cfg.RanksURL
	}
	if needRanks && ranksURL == "" {
		return domain.JobParams{}, fmt.Errorf("ranks dump url is not set: %w", domain.ErrConfiguration)
	}
	return domain.JobParams{
		N:         n,
		Usernames: usernames,
		BatchSize: batchSize,
		RanksURL:  ranksURL,
	}, nil
}

// normalizeUsernames canonicalizes and dedupes, dropping empties.
func normalizeUsernames(usernames []string) []string {
	seen := make(map[string]struct{}, len(usernames))
	out := make([]string, 0, len(usernames))
	for _, raw := range usernames {
		u := domain.NormalizeUsername(raw)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (s *Service) start(ctx context.Context, kind domain.JobKind, params domain.JobParams) (*domain.FetchJob, error) {
	job, err := s.jobs.Create(ctx, kind, params)
	if err != nil {
		return nil, fmt.Errorf("create %s job: %w", kind, err)
	}

	s.log.InfoContext(ctx, "job started",
		slog.String("job_id", job.ID.String()),
		slog.String("kind", kind.String()),
	)

	s.wg.Add(1)
	go s.run(job)
	return job, nil
}
