package fetchjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/heartmarshall/bggcatalog/internal/domain"
	"github.com/heartmarshall/bggcatalog/internal/service/catalog"
)

// errCancelled aborts a run between phases when cancellation was requested.
var errCancelled = errors.New("cancelled by request")

// run executes one job to a terminal state. It owns the job's goroutine:
// panics are recovered into an error outcome so a bad payload can never take
// the process down.
func (s *Service) run(job *domain.FetchJob) {
	defer s.wg.Done()

	// The job outlives the request that started it.
	ctx := context.Background()
	log := s.log.With(
		slog.String("job_id", job.ID.String()),
		slog.String("kind", job.Kind.String()),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", slog.Any("panic", r))
			msg := fmt.Sprintf("panic: %v", r)
			s.finishJob(ctx, log, job.ID, domain.JobStatusError, &msg)
		}
	}()

	if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusRunning); err != nil {
		log.Error("mark job running", slog.Any("error", err))
		return
	}

	w := newProgressWriter(log, s.jobs, job.ID, job.Params, s.cfg.ProgressInterval)

	var err error
	switch job.Kind {
	case domain.JobKindRefresh:
		err = s.runRefresh(ctx, job, w)
	case domain.JobKindTopN:
		err = s.runTopN(ctx, job, w)
	case domain.JobKindCollection:
		err = s.runCollection(ctx, job, w)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	w.close()

	switch {
	case err == nil:
		s.finishJob(ctx, log, job.ID, domain.JobStatusDone, nil)
		log.Info("job done")
	default:
		msg := err.Error()
		s.finishJob(ctx, log, job.ID, domain.JobStatusError, &msg)
		log.Error("job failed", slog.Any("error", err))
	}
}

func (s *Service) finishJob(ctx context.Context, log *slog.Logger, id uuid.UUID, status domain.JobStatus, errMsg *string) {
	if err := s.jobs.Finish(ctx, id, status, errMsg); err != nil {
		log.Error("mark job finished", slog.Any("error", err))
	}
}

// checkCancelled returns errCancelled if cancellation was requested. Called
// at phase boundaries only; a running phase always completes.
func (s *Service) checkCancelled(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if job.Status == domain.JobStatusCancelling {
		return errCancelled
	}
	return nil
}

// runRefresh is the full pipeline: purge untracked collections, fetch the
// ranked dump, merge tracked users' collections into the candidate set,
// stream details in chunks, then settle global state with a pruning sync.
func (s *Service) runRefresh(ctx context.Context, job *domain.FetchJob, w *progressWriter) error {
	p := job.Params
	if p.RanksURL == "" {
		return fmt.Errorf("ranks dump url is not set: %w", domain.ErrConfiguration)
	}

	tracked, err := s.tracked.Usernames(ctx)
	if err != nil {
		return fmt.Errorf("list tracked users: %w", err)
	}

	w.start(domain.PhaseTopN, 1)
	if err := s.catalog.PurgeUntrackedCollections(ctx, tracked); err != nil {
		return err
	}
	candidates, err := s.fetchRanked(ctx, p, w)
	if err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	ownedByUser, err := s.fetchCollections(ctx, tracked, candidates, w)
	if err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	if err := s.streamDetailChunks(ctx, p, candidates, ownedByUser, w); err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	// Settle: exact per-user link sets, prune everything outside the
	// candidate set, recompute derived ownership across the board.
	return s.cleanupSync(ctx, catalog.SyncInput{
		Games:       candidates,
		OwnedByUser: ownedByUser,
		Prune:       true,
	}, w)
}

// runTopN ingests the ranked dump only. Collections are untouched and
// nothing is pruned, so items owned outside the top N survive.
func (s *Service) runTopN(ctx context.Context, job *domain.FetchJob, w *progressWriter) error {
	p := job.Params
	if p.RanksURL == "" {
		return fmt.Errorf("ranks dump url is not set: %w", domain.ErrConfiguration)
	}

	w.start(domain.PhaseTopN, 1)
	candidates, err := s.fetchRanked(ctx, p, w)
	if err != nil {
		return err
	}
	w.skip(domain.PhaseCollection)

	if err := s.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	if err := s.streamDetailChunks(ctx, p, candidates, nil, w); err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	return s.cleanupSync(ctx, catalog.SyncInput{Games: candidates}, w)
}

// runCollection ingests the named users' collections only.
func (s *Service) runCollection(ctx context.Context, job *domain.FetchJob, w *progressWriter) error {
	usernames := job.Params.Usernames

	w.skip(domain.PhaseTopN)
	candidates := map[string]domain.RankedGame{}
	ownedByUser, err := s.fetchCollections(ctx, usernames, candidates, w)
	if err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	if err := s.streamDetailChunks(ctx, job.Params, candidates, ownedByUser, w); err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	return s.cleanupSync(ctx, catalog.SyncInput{
		Games:       candidates,
		OwnedByUser: ownedByUser,
	}, w)
}

// fetchRanked downloads the ranked dump and seeds the candidate map. The
// caller must have started the top_n phase.
func (s *Service) fetchRanked(ctx context.Context, p domain.JobParams, w *progressWriter) (map[string]domain.RankedGame, error) {
	ranked, err := s.client.FetchRankedGames(ctx, p.RanksURL, p.N)
	if err != nil {
		return nil, fmt.Errorf("fetch ranked dump: %w", err)
	}

	candidates := make(map[string]domain.RankedGame, len(ranked))
	for _, g := range ranked {
		candidates[g.BGGID] = g
	}
	w.finish(domain.PhaseTopN, len(ranked))
	return candidates, nil
}

// fetchCollections fetches each user's owned items, merging them into the
// candidate map. Items outside the ranked set enter as stub entries carrying
// whatever the collection endpoint reported.
func (s *Service) fetchCollections(ctx context.Context, usernames []string, candidates map[string]domain.RankedGame, w *progressWriter) (map[string][]string, error) {
	if len(usernames) == 0 {
		w.skip(domain.PhaseCollection)
		return nil, nil
	}

	sorted := make([]string, len(usernames))
	copy(sorted, usernames)
	sort.Strings(sorted)

	w.start(domain.PhaseCollection, len(sorted))

	ownedByUser := make(map[string][]string, len(sorted))
	items := 0
	for i, username := range sorted {
		owned, err := s.client.FetchOwnedCollection(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("fetch collection for %s: %w", username, err)
		}

		ids := make([]string, 0, len(owned))
		for _, og := range owned {
			ids = append(ids, og.BGGID)
			if g, ok := candidates[og.BGGID]; ok {
				g.Owned = true
				candidates[og.BGGID] = g
				continue
			}
			candidates[og.BGGID] = domain.RankedGame{
				BGGID:     og.BGGID,
				Title:     og.Title,
				Kind:      og.Kind,
				AvgRating: og.AvgRating,
				NumVoters: og.NumVoters,
				Owned:     true,
			}
		}
		ownedByUser[username] = ids
		items += len(owned)
		w.update(domain.PhaseCollection, i+1, len(sorted))
	}

	w.finish(domain.PhaseCollection, items)
	return ownedByUser, nil
}

// streamDetailChunks pulls detail batches lazily and applies each one as an
// incremental chunk sync, so storage fills as the stream advances instead of
// after the whole fetch.
func (s *Service) streamDetailChunks(ctx context.Context, p domain.JobParams, candidates map[string]domain.RankedGame, ownedByUser map[string][]string, w *progressWriter) error {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stream := s.client.StreamDetails(ids, p.BatchSize)
	w.start(domain.PhaseDetails, stream.Total())

	pos := 0
	for stream.Next(ctx) {
		end := min(pos+p.BatchSize, len(ids))
		chunkIDs := ids[pos:end]
		pos = end

		if err := s.catalog.SyncChunk(ctx, chunkInput(chunkIDs, stream.Batch(), candidates, ownedByUser), nil); err != nil {
			return fmt.Errorf("apply detail chunk: %w", err)
		}
		w.update(domain.PhaseDetails, pos, len(ids))
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("stream details: %w", err)
	}

	w.finish(domain.PhaseDetails, pos)
	return nil
}

// chunkInput narrows the full candidate and ownership maps down to one
// chunk's id set.
func chunkInput(chunkIDs []string, batch []domain.GameDetail, candidates map[string]domain.RankedGame, ownedByUser map[string][]string) catalog.SyncInput {
	inChunk := make(map[string]struct{}, len(chunkIDs))
	games := make(map[string]domain.RankedGame, len(chunkIDs))
	for _, id := range chunkIDs {
		inChunk[id] = struct{}{}
		games[id] = candidates[id]
	}

	details := make(map[string]domain.GameDetail, len(batch))
	for _, d := range batch {
		if _, ok := inChunk[d.BGGID]; ok {
			details[d.BGGID] = d
		}
	}

	var owned map[string][]string
	if len(ownedByUser) > 0 {
		owned = make(map[string][]string, len(ownedByUser))
		for username, all := range ownedByUser {
			var subset []string
			for _, id := range all {
				if _, ok := inChunk[id]; ok {
					subset = append(subset, id)
				}
			}
			if len(subset) > 0 {
				owned[username] = subset
			}
		}
	}

	return catalog.SyncInput{Games: games, Details: details, OwnedByUser: owned}
}

// cleanupSync runs the whole-snapshot sync as the final phase, mapping the
// reconciler's progress onto the cleanup phase state.
func (s *Service) cleanupSync(ctx context.Context, in catalog.SyncInput, w *progressWriter) error {
	w.start(domain.PhaseCleanup, 0)
	err := s.catalog.Sync(ctx, in, func(done, total int) {
		w.update(domain.PhaseCleanup, done, total)
	})
	if err != nil {
		return fmt.Errorf("cleanup sync: %w", err)
	}
	w.finish(domain.PhaseCleanup, len(in.Games))
	return nil
}
