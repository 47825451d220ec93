package fetchjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/bggcatalog/internal/config"
	"github.com/heartmarshall/bggcatalog/internal/domain"
	"github.com/heartmarshall/bggcatalog/internal/service/catalog"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeJobs struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*domain.FetchJob
	writes   []progressWrite // every UpdateProgress call in order
	finishes int
}

type progressWrite struct {
	progress int
	total    int
	params   domain.JobParams
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[uuid.UUID]*domain.FetchJob{}}
}

func (f *fakeJobs) Create(_ context.Context, kind domain.JobKind, params domain.JobParams) (*domain.FetchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &domain.FetchJob{
		ID:        uuid.New(),
		Kind:      kind,
		Params:    params,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (f *fakeJobs) Get(_ context.Context, id uuid.UUID) (*domain.FetchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (f *fakeJobs) List(_ context.Context, _ int) ([]domain.FetchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.FetchJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeJobs) UpdateStatus(_ context.Context, id uuid.UUID, status domain.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	return nil
}

func (f *fakeJobs) UpdateProgress(_ context.Context, id uuid.UUID, progress, total int, params domain.JobParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Progress, job.Total, job.Params = progress, total, params
	f.writes = append(f.writes, progressWrite{progress: progress, total: total, params: params})
	return nil
}

func (f *fakeJobs) Finish(_ context.Context, id uuid.UUID, status domain.JobStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	job.Status, job.Error, job.FinishedAt = status, errMsg, &now
	f.finishes++
	return nil
}

func (f *fakeJobs) DeleteAll(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.jobs)
	f.jobs = map[uuid.UUID]*domain.FetchJob{}
	return n, nil
}

func (f *fakeJobs) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeCatalog struct {
	mu          sync.Mutex
	chunks      []catalog.SyncInput
	syncs       []catalog.SyncInput
	purgedKeeps [][]string
	syncErr     error
	syncPanics  bool
}

func (f *fakeCatalog) Sync(_ context.Context, in catalog.SyncInput, progress catalog.ProgressFunc) error {
	f.mu.Lock()
	f.syncs = append(f.syncs, in)
	f.mu.Unlock()
	if f.syncPanics {
		panic("boom")
	}
	if f.syncErr != nil {
		return f.syncErr
	}
	if progress != nil {
		total := len(in.Games)
		progress(0, total)
		progress(total, total)
	}
	return nil
}

func (f *fakeCatalog) SyncChunk(_ context.Context, in catalog.SyncInput, _ catalog.ProgressFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, in)
	return nil
}

func (f *fakeCatalog) PurgeUntrackedCollections(_ context.Context, keep []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgedKeeps = append(f.purgedKeeps, keep)
	return nil
}

type fakeTracked struct {
	usernames []string
}

func (f *fakeTracked) Usernames(_ context.Context) ([]string, error) {
	return f.usernames, nil
}

type fakeClient struct {
	ranked      []domain.RankedGame
	rankedErr   error
	collections map[string][]domain.OwnedGame
	details     map[string]domain.GameDetail

	// onRanked runs after a successful dump fetch; used to inject a
	// cancellation request at a phase boundary.
	onRanked func()
}

func (f *fakeClient) FetchRankedGames(_ context.Context, _ string, n int) ([]domain.RankedGame, error) {
	if f.rankedErr != nil {
		return nil, f.rankedErr
	}
	out := f.ranked
	if n < len(out) {
		out = out[:n]
	}
	if f.onRanked != nil {
		f.onRanked()
	}
	return out, nil
}

func (f *fakeClient) FetchOwnedCollection(_ context.Context, username string) ([]domain.OwnedGame, error) {
	return f.collections[username], nil
}

func (f *fakeClient) StreamDetails(ids []string, batchSize int) DetailStream {
	return &fakeStream{ids: ids, batchSize: batchSize, details: f.details}
}

type fakeStream struct {
	ids       []string
	batchSize int
	details   map[string]domain.GameDetail
	pos       int
	batch     []domain.GameDetail
}

func (s *fakeStream) Total() int { return len(s.ids) }

func (s *fakeStream) Next(_ context.Context) bool {
	if s.pos >= len(s.ids) {
		return false
	}
	end := min(s.pos+s.batchSize, len(s.ids))
	s.batch = nil
	for _, id := range s.ids[s.pos:end] {
		if d, ok := s.details[id]; ok {
			s.batch = append(s.batch, d)
		}
	}
	s.pos = end
	return true
}

func (s *fakeStream) Batch() []domain.GameDetail { return s.batch }
func (s *fakeStream) Err() error                 { return nil }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	svc     *Service
	jobs    *fakeJobs
	catalog *fakeCatalog
	tracked *fakeTracked
	client  *fakeClient
}

func newTestEnv(mutate ...func(*testEnv)) *testEnv {
	env := &testEnv{
		jobs:    newFakeJobs(),
		catalog: &fakeCatalog{},
		tracked: &fakeTracked{},
		client:  &fakeClient{collections: map[string][]domain.OwnedGame{}},
	}
	for _, m := range mutate {
		m(env)
	}
	cfg := config.CatalogConfig{
		DefaultTopN:      100,
		DefaultBatchSize: 2,
		RanksURL:         "https://example.local/dump.zip",
		ProgressInterval: 0, // every update persists; throttling has its own test
	}
	env.svc = NewService(slog.Default(), cfg, env.jobs, env.catalog, env.tracked, env.client)
	return env
}

func waitDone(t *testing.T, env *testEnv) {
	t.Helper()
	if !env.svc.Wait(5 * time.Second) {
		t.Fatal("job did not finish in time")
	}
}

func ranked(id, title string, rank int) domain.RankedGame {
	r := rank
	return domain.RankedGame{BGGID: id, Title: title, Kind: domain.GameKindBase, Rank: &r}
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func TestStartRefresh_FullPipeline(t *testing.T) {
	t.Parallel()

	env := newTestEnv(func(e *testEnv) {
		e.client.ranked = []domain.RankedGame{
			ranked("1", "Gloomhaven", 1),
			ranked("2", "Pandemic", 2),
		}
		e.tracked.usernames = []string{"alice"}
		e.client.collections["alice"] = []domain.OwnedGame{
			{BGGID: "2", Title: "Pandemic", Kind: domain.GameKindBase},
			{BGGID: "99", Title: "Obscure", Kind: domain.GameKindExpansion},
		}
	})

	job, err := env.svc.StartRefresh(context.Background(), 0, 0, "")
	if err != nil {
		t.Fatalf("StartRefresh: %v", err)
	}
	waitDone(t, env)

	got, err := env.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusDone {
		t.Fatalf("status = %s (error=%v), want done", got.Status, got.Error)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if got.Total == 0 || got.Progress != got.Total {
		t.Errorf("progress = %d/%d, want complete and nonzero", got.Progress, got.Total)
	}

	phases := got.Params.Phases
	for name, ps := range map[string]domain.PhaseState{
		"top_n": phases.TopN, "collection": phases.Collection,
		"details": phases.Details, "cleanup": phases.Cleanup,
	} {
		if ps.Status != domain.PhaseStatusDone {
			t.Errorf("phase %s = %s, want done", name, ps.Status)
		}
		if ps.Progress != ps.Total {
			t.Errorf("phase %s progress = %d/%d", name, ps.Progress, ps.Total)
		}
	}
	if phases.Details.Total != 3 {
		t.Errorf("details total = %d, want 3 candidates", phases.Details.Total)
	}

	if len(env.catalog.purgedKeeps) != 1 || len(env.catalog.purgedKeeps[0]) != 1 {
		t.Errorf("purge calls = %+v, want one with [alice]", env.catalog.purgedKeeps)
	}
	// 3 candidates at batch size 2.
	if len(env.catalog.chunks) != 2 {
		t.Fatalf("chunk syncs = %d, want 2", len(env.catalog.chunks))
	}
	if len(env.catalog.syncs) != 1 {
		t.Fatalf("full syncs = %d, want 1", len(env.catalog.syncs))
	}
	final := env.catalog.syncs[0]
	if !final.Prune {
		t.Error("final sync should prune")
	}
	if len(final.Games) != 3 {
		t.Errorf("final candidate set = %d, want 3", len(final.Games))
	}
	if got := final.OwnedByUser["alice"]; len(got) != 2 {
		t.Errorf("alice owned = %v, want 2 ids", got)
	}
	if g, ok := final.Games["2"]; !ok || !g.Owned {
		t.Error("ranked game 2 should be tagged owned")
	}
	if g, ok := final.Games["99"]; !ok || !g.Owned || g.Kind != domain.GameKindExpansion {
		t.Errorf("stub entry 99 = %+v", g)
	}
}

func TestStartRefresh_NoRanksURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.svc.cfg.RanksURL = ""

	_, err := env.svc.StartRefresh(context.Background(), 10, 5, "")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if len(env.jobs.jobs) != 0 {
		t.Error("no job row should be created on a config error")
	}
}

func TestStartRefresh_RemoteErrorFailsJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(func(e *testEnv) {
		e.client.rankedErr = fmt.Errorf("dump gone: %w", domain.ErrRemoteFatal)
	})

	job, err := env.svc.StartRefresh(context.Background(), 0, 0, "")
	if err != nil {
		t.Fatalf("StartRefresh: %v", err)
	}
	waitDone(t, env)

	got, _ := env.jobs.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "dump gone") {
		t.Errorf("error message = %v", got.Error)
	}
}

func TestStartRefresh_CancelledAtPhaseBoundary(t *testing.T) {
	t.Parallel()

	env := newTestEnv(func(e *testEnv) {
		e.client.ranked = []domain.RankedGame{ranked("1", "Gloomhaven", 1)}
		e.client.onRanked = func() {
			// The fake holds exactly one job: the one being run.
			e.jobs.mu.Lock()
			var id uuid.UUID
			for jid := range e.jobs.jobs {
				id = jid
			}
			e.jobs.mu.Unlock()
			_ = e.jobs.UpdateStatus(context.Background(), id, domain.JobStatusCancelling)
		}
	})

	job, err := env.svc.StartRefresh(context.Background(), 0, 0, "")
	if err != nil {
		t.Fatalf("StartRefresh: %v", err)
	}
	waitDone(t, env)

	got, _ := env.jobs.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "cancelled") {
		t.Errorf("error = %v, want cancellation message", got.Error)
	}
	// The running phase completed; nothing after the boundary ran.
	if len(env.catalog.chunks) != 0 || len(env.catalog.syncs) != 0 {
		t.Error("no sync work should run after cancellation")
	}
}

func TestRun_PanicBecomesErrorOutcome(t *testing.T) {
	t.Parallel()

	env := newTestEnv(func(e *testEnv) {
		e.client.ranked = []domain.RankedGame{ranked("1", "Gloomhaven", 1)}
		e.catalog.syncPanics = true
	})

	job, err := env.svc.StartRefresh(context.Background(), 0, 0, "")
	if err != nil {
		t.Fatalf("StartRefresh: %v", err)
	}
	waitDone(t, env)

	got, _ := env.jobs.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "panic") {
		t.Errorf("error = %v, want panic message", got.Error)
	}
}

// ---------------------------------------------------------------------------
// Top-N and collection variants
// ---------------------------------------------------------------------------

func TestStartTopN_SkipsCollectionsAndPrune(t *testing.T) {
	t.Parallel()

	env := newTestEnv(func(e *testEnv) {
		e.client.ranked = []domain.RankedGame{
			ranked("1", "Gloomhaven", 1),
			ranked("2", "Pandemic", 2),
			ranked("3", "Azul", 3),
		}
		e.tracked.usernames = []string{"alice"} // must be ignored
	})

	job, err := env.svc.StartTopN(context.Background(), 2, 0, "")
	if err != nil {
		t.Fatalf("StartTopN: %v", err)
	}
	waitDone(t, env)

	got, _ := env.jobs.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusDone {
		t.Fatalf("status = %s (error=%v)", got.Status, got.Error)
	}
	if got.Params.Phases.Collection.Status != domain.PhaseStatusSkipped {
		t.Errorf("collection phase = %s, want skipped", got.Params.Phases.Collection.Status)
	}
	if len(env.catalog.purgedKeeps) != 0 {
		t.Error("top-n run must not purge collections")
	}
	if len(env.catalog.syncs) != 1 || env.catalog.syncs[0].Prune {
		t.Errorf("final sync = %+v, want single non-pruning sync", env.catalog.syncs)
	}
	if n := len(env.catalog.syncs[0].Games); n != 2 {
		t.Errorf("candidates = %d, want n=2 cap applied", n)
	}
}

func TestStartCollection_DefaultsToTrackedUsers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(func(e *testEnv) {
		e.tracked.usernames = []string{"bob"}
		e.client.collections["bob"] = []domain.OwnedGame{
			{BGGID: "7", Title: "Root", Kind: domain.GameKindBase},
		}
	})

	job, err := env.svc.StartCollection(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("StartCollection: %v", err)
	}
	waitDone(t, env)

	got, _ := env.jobs.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusDone {
		t.Fatalf("status = %s (error=%v)", got.Status, got.Error)
	}
	if got.Params.Phases.TopN.Status != domain.PhaseStatusSkipped {
		t.Errorf("top_n phase = %s, want skipped", got.Params.Phases.TopN.Status)
	}
	if len(env.catalog.syncs) != 1 || env.catalog.syncs[0].Prune {
		t.Error("collection run must not prune")
	}
	if got := env.catalog.syncs[0].OwnedByUser["bob"]; len(got) != 1 || got[0] != "7" {
		t.Errorf("bob owned = %v", got)
	}
}

func TestStartCollection_NoUsernamesAnywhere(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	_, err := env.svc.StartCollection(context.Background(), nil, 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

// ---------------------------------------------------------------------------
// Cancel / Clear
// ---------------------------------------------------------------------------

func TestCancel_TerminalJobConflicts(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	job, _ := env.jobs.Create(context.Background(), domain.JobKindTopN, domain.JobParams{})
	_ = env.jobs.Finish(context.Background(), job.ID, domain.JobStatusDone, nil)

	err := env.svc.Cancel(context.Background(), job.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCancel_MarksCancelling(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	job, _ := env.jobs.Create(context.Background(), domain.JobKindRefresh, domain.JobParams{})

	if err := env.svc.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := env.jobs.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusCancelling {
		t.Errorf("status = %s, want cancelling", got.Status)
	}
}

// ---------------------------------------------------------------------------
// Progress writer
// ---------------------------------------------------------------------------

func TestProgressWriter_TransitionsWriteImmediately(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobs()
	job, _ := jobs.Create(context.Background(), domain.JobKindRefresh, domain.JobParams{})

	// A long interval suppresses every plain update.
	w := newProgressWriter(slog.Default(), jobs, job.ID, job.Params, time.Hour)
	w.start(domain.PhaseTopN, 10)
	for i := 1; i <= 5; i++ {
		w.update(domain.PhaseTopN, i, 10)
	}
	w.finish(domain.PhaseTopN, 10)
	w.close()

	got, _ := jobs.Get(context.Background(), job.ID)
	ps := got.Params.Phases.TopN
	if ps.Status != domain.PhaseStatusDone || ps.Progress != 10 || ps.Total != 10 {
		t.Errorf("phase = %+v", ps)
	}
	if ps.Items != 10 {
		t.Errorf("items = %d, want 10", ps.Items)
	}
	if ps.StartedAt == nil || ps.FinishedAt == nil {
		t.Error("phase timestamps not set")
	}

	// start + finish transitions, plus the closing flush; the five updates
	// were throttled away.
	if n := jobs.writeCount(); n != 3 {
		t.Errorf("writes = %d, want 3", n)
	}
	if got.Progress != 10 || got.Total != 10 {
		t.Errorf("job progress = %d/%d", got.Progress, got.Total)
	}
}

func TestProgressWriter_ProgressNeverRegresses(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobs()
	job, _ := jobs.Create(context.Background(), domain.JobKindRefresh, domain.JobParams{})

	w := newProgressWriter(slog.Default(), jobs, job.ID, job.Params, 0)
	w.start(domain.PhaseDetails, 100)
	w.update(domain.PhaseDetails, 40, 100)
	w.update(domain.PhaseDetails, 30, 100) // stale update must not move it back
	w.close()

	got, _ := jobs.Get(context.Background(), job.ID)
	if got.Params.Phases.Details.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Params.Phases.Details.Progress)
	}

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	last := -1
	for _, wr := range jobs.writes {
		if wr.progress < last {
			t.Errorf("persisted progress regressed: %d after %d", wr.progress, last)
		}
		last = wr.progress
	}
}

func TestProgressWriter_SumsPhases(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobs()
	job, _ := jobs.Create(context.Background(), domain.JobKindRefresh, domain.JobParams{})

	w := newProgressWriter(slog.Default(), jobs, job.ID, job.Params, 0)
	w.start(domain.PhaseTopN, 1)
	w.finish(domain.PhaseTopN, 500)
	w.start(domain.PhaseDetails, 500)
	w.update(domain.PhaseDetails, 200, 500)
	w.close()

	got, _ := jobs.Get(context.Background(), job.ID)
	if got.Progress != 201 || got.Total != 501 {
		t.Errorf("job progress = %d/%d, want 201/501", got.Progress, got.Total)
	}
}
