package fetchjob

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

type eventKind int

const (
	evStart eventKind = iota
	evUpdate
	evFinish
	evSkip
)

type progressEvent struct {
	kind     eventKind
	phase    domain.PhaseName
	progress int
	total    int
	items    int
}

// progressWriter is the single persistence point for one job's progress.
// Phase transitions flush immediately; plain updates are throttled to the
// configured interval. The runner and the reconciler's progress callbacks
// all funnel through the events channel, so the params document is only
// ever touched by the writer goroutine.
type progressWriter struct {
	log      *slog.Logger
	jobs     jobRepo
	jobID    uuid.UUID
	interval time.Duration
	params   domain.JobParams

	events chan progressEvent
	done   chan struct{}
}

func newProgressWriter(log *slog.Logger, jobs jobRepo, jobID uuid.UUID, params domain.JobParams, interval time.Duration) *progressWriter {
	w := &progressWriter{
		log:      log,
		jobs:     jobs,
		jobID:    jobID,
		interval: interval,
		params:   params,
		events:   make(chan progressEvent, 64),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *progressWriter) start(phase domain.PhaseName, total int) {
	w.events <- progressEvent{kind: evStart, phase: phase, total: total}
}

func (w *progressWriter) update(phase domain.PhaseName, progress, total int) {
	w.events <- progressEvent{kind: evUpdate, phase: phase, progress: progress, total: total}
}

func (w *progressWriter) finish(phase domain.PhaseName, items int) {
	w.events <- progressEvent{kind: evFinish, phase: phase, items: items}
}

func (w *progressWriter) skip(phase domain.PhaseName) {
	w.events <- progressEvent{kind: evSkip, phase: phase}
}

// close drains pending events, persists the final state and stops the
// writer goroutine.
func (w *progressWriter) close() {
	close(w.events)
	<-w.done
}

func (w *progressWriter) loop() {
	defer close(w.done)

	var lastWrite time.Time
	for ev := range w.events {
		w.apply(ev)
		if ev.kind != evUpdate || time.Since(lastWrite) >= w.interval {
			w.flush()
			lastWrite = time.Now()
		}
	}
	w.flush()
}

func (w *progressWriter) apply(ev progressEvent) {
	ps := w.params.Phases.Get(ev.phase)
	if ps == nil {
		return
	}

	now := time.Now()
	switch ev.kind {
	case evStart:
		ps.Status = domain.PhaseStatusRunning
		ps.Progress = 0
		ps.Total = ev.total
		ps.StartedAt = &now
	case evUpdate:
		if ev.progress > ps.Progress {
			ps.Progress = ev.progress
		}
		if ev.total > 0 {
			ps.Total = ev.total
		}
	case evFinish:
		ps.Status = domain.PhaseStatusDone
		ps.Progress = ps.Total
		if ev.items > 0 {
			ps.Items = ev.items
		}
		ps.FinishedAt = &now
	case evSkip:
		ps.Status = domain.PhaseStatusSkipped
		ps.FinishedAt = &now
	}
	ps.UpdatedAt = &now
}

func (w *progressWriter) flush() {
	progress, total := 0, 0
	phases := &w.params.Phases
	for _, ps := range []*domain.PhaseState{&phases.TopN, &phases.Collection, &phases.Details, &phases.Cleanup} {
		progress += ps.Progress
		total += ps.Total
	}

	if err := w.jobs.UpdateProgress(context.Background(), w.jobID, progress, total, w.params); err != nil {
		w.log.Error("persist job progress", slog.Any("error", err))
	}
}
