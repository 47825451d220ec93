package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobKind identifies what a fetch job does.
type JobKind string

const (
	JobKindTopN       JobKind = "top_n"
	JobKindCollection JobKind = "collection"
	JobKindRefresh    JobKind = "refresh"
)

func (k JobKind) String() string { return string(k) }

func (k JobKind) IsValid() bool {
	switch k {
	case JobKindTopN, JobKindCollection, JobKindRefresh:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a fetch job.
// pending → running → done|error; cancelling is a request flag that the
// runner honors at phase boundaries only.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
	JobStatusCancelling JobStatus = "cancelling"
)

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// PhaseStatus is the sub-state of a single refresh phase.
type PhaseStatus string

const (
	PhaseStatusPending PhaseStatus = "pending"
	PhaseStatusRunning PhaseStatus = "running"
	PhaseStatusDone    PhaseStatus = "done"
	PhaseStatusSkipped PhaseStatus = "skipped"
)

// PhaseName identifies one stage of a refresh job.
type PhaseName string

const (
	PhaseTopN       PhaseName = "top_n"
	PhaseCollection PhaseName = "collection"
	PhaseDetails    PhaseName = "details"
	PhaseCleanup    PhaseName = "cleanup"
)

// PhaseState tracks progress of one phase. The JSON shape matches what the
// UI polls for.
type PhaseState struct {
	Status     PhaseStatus `json:"status"`
	Progress   int         `json:"progress"`
	Total      int         `json:"total"`
	Items      int         `json:"items,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// JobPhases is the structured per-phase progress document stored in the
// job's params.
type JobPhases struct {
	TopN       PhaseState `json:"top_n"`
	Collection PhaseState `json:"collection"`
	Details    PhaseState `json:"details"`
	Cleanup    PhaseState `json:"cleanup"`
}

// Get returns a pointer to the state for the named phase, or nil for an
// unknown name.
func (p *JobPhases) Get(name PhaseName) *PhaseState {
	switch name {
	case PhaseTopN:
		return &p.TopN
	case PhaseCollection:
		return &p.Collection
	case PhaseDetails:
		return &p.Details
	case PhaseCleanup:
		return &p.Cleanup
	}
	return nil
}

// JobParams is the structured parameter document of a fetch job.
type JobParams struct {
	N         int       `json:"n,omitempty"`
	Usernames []string  `json:"usernames,omitempty"`
	BatchSize int       `json:"batch_size,omitempty"`
	RanksURL  string    `json:"ranks_url,omitempty"`
	Phases    JobPhases `json:"phases"`
}

// FetchJob is one ingestion run.
type FetchJob struct {
	ID         uuid.UUID
	Kind       JobKind
	Params     JobParams
	Status     JobStatus
	Progress   int
	Total      int
	Error      *string
	CreatedAt  time.Time
	FinishedAt *time.Time
}
