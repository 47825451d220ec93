// Package job implements the fetch_jobs repository using PostgreSQL.
package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// Repo provides fetch job persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new fetch job repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const jobColumns = `id, kind, params, status, progress, total, error, created_at, finished_at`

// Create inserts a new pending job and returns it.
func (r *Repo) Create(ctx context.Context, kind domain.JobKind, params domain.JobParams) (*domain.FetchJob, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}

	row := q.QueryRow(ctx,
		`INSERT INTO fetch_jobs (id, kind, params) VALUES ($1, $2, $3)
		 RETURNING `+jobColumns,
		uuid.New(), kind.String(), paramsJSON,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, postgres.MapError(err, "job", kind.String())
	}
	return job, nil
}

// Get returns the job with the given id.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*domain.FetchJob, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM fetch_jobs WHERE id = $1`, id,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, postgres.MapError(err, "job", id.String())
	}
	return job, nil
}

// List returns the most recent jobs, newest first.
func (r *Repo) List(ctx context.Context, limit int) ([]domain.FetchJob, error) {
	if limit <= 0 {
		limit = 50
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`SELECT `+jobColumns+` FROM fetch_jobs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.FetchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateStatus sets a job's status.
func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx,
		`UPDATE fetch_jobs SET status = $2 WHERE id = $1`, id, status.String(),
	)
	if err != nil {
		return postgres.MapError(err, "job", id.String())
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateProgress persists the job's progress counters along with the full
// params document, which carries the per-phase states.
func (r *Repo) UpdateProgress(ctx context.Context, id uuid.UUID, progress, total int, params domain.JobParams) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal job params: %w", err)
	}

	_, err = q.Exec(ctx,
		`UPDATE fetch_jobs SET progress = $2, total = $3, params = $4 WHERE id = $1`,
		id, progress, total, paramsJSON,
	)
	if err != nil {
		return postgres.MapError(err, "job", id.String())
	}
	return nil
}

// Finish marks a job terminal. errMsg is nil for a successful run.
func (r *Repo) Finish(ctx context.Context, id uuid.UUID, status domain.JobStatus, errMsg *string) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx,
		`UPDATE fetch_jobs SET status = $2, error = $3, finished_at = now() WHERE id = $1`,
		id, status.String(), errMsg,
	)
	if err != nil {
		return postgres.MapError(err, "job", id.String())
	}
	return nil
}

// DeleteAll removes every job record and returns the number deleted.
// Running jobs keep going; only their history rows disappear.
func (r *Repo) DeleteAll(ctx context.Context) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, `DELETE FROM fetch_jobs`)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.FetchJob, error) {
	var (
		job        domain.FetchJob
		kind       string
		status     string
		paramsJSON []byte
	)
	err := row.Scan(
		&job.ID, &kind, &paramsJSON, &status, &job.Progress, &job.Total,
		&job.Error, &job.CreatedAt, &job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal(paramsJSON, &job.Params); err != nil {
		return nil, fmt.Errorf("unmarshal job params: %w", err)
	}
	return &job, nil
}
