// Package trackeduser implements the tracked_users repository using PostgreSQL.
package trackeduser

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// Repo provides tracked user persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new tracked user repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Add registers a username for collection tracking. The username is stored
// normalized; adding an existing one is a no-op.
func (r *Repo) Add(ctx context.Context, username string) (*domain.TrackedUser, error) {
	username = domain.NormalizeUsername(username)
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx,
		`INSERT INTO tracked_users (username) VALUES ($1) ON CONFLICT (username) DO NOTHING`,
		username,
	)
	if err != nil {
		return nil, postgres.MapError(err, "tracked user", username)
	}

	var u domain.TrackedUser
	err = q.QueryRow(ctx,
		`SELECT username, created_at FROM tracked_users WHERE username = $1`, username,
	).Scan(&u.Username, &u.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "tracked user", username)
	}
	return &u, nil
}

// Remove untracks a username. Returns ErrNotFound if it was not tracked.
func (r *Repo) Remove(ctx context.Context, username string) error {
	username = domain.NormalizeUsername(username)
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, `DELETE FROM tracked_users WHERE username = $1`, username)
	if err != nil {
		return postgres.MapError(err, "tracked user", username)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tracked user %s: %w", username, domain.ErrNotFound)
	}
	return nil
}

// List returns all tracked users sorted by username.
func (r *Repo) List(ctx context.Context) ([]domain.TrackedUser, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`SELECT username, created_at FROM tracked_users ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracked users: %w", err)
	}
	defer rows.Close()

	var users []domain.TrackedUser
	for rows.Next() {
		var u domain.TrackedUser
		if err := rows.Scan(&u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tracked user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Usernames returns just the tracked usernames sorted ascending.
func (r *Repo) Usernames(ctx context.Context) ([]string, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names, nil
}
