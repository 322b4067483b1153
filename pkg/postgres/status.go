package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Movie status values.
const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
	StatusDeleted = "DELETED"
	StatusFailed  = "FAILED"
)

const schema = `
CREATE TABLE IF NOT EXISTS movie_status (
	movie_id    BIGINT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	op          TEXT NOT NULL,
	status      TEXT NOT NULL,
	revision    BIGINT,
	error       TEXT,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// MovieStatus is one row of movie_status.
type MovieStatus struct {
	MovieID   int64     `json:"movie_id"`
	Title     string    `json:"title"`
	Op        string    `json:"op"`
	Status    string    `json:"status"`
	Revision  *uint64   `json:"revision,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Client) migrate(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating movie_status table: %w", err)
	}
	return nil
}

// MarkPending records that a change to a movie was submitted.
func MarkPending(ctx context.Context, tx *sql.Tx, id int64, title, op string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO movie_status (movie_id, title, op, status, revision, error, updated_at)
		VALUES ($1, $2, $3, $4, NULL, NULL, now())
		ON CONFLICT (movie_id) DO UPDATE
		SET title = EXCLUDED.title, op = EXCLUDED.op, status = EXCLUDED.status,
			revision = NULL, error = NULL, updated_at = now()`,
		id, title, op, StatusPending)
	if err != nil {
		return fmt.Errorf("marking movie %d pending: %w", id, err)
	}
	return nil
}

// MarkCommitted sets the status of the given movies after the commit that
// made their changes durable.
func (c *Client) MarkCommitted(ctx context.Context, ids []int64, status string, revision uint64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.DB.ExecContext(ctx, `
		UPDATE movie_status SET status = $1, revision = $2, error = NULL, updated_at = now()
		WHERE movie_id = ANY($3)`,
		status, int64(revision), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("marking %d movies %s: %w", len(ids), status, err)
	}
	return nil
}

// MarkFailed records why a submission could not be indexed.
func (c *Client) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := c.DB.ExecContext(ctx, `
		INSERT INTO movie_status (movie_id, op, status, error, updated_at)
		VALUES ($1, '', $2, $3, now())
		ON CONFLICT (movie_id) DO UPDATE
		SET status = EXCLUDED.status, error = EXCLUDED.error, updated_at = now()`,
		id, StatusFailed, reason)
	if err != nil {
		return fmt.Errorf("marking movie %d failed: %w", id, err)
	}
	return nil
}

func (c *Client) MovieStatus(ctx context.Context, id int64) (*MovieStatus, error) {
	var (
		s        MovieStatus
		revision sql.NullInt64
		errText  sql.NullString
	)
	err := c.DB.QueryRowContext(ctx, `
		SELECT movie_id, title, op, status, revision, error, updated_at
		FROM movie_status WHERE movie_id = $1`, id).
		Scan(&s.MovieID, &s.Title, &s.Op, &s.Status, &revision, &errText, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no status for movie %d", apperrors.ErrDocNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying status of movie %d: %w", id, err)
	}
	if revision.Valid {
		r := uint64(revision.Int64)
		s.Revision = &r
	}
	s.Error = errText.String
	return &s, nil
}
