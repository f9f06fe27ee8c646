package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/people-registry/registry/internal/platform/db"
)

const uniqueViolation = "23505"

// Schema creates the role_assignments table. The partial unique index keeps
// at most one active assignment per (user, role).
const Schema = `
CREATE TABLE IF NOT EXISTS role_assignments (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	user_email  TEXT NOT NULL,
	role_type   TEXT NOT NULL,
	assigned_by TEXT NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	notes       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS role_assignments_user_idx ON role_assignments (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS role_assignments_active_uniq
	ON role_assignments (user_id, role_type) WHERE is_active;
`

const assignmentColumns = `id, user_id, user_email, role_type, assigned_by, assigned_at, updated_at, expires_at, is_active, notes`

// Repository persists role assignments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("rbac: migrate: %w", err)
	}
	return nil
}

// ListActive returns assignments flagged active for the user, expired ones included.
func (r *Repository) ListActive(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM role_assignments WHERE user_id = $1 AND is_active ORDER BY assigned_at`, userID)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

// ListByUser returns the full assignment history of the user.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM role_assignments WHERE user_id = $1 ORDER BY assigned_at`, userID)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

// Insert stores a new assignment.
func (r *Repository) Insert(ctx context.Context, a Assignment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_assignments (`+assignmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.UserEmail, a.RoleType.String(), a.AssignedBy, a.AssignedAt, a.UpdatedAt, toTimestamptz(a.ExpiresAt), a.IsActive, a.Notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

// MarkInactive revokes an assignment. The is_active guard makes concurrent
// revocations of the same record resolve to exactly one winner.
func (r *Repository) MarkInactive(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE role_assignments SET is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_active`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reconcile deactivates expired assignments, then keeps only the newest
// active assignment of each (user, role) pair. Both run in one transaction.
func (r *Repository) Reconcile(ctx context.Context, now time.Time) (expired, duplicates int64, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var txErr error
		if expired, txErr = deactivateExpired(ctx, tx, now); txErr != nil {
			return fmt.Errorf("rbac: deactivate expired: %w", txErr)
		}
		if duplicates, txErr = deactivateDuplicates(ctx, tx, now); txErr != nil {
			return fmt.Errorf("rbac: deactivate duplicates: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return expired, duplicates, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func deactivateExpired(ctx context.Context, q execer, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `UPDATE role_assignments SET is_active = FALSE, updated_at = $1 WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func deactivateDuplicates(ctx context.Context, q execer, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
UPDATE role_assignments ra SET is_active = FALSE, updated_at = $1
FROM (
	SELECT id, ROW_NUMBER() OVER (PARTITION BY user_id, role_type ORDER BY assigned_at DESC, id DESC) AS rn
	FROM role_assignments WHERE is_active
) ranked
WHERE ra.id = ranked.id AND ranked.rn > 1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanAssignments(rows pgx.Rows) ([]Assignment, error) {
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var (
			a         Assignment
			role      string
			expiresAt pgtype.Timestamptz
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserEmail, &role, &a.AssignedBy, &a.AssignedAt, &a.UpdatedAt, &expiresAt, &a.IsActive, &a.Notes); err != nil {
			return nil, err
		}
		parsed, err := ParseRoleType(role)
		if err != nil {
			return nil, fmt.Errorf("rbac: assignment %s: %w", a.ID, err)
		}
		a.RoleType = parsed
		if expiresAt.Valid {
			t := expiresAt.Time
			a.ExpiresAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

var _ AssignmentStore = (*Repository)(nil)
