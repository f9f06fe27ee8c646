package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/people-registry/registry/internal/rbac"
)

// AuditSchema creates the audit_logs table.
const AuditSchema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id          BIGSERIAL PRIMARY KEY,
	actor_id    TEXT NOT NULL,
	action      TEXT NOT NULL,
	entity      TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	meta        JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Validate checks the required fields of a log entry.
func (l AuditLog) Validate() error {
	if l.ActorID == "" || l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires actor/action/entity/entity_id")
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Migrate applies AuditSchema.
func (l *AuditLogger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, AuditSchema)
	return err
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// RecordRoleEvent stores a role assignment or revocation.
func (l *AuditLogger) RecordRoleEvent(ctx context.Context, event rbac.RoleEvent) error {
	return l.Record(ctx, RoleEventLog(event))
}

// RecordSecurityEvent stores an authentication event such as a lock or unlock.
func (l *AuditLogger) RecordSecurityEvent(ctx context.Context, action, actorID, subjectID string, meta map[string]any) error {
	return l.Record(ctx, AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: subjectID,
		Meta:     meta,
		At:       time.Now().UTC(),
	})
}

// RoleEventLog converts a role event into an audit record.
func RoleEventLog(event rbac.RoleEvent) AuditLog {
	return AuditLog{
		ActorID:  event.ActorID,
		Action:   event.Action,
		Entity:   "role_assignment",
		EntityID: event.AssignmentID,
		Meta: map[string]any{
			"user_id":   event.UserID,
			"role_type": event.RoleType.String(),
		},
		At: event.At,
	}
}

var _ rbac.AuditRecorder = (*AuditLogger)(nil)
