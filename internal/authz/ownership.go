package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/people-registry/registry/internal/rbac"
)

// OwnershipResolver answers whether a user owns a stored resource.
type OwnershipResolver interface {
	IsOwner(ctx context.Context, userID string, resource rbac.Resource, resourceID string) (bool, error)
}

// PGOwnershipResolver reads resource owners from PostgreSQL.
type PGOwnershipResolver struct {
	pool *pgxpool.Pool
}

// NewPGOwnershipResolver constructs a resolver.
func NewPGOwnershipResolver(pool *pgxpool.Pool) *PGOwnershipResolver {
	return &PGOwnershipResolver{pool: pool}
}

// OwnershipSchema creates the owner columns the resolver reads. The tables
// belong to the project and subscription services; IF NOT EXISTS leaves
// their richer definitions untouched when they already exist.
const OwnershipSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	created_by TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	id        TEXT PRIMARY KEY,
	person_id TEXT NOT NULL
);
`

// Migrate applies OwnershipSchema.
func (r *PGOwnershipResolver) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, OwnershipSchema); err != nil {
		return fmt.Errorf("authz: migrate: %w", err)
	}
	return nil
}

type ownerQuery struct {
	table  string
	column string
}

func (q ownerQuery) sql() string {
	return `SELECT ` + q.column + ` FROM ` + q.table + ` WHERE id = $1`
}

var ownerQueries = map[rbac.Resource]ownerQuery{
	rbac.ResourceProject:      {table: "projects", column: "created_by"},
	rbac.ResourceSubscription: {table: "subscriptions", column: "person_id"},
}

// IsOwner implements OwnershipResolver. Missing resources are not owned.
func (r *PGOwnershipResolver) IsOwner(ctx context.Context, userID string, resource rbac.Resource, resourceID string) (bool, error) {
	if resource == rbac.ResourceUser {
		return ownsSelf(userID, resourceID), nil
	}
	query, ok := ownerQueries[resource]
	if !ok {
		return false, fmt.Errorf("authz: no owner lookup for %s", resource)
	}
	var owner string
	if err := r.pool.QueryRow(ctx, query.sql(), resourceID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return owner == userID, nil
}

// Ownership turns an OwnershipResolver into per-permission predicates.
type Ownership struct {
	resolver OwnershipResolver
	logger   *slog.Logger
}

// NewOwnership builds Ownership. resolver may be nil, in which case only
// user self-ownership can be established.
func NewOwnership(resolver OwnershipResolver, logger *slog.Logger) *Ownership {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ownership{resolver: resolver, logger: logger}
}

// PredicateFor returns the ownership predicate for perm's resource. Lookup
// failures are logged and treated as not owned.
func (o *Ownership) PredicateFor(ctx context.Context, perm rbac.Permission) rbac.OwnershipPredicate {
	resource := perm.Resource()
	if resource == rbac.ResourceUser {
		return ownsSelf
	}
	if o == nil || o.resolver == nil {
		return nil
	}
	return func(userID, resourceID string) bool {
		owned, err := o.resolver.IsOwner(ctx, userID, resource, resourceID)
		if err != nil {
			o.logger.Error("authz ownership lookup",
				slog.String("user_id", userID),
				slog.String("resource", string(resource)),
				slog.String("resource_id", resourceID),
				slog.Any("error", err),
			)
			return false
		}
		return owned
	}
}

// ownsSelf is the ownership rule for user records: a user owns their own id.
func ownsSelf(userID, resourceID string) bool {
	return userID != "" && userID == resourceID
}

var _ rbac.OwnershipSource = (*Ownership)(nil)
