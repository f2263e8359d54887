package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

type CleanupResult struct {
	DeletedIPLimits int64 `json:"deleted_ip_limits"`
	PurgedPosts     int64 `json:"purged_posts"`
	PurgedComments  int64 `json:"purged_comments"`
	PurgedTodos     int64 `json:"purged_todos"`
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CleanupStaleData drops expired login throttle rows and hard-deletes
// soft-deleted resources past the retention window, in bounded batches.
func (r *Repository) CleanupStaleData(ctx context.Context, retention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-retention)

	deletedIPLimits, err := r.deleteStaleIPLimits(ctx, cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	purgedComments, err := r.purgeSoftDeleted(ctx, "comments", cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}
	purgedPosts, err := r.purgeSoftDeleted(ctx, "posts", cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}
	purgedTodos, err := r.purgeSoftDeleted(ctx, "todos", cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedIPLimits: deletedIPLimits,
		PurgedPosts:     purgedPosts,
		PurgedComments:  purgedComments,
		PurgedTodos:     purgedTodos,
	}, nil
}

func (r *Repository) deleteStaleIPLimits(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT ip
			FROM login_ip_limits
			WHERE updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM login_ip_limits t
		USING stale
		WHERE t.ip = stale.ip
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login ip limits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login ip limits rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) purgeSoftDeleted(ctx context.Context, table string, cutoff time.Time, batchSize int) (int64, error) {
	// table is one of a fixed set picked by the caller, never user input.
	query := fmt.Sprintf(`
		WITH stale AS (
			SELECT id
			FROM %[1]s
			WHERE deleted AND deleted_at < $1
			ORDER BY deleted_at ASC
			LIMIT $2
		)
		DELETE FROM %[1]s t
		USING stale
		WHERE t.id = stale.id
	`, table)

	res, err := r.db.ExecContext(ctx, query, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("purge soft-deleted %s: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge %s rows affected: %w", table, err)
	}

	return affected, nil
}
