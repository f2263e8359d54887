package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotOwner = errors.New("principal is not the owner")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, ownerID, task string) (Todo, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Todo{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	t := Todo{
		ID:        id.String(),
		Task:      task,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO todos (id, owner_id, task, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.OwnerID, t.Task, t.CreatedAt)
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo: %w", err)
	}

	return t, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) (Page, error) {
	where := []string{"NOT deleted"}
	args := []any{}

	addArg := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	// Completed tasks are hidden unless asked for explicitly.
	if filter.Completed {
		where = append(where, "completed")
	} else {
		where = append(where, "NOT completed")
	}

	if len(filter.OwnerIDs) > 0 {
		addArg("owner_id = ANY($%d)", filter.OwnerIDs)
	}
	if filter.CreatedAfter != nil {
		addArg("created_at >= $%d", filter.CreatedAfter.UTC())
	}
	if filter.CreatedBefore != nil {
		addArg("created_at <= $%d", filter.CreatedBefore.UTC())
	}

	direction := "DESC"
	if filter.SortAsc {
		direction = "ASC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, task, completed, completed_at, created_at
		FROM todos
		WHERE %s
		ORDER BY created_at %s
		LIMIT %d OFFSET %d
	`, strings.Join(where, " AND "), direction, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	tasks := make([]Todo, 0)
	for rows.Next() {
		var t Todo
		var completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Task, &t.Completed, &completedAt, &t.CreatedAt); err != nil {
			return Page{}, fmt.Errorf("scan todo: %w", err)
		}
		if completedAt.Valid {
			value := completedAt.Time.UTC()
			t.CompletedAt = &value
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate todos: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM todos WHERE %s`, strings.Join(where, " AND "))
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count todos: %w", err)
	}

	nextSkip := skip + len(tasks)
	if total > skip+limit {
		nextSkip = skip + limit
	}

	return Page{Tasks: tasks, Skip: nextSkip, TotalCount: total}, nil
}

func (r *Repository) MarkCompleted(ctx context.Context, id, principalID string) error {
	if err := r.requireOwner(ctx, id, principalID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE todos SET completed = TRUE, completed_at = $2 WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark todo completed: %w", err)
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, id, principalID, task string) (Todo, error) {
	if err := r.requireOwner(ctx, id, principalID); err != nil {
		return Todo{}, err
	}

	var t Todo
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE todos SET task = $2
		WHERE id = $1
		RETURNING id, owner_id, task, completed, completed_at, created_at
	`, id, task).Scan(&t.ID, &t.OwnerID, &t.Task, &t.Completed, &completedAt, &t.CreatedAt)
	if err != nil {
		return Todo{}, fmt.Errorf("update todo: %w", err)
	}
	if completedAt.Valid {
		value := completedAt.Time.UTC()
		t.CompletedAt = &value
	}

	return t, nil
}

func (r *Repository) Delete(ctx context.Context, id, principalID string) error {
	if err := r.requireOwner(ctx, id, principalID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE todos
		SET deleted = TRUE, deleted_at = $3, deleted_by = $2
		WHERE id = $1
	`, id, principalID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}

	return nil
}

func (r *Repository) requireOwner(ctx context.Context, id, principalID string) error {
	var ownerID string
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id FROM todos WHERE id = $1 AND NOT deleted
	`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("query todo owner: %w", err)
	}
	if ownerID != principalID {
		return ErrNotOwner
	}
	return nil
}
