package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"teamboard-api/internal/auth"
)

var ErrEmailTaken = errors.New("email already registered")

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create hashes the password and persists a new principal. Email
// uniqueness is enforced by the store; a conflict surfaces as
// ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, input NewUser) (auth.Principal, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return auth.Principal{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return auth.Principal{}, err
	}

	principal := auth.Principal{
		ID:           id.String(),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, firstname, lastname, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, principal.ID, principal.FirstName, principal.LastName, principal.Email, principal.PasswordHash, principal.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return auth.Principal{}, ErrEmailTaken
		}
		return auth.Principal{}, fmt.Errorf("insert user: %w", err)
	}

	return principal, nil
}

// FindByEmail implements auth.CredentialStore.
func (r *Repository) FindByEmail(ctx context.Context, email string) (auth.Principal, error) {
	var principal auth.Principal
	var firstFailedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, firstname, lastname, email, password_hash, created_at,
		       failed_attempts, first_failed_at, temporarily_blocked
		FROM users
		WHERE email = $1
	`, email).Scan(
		&principal.ID, &principal.FirstName, &principal.LastName, &principal.Email,
		&principal.PasswordHash, &principal.CreatedAt,
		&principal.Lockout.FailedAttempts, &firstFailedAt, &principal.Lockout.Blocked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Principal{}, auth.ErrUnknownPrincipal
		}
		return auth.Principal{}, fmt.Errorf("query user by email: %w", err)
	}

	if firstFailedAt.Valid {
		value := firstFailedAt.Time.UTC()
		principal.Lockout.FirstFailedAt = &value
	}

	return principal, nil
}

// UpdateLockout implements auth.CredentialStore. The row is locked for
// the duration of the transition so concurrent failures serialize
// instead of losing counter updates.
func (r *Repository) UpdateLockout(ctx context.Context, principalID string, apply func(auth.LockoutState) auth.LockoutState) (auth.LockoutState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.LockoutState{}, fmt.Errorf("begin lockout tx: %w", err)
	}
	defer tx.Rollback()

	var state auth.LockoutState
	var firstFailedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, first_failed_at, temporarily_blocked
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, principalID).Scan(&state.FailedAttempts, &firstFailedAt, &state.Blocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.LockoutState{}, auth.ErrUnknownPrincipal
		}
		return auth.LockoutState{}, fmt.Errorf("lock user row: %w", err)
	}
	if firstFailedAt.Valid {
		value := firstFailedAt.Time.UTC()
		state.FirstFailedAt = &value
	}

	next := apply(state)

	var nextFirstFailed any
	if next.FirstFailedAt != nil {
		nextFirstFailed = next.FirstFailedAt.UTC()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET failed_attempts = $2, first_failed_at = $3, temporarily_blocked = $4
		WHERE id = $1
	`, principalID, next.FailedAttempts, nextFirstFailed, next.Blocked)
	if err != nil {
		return auth.LockoutState{}, fmt.Errorf("update lockout state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return auth.LockoutState{}, fmt.Errorf("commit lockout tx: %w", err)
	}

	return next, nil
}

// AllowLoginIP implements auth.LoginThrottleStore with a single upsert so
// concurrent hits against the same IP stay consistent.
func (r *Repository) AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	threshold := now.UTC().Add(-window)

	var hits int
	var windowStartedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		WITH upsert AS (
			INSERT INTO login_ip_limits (ip, window_started_at, hits, updated_at)
			VALUES ($1, $2, 1, $2)
			ON CONFLICT (ip) DO UPDATE
			SET
				hits = CASE
					WHEN login_ip_limits.window_started_at <= $3 THEN 1
					ELSE login_ip_limits.hits + 1
				END,
				window_started_at = CASE
					WHEN login_ip_limits.window_started_at <= $3 THEN $2
					ELSE login_ip_limits.window_started_at
				END,
				updated_at = $2
			RETURNING hits, window_started_at
		)
		SELECT hits, window_started_at FROM upsert
	`, ip, now.UTC(), threshold).Scan(&hits, &windowStartedAt)
	if err != nil {
		return false, 0, fmt.Errorf("upsert login ip limit: %w", err)
	}

	if hits <= maxHits {
		return true, 0, nil
	}

	retryAfter := windowStartedAt.Add(window).Sub(now.UTC())
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return false, retryAfter, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	where := []string{"id <> $1"}
	args := []any{filter.ExcludeID}

	addArg := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.FirstName != "" {
		addArg("firstname ILIKE '%%' || $%d || '%%'", filter.FirstName)
	}
	if filter.LastName != "" {
		addArg("lastname ILIKE '%%' || $%d || '%%'", filter.LastName)
	}
	if filter.Email != "" {
		addArg("email = $%d", strings.ToLower(filter.Email))
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
		SELECT id, firstname, lastname, email, created_at
		FROM users
		WHERE %s
		ORDER BY created_at %s
		LIMIT %d OFFSET %d
	`, strings.Join(where, " AND "), direction, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]Summary, 0)
	for rows.Next() {
		var u Summary
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE %s`, strings.Join(where, " AND "))
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// GetProfile returns one user's public fields plus their 50 most recent
// posts and todos. Soft-deleted rows never show up.
func (r *Repository) GetProfile(ctx context.Context, id string) (Profile, error) {
	var profile Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, firstname, lastname, email, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&profile.ID, &profile.FirstName, &profile.LastName, &profile.Email, &profile.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, sql.ErrNoRows
		}
		return Profile{}, fmt.Errorf("query user profile: %w", err)
	}

	postRows, err := r.db.QueryContext(ctx, `
		SELECT id, content, created_at
		FROM posts
		WHERE author_id = $1 AND NOT deleted
		ORDER BY created_at DESC
		LIMIT 50
	`, id)
	if err != nil {
		return Profile{}, fmt.Errorf("query profile posts: %w", err)
	}
	defer postRows.Close()

	profile.Posts = make([]ProfilePost, 0)
	for postRows.Next() {
		var p ProfilePost
		if err := postRows.Scan(&p.ID, &p.Content, &p.CreatedAt); err != nil {
			return Profile{}, fmt.Errorf("scan profile post: %w", err)
		}
		profile.Posts = append(profile.Posts, p)
	}
	if err := postRows.Err(); err != nil {
		return Profile{}, fmt.Errorf("iterate profile posts: %w", err)
	}

	todoRows, err := r.db.QueryContext(ctx, `
		SELECT id, task, completed, created_at, completed_at
		FROM todos
		WHERE owner_id = $1 AND NOT deleted
		ORDER BY created_at DESC
		LIMIT 50
	`, id)
	if err != nil {
		return Profile{}, fmt.Errorf("query profile todos: %w", err)
	}
	defer todoRows.Close()

	profile.Todos = make([]ProfileTodo, 0)
	for todoRows.Next() {
		var t ProfileTodo
		var completedAt sql.NullTime
		if err := todoRows.Scan(&t.ID, &t.Task, &t.Completed, &t.CreatedAt, &completedAt); err != nil {
			return Profile{}, fmt.Errorf("scan profile todo: %w", err)
		}
		if completedAt.Valid {
			value := completedAt.Time.UTC()
			t.CompletedAt = &value
		}
		profile.Todos = append(profile.Todos, t)
	}
	if err := todoRows.Err(); err != nil {
		return Profile{}, fmt.Errorf("iterate profile todos: %w", err)
	}

	return profile, nil
}
