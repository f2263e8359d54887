package post

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotAuthor = errors.New("principal is not the author")

// topCommentsPerPost caps how many comments ride along with each post in
// list responses. The detail endpoint returns all of them.
const topCommentsPerPost = 5

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, authorID, content string) (Post, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Post{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4)
	`, id.String(), authorID, content, now)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	return r.Get(ctx, id.String())
}

// Get returns a live post with its author and full comment list, newest
// comments first.
func (r *Repository) Get(ctx context.Context, id string) (Post, error) {
	var p Post
	err := r.db.QueryRowContext(ctx, `
		SELECT p.id, p.content, p.created_at,
		       u.id, u.firstname, u.lastname, u.email
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.id = $1 AND NOT p.deleted
	`, id).Scan(&p.ID, &p.Content, &p.CreatedAt, &p.Author.ID, &p.Author.FirstName, &p.Author.LastName, &p.Author.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, sql.ErrNoRows
		}
		return Post{}, fmt.Errorf("query post: %w", err)
	}

	comments, err := r.Comments(ctx, id)
	if err != nil {
		return Post{}, err
	}
	p.Comments = comments

	return p, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) (Page, error) {
	where := []string{"NOT p.deleted"}
	args := []any{}

	addArg := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.AuthorID != "" {
		addArg("p.author_id = $%d", filter.AuthorID)
	}
	if filter.CreatedAfter != nil {
		addArg("p.created_at >= $%d", filter.CreatedAfter.UTC())
	}
	if filter.CreatedBefore != nil {
		addArg("p.created_at <= $%d", filter.CreatedBefore.UTC())
	}

	direction := "DESC"
	if filter.SortAsc {
		direction = "ASC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.content, p.created_at,
		       u.id, u.firstname, u.lastname, u.email
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE %s
		ORDER BY p.created_at %s
		LIMIT %d OFFSET %d
	`, strings.Join(where, " AND "), direction, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Content, &p.CreatedAt, &p.Author.ID, &p.Author.FirstName, &p.Author.LastName, &p.Author.Email); err != nil {
			return Page{}, fmt.Errorf("scan post: %w", err)
		}
		p.Comments = make([]Comment, 0)
		posts = append(posts, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate posts: %w", err)
	}

	if err := r.attachTopComments(ctx, posts, ids); err != nil {
		return Page{}, err
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM posts p WHERE %s`, strings.Join(where, " AND "))
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count posts: %w", err)
	}

	nextSkip := skip + len(posts)
	if total > skip+limit {
		nextSkip = skip + limit
	}

	return Page{Posts: posts, Skip: nextSkip, TotalCount: total}, nil
}

func (r *Repository) attachTopComments(ctx context.Context, posts []Post, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, post_id, content, added_by, created_at
		FROM (
			SELECT c.*, ROW_NUMBER() OVER (PARTITION BY c.post_id ORDER BY c.created_at DESC) AS rank
			FROM comments c
			WHERE c.post_id = ANY($1) AND NOT c.deleted
		) ranked
		WHERE rank <= $2
		ORDER BY created_at DESC
	`, ids, topCommentsPerPost)
	if err != nil {
		return fmt.Errorf("query top comments: %w", err)
	}
	defer rows.Close()

	byPost := make(map[string][]Comment, len(ids))
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.Content, &c.AddedBy, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}

	for i := range posts {
		if comments, ok := byPost[posts[i].ID]; ok {
			posts[i].Comments = comments
		}
	}

	return nil
}

// Update edits the content of a live post. Only the author may edit.
func (r *Repository) Update(ctx context.Context, id, principalID, content string) (Post, error) {
	if err := r.requireAuthor(ctx, id, principalID); err != nil {
		return Post{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE posts SET content = $3 WHERE id = $1 AND author_id = $2 AND NOT deleted
	`, id, principalID, content)
	if err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return Post{}, fmt.Errorf("update post rows affected: %w", err)
	} else if affected == 0 {
		return Post{}, sql.ErrNoRows
	}

	return r.Get(ctx, id)
}

// Delete soft-deletes a post, keeping the row for audit.
func (r *Repository) Delete(ctx context.Context, id, principalID string) error {
	if err := r.requireAuthor(ctx, id, principalID); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE posts
		SET deleted = TRUE, deleted_at = $3, deleted_by = $2
		WHERE id = $1 AND NOT deleted
	`, id, principalID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete post rows affected: %w", err)
	} else if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) requireAuthor(ctx context.Context, id, principalID string) error {
	var authorID string
	err := r.db.QueryRowContext(ctx, `
		SELECT author_id FROM posts WHERE id = $1 AND NOT deleted
	`, id).Scan(&authorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("query post author: %w", err)
	}
	if authorID != principalID {
		return ErrNotAuthor
	}
	return nil
}

// Comments returns every live comment on a post, newest first.
func (r *Repository) Comments(ctx context.Context, postID string) ([]Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, post_id, content, added_by, created_at
		FROM comments
		WHERE post_id = $1 AND NOT deleted
		ORDER BY created_at DESC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.Content, &c.AddedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

func (r *Repository) CreateComment(ctx context.Context, postID, principalID, content string) (Comment, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1 AND NOT deleted)
	`, postID).Scan(&exists)
	if err != nil {
		return Comment{}, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return Comment{}, sql.ErrNoRows
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Comment{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	c := Comment{
		ID:        id.String(),
		PostID:    postID,
		Content:   content,
		AddedBy:   principalID,
		CreatedAt: time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, content, added_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.PostID, c.Content, c.AddedBy, c.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	return c, nil
}

// DeleteComment soft-deletes a comment. Only the comment's author may
// delete it.
func (r *Repository) DeleteComment(ctx context.Context, commentID, principalID string) error {
	var addedBy string
	err := r.db.QueryRowContext(ctx, `
		SELECT added_by FROM comments WHERE id = $1 AND NOT deleted
	`, commentID).Scan(&addedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("query comment author: %w", err)
	}
	if addedBy != principalID {
		return ErrNotAuthor
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE comments
		SET deleted = TRUE, deleted_at = $3, deleted_by = $2
		WHERE id = $1
	`, commentID, principalID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	return nil
}
