package post

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"teamboard-api/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

type Store interface {
	Create(ctx context.Context, authorID, content string) (Post, error)
	Get(ctx context.Context, id string) (Post, error)
	List(ctx context.Context, filter ListFilter) (Page, error)
	Update(ctx context.Context, id, principalID, content string) (Post, error)
	Delete(ctx context.Context, id, principalID string) error
	Comments(ctx context.Context, postID string) ([]Comment, error)
	CreateComment(ctx context.Context, postID, principalID, content string) (Comment, error)
	DeleteComment(ctx context.Context, commentID, principalID string) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	input, ok := parsePostInput(w, r)
	if !ok {
		return
	}

	p, err := h.store.Create(r.Context(), principal.ID, input.Content)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{
		AuthorID: strings.TrimSpace(query.Get("user")),
		Limit:    intQueryOrDefault(query.Get("limit"), 50),
		Skip:     intQueryOrDefault(query.Get("skip"), 0),
		SortAsc:  query.Get("sort") != "desc",
	}

	var valid bool
	if filter.CreatedAfter, valid = timeQuery(query.Get("created_after")); !valid {
		writeError(w, http.StatusBadRequest, "created_after must be RFC3339")
		return
	}
	if filter.CreatedBefore, valid = timeQuery(query.Get("created_before")); !valid {
		writeError(w, http.StatusBadRequest, "created_before must be RFC3339")
		return
	}

	page, err := h.store.List(r.Context(), filter)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	if len(page.Posts) == 0 {
		writeError(w, http.StatusNotFound, "no posts are available")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "post details is not available")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch post")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	input, ok := parsePostInput(w, r)
	if !ok {
		return
	}

	p, err := h.store.Update(r.Context(), id, principal.ID, input.Content)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "post does not exist or has been deleted")
		case errors.Is(err, ErrNotAuthor):
			writeError(w, http.StatusForbidden, "you can update only posts you authored")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to update post")
		}
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := h.store.Delete(r.Context(), id, principal.ID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "post does not exist or has been deleted")
		case errors.Is(err, ErrNotAuthor):
			writeError(w, http.StatusForbidden, "you can delete only posts you authored")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to delete post")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "post deleted successfully"})
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	comments, err := h.store.Comments(r.Context(), id)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}

	writeJSON(w, http.StatusOK, comments)
}

func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var input CommentInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.Content = strings.TrimSpace(input.Content)
	if input.Content == "" {
		writeError(w, http.StatusBadRequest, "a comment can not be created with empty content")
		return
	}

	comment, err := h.store.CreateComment(r.Context(), id, principal.ID, input.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "post does not exist or has been deleted")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create comment")
		return
	}

	writeJSON(w, http.StatusOK, comment)
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if _, ok := pathID(w, r); !ok {
		return
	}

	commentID := strings.TrimSpace(r.URL.Query().Get("id"))
	if _, err := uuid.Parse(commentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid comment id")
		return
	}

	err := h.store.DeleteComment(r.Context(), commentID, principal.ID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "comment does not exist or has been deleted")
		case errors.Is(err, ErrNotAuthor):
			writeError(w, http.StatusForbidden, "you can delete only your added comments")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to delete comment")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "comment deleted successfully"})
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid auth token")
		return auth.Principal{}, false
	}
	return principal, true
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return "", false
	}
	return id, true
}

func parsePostInput(w http.ResponseWriter, r *http.Request) (PostInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input PostInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return PostInput{}, false
	}

	input.Content = strings.TrimSpace(input.Content)
	if input.Content == "" {
		writeError(w, http.StatusBadRequest, "post can not be created with empty content")
		return PostInput{}, false
	}

	return input, true
}

func intQueryOrDefault(value string, fallback int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func timeQuery(value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, false
	}
	utc := parsed.UTC()
	return &utc, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
