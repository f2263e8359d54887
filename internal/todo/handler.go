package todo

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
	Create(ctx context.Context, ownerID, task string) (Todo, error)
	List(ctx context.Context, filter ListFilter) (Page, error)
	MarkCompleted(ctx context.Context, id, principalID string) error
	Update(ctx context.Context, id, principalID, task string) (Todo, error)
	Delete(ctx context.Context, id, principalID string) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	input, ok := parseTodoInput(w, r)
	if !ok {
		return
	}

	t, err := h.store.Create(r.Context(), principal.ID, input.Task)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create todo")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ListTodos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{
		Completed: query.Get("completed") == "true",
		Limit:     intQueryOrDefault(query.Get("limit"), 10),
		Skip:      intQueryOrDefault(query.Get("skip"), 0),
		SortAsc:   query.Get("sort") != "desc",
	}

	// Accepts either a single user id or several comma-separated ones.
	if users := strings.TrimSpace(query.Get("user")); users != "" {
		for _, id := range strings.Split(users, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, err := uuid.Parse(id); err != nil {
				writeError(w, http.StatusBadRequest, "invalid user id")
				return
			}
			filter.OwnerIDs = append(filter.OwnerIDs, id)
		}
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
		writeError(w, http.StatusInternalServerError, "failed to list todos")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := h.store.MarkCompleted(r.Context(), id, principal.ID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "the task is not available anymore")
		case errors.Is(err, ErrNotOwner):
			writeError(w, http.StatusForbidden, "you can mark only your own tasks as completed")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to mark todo completed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "task marked as completed successfully"})
}

func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	input, ok := parseTodoInput(w, r)
	if !ok {
		return
	}

	t, err := h.store.Update(r.Context(), id, principal.ID, input.Task)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "the task is not available anymore")
		case errors.Is(err, ErrNotOwner):
			writeError(w, http.StatusForbidden, "you can edit only your own tasks")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to update todo")
		}
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
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
			writeError(w, http.StatusNotFound, "the task is not available anymore")
		case errors.Is(err, ErrNotOwner):
			writeError(w, http.StatusForbidden, "you can delete only your own todo items")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to delete todo")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "todo deleted successfully"})
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
		writeError(w, http.StatusBadRequest, "invalid todo id")
		return "", false
	}
	return id, true
}

func parseTodoInput(w http.ResponseWriter, r *http.Request) (TodoInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input TodoInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return TodoInput{}, false
	}

	input.Task = strings.TrimSpace(input.Task)
	if input.Task == "" {
		writeError(w, http.StatusBadRequest, "a todo can not be created with empty content")
		return TodoInput{}, false
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
