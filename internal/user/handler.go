package user

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
	Create(ctx context.Context, input NewUser) (auth.Principal, error)
	FindByEmail(ctx context.Context, email string) (auth.Principal, error)
	List(ctx context.Context, filter ListFilter) ([]Summary, int, error)
	GetProfile(ctx context.Context, id string) (Profile, error)
}

type Handler struct {
	store  Store
	tokens *auth.TokenIssuer
}

func NewHandler(store Store, tokens *auth.TokenIssuer) *Handler {
	return &Handler{store: store, tokens: tokens}
}

type registerResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Token     string `json:"token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input NewUser
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Password = strings.TrimSpace(input.Password)

	if input.FirstName == "" || input.LastName == "" || input.Email == "" || input.Password == "" {
		writeError(w, http.StatusBadRequest, "please provide all the input details")
		return
	}
	if len(input.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password should be minimum length of 8 characters")
		return
	}

	if _, err := h.store.FindByEmail(r.Context(), input.Email); err == nil {
		writeError(w, http.StatusConflict, "user already exists, please proceed with login")
		return
	} else if !errors.Is(err, auth.ErrUnknownPrincipal) {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	principal, err := h.store.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusConflict, "user already exists, please proceed with login")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	token, err := h.tokens.IssueAccessToken(principal)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		ID:        principal.ID,
		FirstName: principal.FirstName,
		LastName:  principal.LastName,
		Email:     principal.Email,
		Token:     token,
	})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid auth token")
		return
	}

	query := r.URL.Query()
	filter := ListFilter{
		ExcludeID: principal.ID,
		FirstName: strings.TrimSpace(query.Get("firstname")),
		LastName:  strings.TrimSpace(query.Get("lastname")),
		Email:     strings.TrimSpace(query.Get("email")),
		Limit:     intQueryOrDefault(query.Get("limit"), 10),
		Skip:      intQueryOrDefault(query.Get("skip"), 0),
		SortAsc:   query.Get("sort") != "desc",
	}

	var ok2 bool
	if filter.CreatedAfter, ok2 = timeQuery(query.Get("created_after")); !ok2 {
		writeError(w, http.StatusBadRequest, "created_after must be RFC3339")
		return
	}
	if filter.CreatedBefore, ok2 = timeQuery(query.Get("created_before")); !ok2 {
		writeError(w, http.StatusBadRequest, "created_before must be RFC3339")
		return
	}

	users, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if len(users) == 0 {
		writeError(w, http.StatusNotFound, "no user exists")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users, "total": total})
}

func (h *Handler) GetUserDetails(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	profile, err := h.store.GetProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user does not exist")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch user details")
		return
	}

	writeJSON(w, http.StatusOK, profile)
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
