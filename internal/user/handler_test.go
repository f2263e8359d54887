package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"teamboard-api/internal/auth"
)

type fakeStore struct {
	byEmail  map[string]auth.Principal
	profiles map[string]Profile
	created  []NewUser
	listed   []Summary
	lastList ListFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byEmail:  make(map[string]auth.Principal),
		profiles: make(map[string]Profile),
	}
}

func (f *fakeStore) Create(ctx context.Context, input NewUser) (auth.Principal, error) {
	if _, ok := f.byEmail[input.Email]; ok {
		return auth.Principal{}, ErrEmailTaken
	}
	f.created = append(f.created, input)
	principal := auth.Principal{
		ID:        uuid.NewString(),
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		CreatedAt: time.Now().UTC(),
	}
	f.byEmail[input.Email] = principal
	return principal, nil
}

func (f *fakeStore) FindByEmail(ctx context.Context, email string) (auth.Principal, error) {
	principal, ok := f.byEmail[email]
	if !ok {
		return auth.Principal{}, auth.ErrUnknownPrincipal
	}
	return principal, nil
}

func (f *fakeStore) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	f.lastList = filter
	return f.listed, len(f.listed), nil
}

func (f *fakeStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return Profile{}, sql.ErrNoRows
	}
	return profile, nil
}

func testTokens() *auth.TokenIssuer {
	return auth.NewTokenIssuer("access-secret-for-tests", "refresh-secret-for-tests")
}

func postRegister(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/user", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body["error"]
}

func TestRegisterValidation(t *testing.T) {
	h := NewHandler(newFakeStore(), testTokens())

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{
			name:      "missing_fields",
			body:      `{"firstname":"Grace","email":"grace@example.com","password":"longenough"}`,
			wantError: "please provide all the input details",
		},
		{
			name:      "blank_after_trim",
			body:      `{"firstname":"  ","lastname":"Hopper","email":"grace@example.com","password":"longenough"}`,
			wantError: "please provide all the input details",
		},
		{
			name:      "short_password",
			body:      `{"firstname":"Grace","lastname":"Hopper","email":"test@x.com","password":"seven77"}`,
			wantError: "password should be minimum length of 8 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRegister(t, h, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if got := errorBody(t, rec); got != tt.wantError {
				t.Fatalf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestRegisterSuccess(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, testTokens())

	rec := postRegister(t, h, `{"firstname":"Grace","lastname":"Hopper","email":"Grace@Example.com","password":"longenough"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var body registerResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}
	if body.Email != "grace@example.com" {
		t.Fatalf("email = %q, want lowercased %q", body.Email, "grace@example.com")
	}
	if body.ID == "" {
		t.Fatalf("response missing user id")
	}

	principal, err := testTokens().VerifyAccessToken("Bearer " + body.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if principal.ID != body.ID {
		t.Fatalf("token subject = %q, want %q", principal.ID, body.ID)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d users, want 1", len(store.created))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, testTokens())

	body := `{"firstname":"Grace","lastname":"Hopper","email":"grace@example.com","password":"longenough"}`
	if rec := postRegister(t, h, body); rec.Code != http.StatusOK {
		t.Fatalf("first register status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec := postRegister(t, h, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := errorBody(t, rec); got != "user already exists, please proceed with login" {
		t.Fatalf("error = %q", got)
	}
}

func TestListUsersExcludesCaller(t *testing.T) {
	store := newFakeStore()
	store.listed = []Summary{{ID: "u2", FirstName: "Grace", Email: "grace@example.com"}}
	h := NewHandler(store, testTokens())

	caller := auth.Principal{ID: "u1", Email: "ada@example.com"}
	token, err := testTokens().IssueAccessToken(caller)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/user?firstname=gra&limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.Guard(testTokens(), http.HandlerFunc(h.ListUsers)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if store.lastList.ExcludeID != caller.ID {
		t.Fatalf("ExcludeID = %q, want the caller id %q", store.lastList.ExcludeID, caller.ID)
	}
	if store.lastList.FirstName != "gra" || store.lastList.Limit != 5 {
		t.Fatalf("filter = %+v, want firstname gra and limit 5", store.lastList)
	}
}

func TestListUsersEmptyIsNotFound(t *testing.T) {
	h := NewHandler(newFakeStore(), testTokens())

	token, err := testTokens().IssueAccessToken(auth.Principal{ID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.Guard(testTokens(), http.HandlerFunc(h.ListUsers)).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := errorBody(t, rec); got != "no user exists" {
		t.Fatalf("error = %q, want %q", got, "no user exists")
	}
}

func TestGetUserDetails(t *testing.T) {
	store := newFakeStore()
	knownID := uuid.NewString()
	store.profiles[knownID] = Profile{
		Summary: Summary{ID: knownID, FirstName: "Grace", Email: "grace@example.com"},
		Posts:   []ProfilePost{{ID: "p1", Content: "hello"}},
	}
	h := NewHandler(store, testTokens())

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "found", id: knownID, wantStatus: http.StatusOK},
		{name: "unknown", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "malformed_id", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user/"+tt.id, nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.GetUserDetails(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var profile Profile
			if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
				t.Fatalf("decoding profile: %v", err)
			}
			if profile.ID != knownID || len(profile.Posts) != 1 {
				t.Fatalf("profile = %+v, want id %q with one post", profile, knownID)
			}
		})
	}
}
