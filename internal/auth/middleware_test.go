package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGuardMissingHeader(t *testing.T) {
	handler := Guard(testIssuer(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run without a credential")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/posts", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

func TestGuardRejectsBadTokens(t *testing.T) {
	issuer := testIssuer()

	refresh, err := issuer.IssueRefreshToken(testPrincipal())
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "garbage", header: "Bearer garbage"},
		{name: "wrong_prefix", header: "Basic abc"},
		{name: "refresh_signed", header: "Bearer " + refresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Guard(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run for an invalid credential")
			}))

			request := httptest.NewRequest(http.MethodGet, "/posts", nil)
			request.Header.Set("Authorization", tt.header)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestGuardRejectsPrincipalWithoutID(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.IssueAccessToken(Principal{Email: "ghost@example.com"})
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	handler := Guard(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run for a principal without an id")
	}))

	request := httptest.NewRequest(http.MethodGet, "/posts", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
}

func TestGuardBindsPrincipalToContext(t *testing.T) {
	issuer := testIssuer()
	principal := testPrincipal()

	token, err := issuer.IssueAccessToken(principal)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	handlerRan := false
	handler := Guard(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
		got, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("principal missing from context")
		}
		if got.ID != principal.ID {
			t.Fatalf("context principal id = %q, want %q", got.ID, principal.ID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodGet, "/posts", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if !handlerRan {
		t.Fatalf("handler did not run for a valid credential")
	}
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
}
