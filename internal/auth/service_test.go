package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCredentialStore struct {
	principals map[string]*Principal
	updateErr  error
	updates    int
}

func newFakeCredentialStore(principals ...*Principal) *fakeCredentialStore {
	store := &fakeCredentialStore{principals: make(map[string]*Principal)}
	for _, p := range principals {
		store.principals[p.Email] = p
	}
	return store
}

func (f *fakeCredentialStore) FindByEmail(ctx context.Context, email string) (Principal, error) {
	p, ok := f.principals[email]
	if !ok {
		return Principal{}, ErrUnknownPrincipal
	}
	return *p, nil
}

func (f *fakeCredentialStore) UpdateLockout(ctx context.Context, principalID string, apply func(LockoutState) LockoutState) (LockoutState, error) {
	if f.updateErr != nil {
		return LockoutState{}, f.updateErr
	}
	for _, p := range f.principals {
		if p.ID == principalID {
			f.updates++
			p.Lockout = apply(p.Lockout)
			return p.Lockout, nil
		}
	}
	return LockoutState{}, ErrUnknownPrincipal
}

func storedPrincipal(t *testing.T, password string) *Principal {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	p := testPrincipal()
	p.PasswordHash = hash
	return &p
}

func newTestService(store CredentialStore) *Service {
	return NewService(store, testIssuer())
}

func TestLoginMissingFields(t *testing.T) {
	service := newTestService(newFakeCredentialStore())

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "no_email", email: "", password: "Password1"},
		{name: "no_password", email: "ada@example.com", password: ""},
		{name: "whitespace_only", email: "   ", password: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.Login(context.Background(), tt.email, tt.password); !errors.Is(err, ErrMissingFields) {
				t.Fatalf("Login() error = %v, want ErrMissingFields", err)
			}
		})
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	service := newTestService(newFakeCredentialStore())

	if _, err := service.Login(context.Background(), "nobody@example.com", "Password1"); !errors.Is(err, ErrUnknownPrincipal) {
		t.Fatalf("Login() error = %v, want ErrUnknownPrincipal", err)
	}
}

func TestLoginSuccessIssuesBothTokens(t *testing.T) {
	principal := storedPrincipal(t, "correct horse battery")
	store := newFakeCredentialStore(principal)
	service := newTestService(store)

	result, err := service.Login(context.Background(), "ADA@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Principal.ID != principal.ID {
		t.Fatalf("result principal id = %q, want %q", result.Principal.ID, principal.ID)
	}

	issuer := testIssuer()
	fromAccess, err := issuer.VerifyAccessToken("Bearer " + result.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if fromAccess.ID != principal.ID {
		t.Fatalf("access token id = %q, want %q", fromAccess.ID, principal.ID)
	}

	fromRefresh, err := issuer.VerifyRefreshToken(result.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token does not verify: %v", err)
	}
	if fromRefresh.ID != principal.ID {
		t.Fatalf("refresh token id = %q, want %q", fromRefresh.ID, principal.ID)
	}
}

func TestLoginWrongPasswordRecordsFailure(t *testing.T) {
	principal := storedPrincipal(t, "correct horse battery")
	store := newFakeCredentialStore(principal)
	service := newTestService(store)

	if _, err := service.Login(context.Background(), principal.Email, "wrong password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Login() error = %v, want ErrWrongPassword", err)
	}

	if principal.Lockout.FailedAttempts != 1 {
		t.Fatalf("FailedAttempts = %d, want 1", principal.Lockout.FailedAttempts)
	}
	if principal.Lockout.FirstFailedAt == nil {
		t.Fatalf("FirstFailedAt not stamped on first failure")
	}
}

func TestLoginTenthFailureBlocksAndGateHolds(t *testing.T) {
	principal := storedPrincipal(t, "correct horse battery")
	store := newFakeCredentialStore(principal)
	service := newTestService(store)

	for i := 0; i < DefaultLockoutPolicy().Threshold; i++ {
		if _, err := service.Login(context.Background(), principal.Email, "wrong password"); !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("attempt %d: error = %v, want ErrWrongPassword", i+1, err)
		}
	}

	if !principal.Lockout.Blocked {
		t.Fatalf("tenth consecutive failure must block the principal")
	}

	// The gate fires before the password check, even with the correct
	// password, and must not touch lockout state.
	updatesBefore := store.updates
	if _, err := service.Login(context.Background(), principal.Email, "correct horse battery"); !errors.Is(err, ErrTemporarilyBlocked) {
		t.Fatalf("blocked login error = %v, want ErrTemporarilyBlocked", err)
	}
	if store.updates != updatesBefore {
		t.Fatalf("blocked attempt mutated lockout state")
	}
}

func TestLoginSuccessClearsCountersKeepsBlockedFlag(t *testing.T) {
	principal := storedPrincipal(t, "correct horse battery")
	first := time.Now().UTC().Add(-time.Hour)
	principal.Lockout = LockoutState{FailedAttempts: 4, FirstFailedAt: &first}
	store := newFakeCredentialStore(principal)
	service := newTestService(store)

	if _, err := service.Login(context.Background(), principal.Email, "correct horse battery"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if !principal.Lockout.Clean() {
		t.Fatalf("lockout counters not cleared after success: %+v", principal.Lockout)
	}
	if principal.Lockout.Blocked {
		t.Fatalf("success must not set the blocked flag")
	}
}

func TestLoginLockoutPersistenceFailureIsLenient(t *testing.T) {
	principal := storedPrincipal(t, "correct horse battery")
	store := newFakeCredentialStore(principal)
	store.updateErr = errors.New("store unavailable")
	service := newTestService(store)

	// The response still reflects the password outcome.
	if _, err := service.Login(context.Background(), principal.Email, "wrong password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Login() error = %v, want ErrWrongPassword", err)
	}
	if _, err := service.Login(context.Background(), principal.Email, "correct horse battery"); err != nil {
		t.Fatalf("Login() error = %v, want success despite lockout persistence failure", err)
	}
}

func TestRefreshMintsAccessTokenForEmbeddedPrincipal(t *testing.T) {
	issuer := testIssuer()
	service := NewService(newFakeCredentialStore(), issuer)
	principal := testPrincipal()

	refresh, err := issuer.IssueRefreshToken(principal)
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}

	access, err := service.Refresh(context.Background(), refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	got, err := issuer.VerifyAccessToken("Bearer " + access)
	if err != nil {
		t.Fatalf("minted access token does not verify: %v", err)
	}
	if got.ID != principal.ID {
		t.Fatalf("minted token id = %q, want %q", got.ID, principal.ID)
	}
}

func TestRefreshRejectsInvalidTokens(t *testing.T) {
	issuer := testIssuer()
	service := NewService(newFakeCredentialStore(), issuer)

	access, err := issuer.IssueAccessToken(testPrincipal())
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	noID, err := issuer.IssueRefreshToken(Principal{Email: "ghost@example.com"})
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.jwt"},
		{name: "access_signed", token: access},
		{name: "missing_principal_id", token: noID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.Refresh(context.Background(), tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Refresh() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
