package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	ErrMissingFields      = errors.New("email and password are required")
	ErrUnknownPrincipal   = errors.New("unknown principal")
	ErrWrongPassword      = errors.New("wrong password")
	ErrTemporarilyBlocked = errors.New("account temporarily disabled")
)

// CredentialStore is the persistence boundary the login flow depends on.
// UpdateLockout must apply the callback atomically at the store level so
// concurrent failures against the same principal cannot lose updates.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (Principal, error)
	UpdateLockout(ctx context.Context, principalID string, apply func(LockoutState) LockoutState) (LockoutState, error)
}

type Service struct {
	store   CredentialStore
	tokens  *TokenIssuer
	lockout LockoutPolicy
}

func NewService(store CredentialStore, tokens *TokenIssuer) *Service {
	return &Service{
		store:   store,
		tokens:  tokens,
		lockout: DefaultLockoutPolicy(),
	}
}

func (s *Service) WithLockoutPolicy(policy LockoutPolicy) {
	if policy.Threshold > 0 && policy.Window > 0 {
		s.lockout = policy
	}
}

// Login runs the credential check behind the lockout gate. Lockout
// persistence failures are reported but do not change the response: the
// outcome of the password verification wins.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return LoginResult{}, ErrMissingFields
	}

	principal, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}

	// Gate before the password check: a blocked principal never consumes
	// a verification cycle and never mutates lockout state.
	if principal.Lockout.Blocked {
		return LoginResult{}, ErrTemporarilyBlocked
	}

	if !VerifyPassword(password, principal.PasswordHash) {
		if _, err := s.store.UpdateLockout(ctx, principal.ID, func(state LockoutState) LockoutState {
			return s.lockout.RecordFailure(state, time.Now().UTC())
		}); err != nil {
			sentry.CaptureException(err)
		}
		return LoginResult{}, ErrWrongPassword
	}

	if _, err := s.store.UpdateLockout(ctx, principal.ID, s.lockout.RecordSuccess); err != nil {
		sentry.CaptureException(err)
	}

	access, err := s.tokens.IssueAccessToken(principal)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(principal)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Principal: principal, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh mints a new access token for the principal recovered from a
// verified refresh token. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (string, error) {
	principal, err := s.tokens.VerifyRefreshToken(rawRefreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	if principal.ID == "" {
		return "", ErrInvalidToken
	}

	return s.tokens.IssueAccessToken(principal)
}
