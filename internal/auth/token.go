package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 10 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
)

var (
	ErrMissingCredential   = errors.New("no credential presented")
	ErrMalformedCredential = errors.New("authorization header was not bearer")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

// principalClaims embeds a snapshot of the principal at issuance time.
// The snapshot is deliberately not re-fetched at verification: a verified
// token reflects the record as it was when the token was minted.
type principalClaims struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies access and refresh tokens. The two token
// classes are signed with distinct secrets so compromise of one cannot
// forge the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenIssuer(accessSecret, refreshSecret string) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
}

func (t *TokenIssuer) WithTTL(accessTTL, refreshTTL time.Duration) {
	if accessTTL > 0 {
		t.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		t.refreshTTL = refreshTTL
	}
}

func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

func (t *TokenIssuer) IssueAccessToken(principal Principal) (string, error) {
	return t.sign(principal, t.accessSecret, t.accessTTL)
}

func (t *TokenIssuer) IssueRefreshToken(principal Principal) (string, error) {
	return t.sign(principal, t.refreshSecret, t.refreshTTL)
}

func (t *TokenIssuer) sign(principal Principal, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := principalClaims{
		FirstName: principal.FirstName,
		LastName:  principal.LastName,
		Email:     principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}

	return encoded, nil
}

// VerifyAccessToken expects the literal `Bearer <token>` header value.
func (t *TokenIssuer) VerifyAccessToken(headerValue string) (Principal, error) {
	if strings.TrimSpace(headerValue) == "" {
		return Principal{}, ErrMissingCredential
	}
	if !strings.HasPrefix(headerValue, "Bearer ") {
		return Principal{}, ErrMalformedCredential
	}

	parts := strings.SplitN(headerValue, " ", 2)
	return t.verify(strings.TrimSpace(parts[1]), t.accessSecret)
}

// VerifyRefreshToken takes the raw token as carried by the cookie,
// without any Bearer prefix.
func (t *TokenIssuer) VerifyRefreshToken(rawToken string) (Principal, error) {
	return t.verify(strings.TrimSpace(rawToken), t.refreshSecret)
}

func (t *TokenIssuer) verify(rawToken string, secret []byte) (Principal, error) {
	if rawToken == "" {
		return Principal{}, ErrInvalidToken
	}

	claims := principalClaims{}
	token, err := jwt.ParseWithClaims(rawToken, &claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	return Principal{
		ID:        claims.Subject,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Email:     claims.Email,
	}, nil
}
