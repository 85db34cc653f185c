package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// APIKeyHeader carries the static dashboard key.
const APIKeyHeader = "X-Admin-Api-Key"

// APIKeySubject is the token subject recorded for callers that presented the key.
const APIKeySubject = "api-key"

var (
	ErrAdminAuthNotConfigured = errors.New("admin authenticator: api key not configured")
	ErrMissingCredentials     = errors.New("admin authenticator: credentials required")
	ErrInvalidCredentials     = errors.New("admin authenticator: invalid credentials")
)

// TokenValidator validates bearer tokens and returns their subject.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// AdminAuthenticatorConfig configures request authentication for admin routes.
type AdminAuthenticatorConfig struct {
	APIKey string
	Tokens TokenValidator
}

// AdminAuthenticator accepts either the static API key header or a bearer token
// issued by the dashboard.
type AdminAuthenticator struct {
	apiKey []byte
	tokens TokenValidator
}

// NewAdminAuthenticator constructs an authenticator. An empty API key leaves admin
// routes disabled.
func NewAdminAuthenticator(cfg AdminAuthenticatorConfig) *AdminAuthenticator {
	return &AdminAuthenticator{
		apiKey: []byte(strings.TrimSpace(cfg.APIKey)),
		tokens: cfg.Tokens,
	}
}

// Configured reports whether an API key is set.
func (a *AdminAuthenticator) Configured() bool {
	return len(a.apiKey) > 0
}

// ValidateAPIKey compares key against the configured one in constant time.
func (a *AdminAuthenticator) ValidateAPIKey(key string) error {
	if !a.Configured() {
		return ErrAdminAuthNotConfigured
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingCredentials
	}
	if subtle.ConstantTimeCompare([]byte(key), a.apiKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// ValidateRequest authenticates r and returns the caller subject.
func (a *AdminAuthenticator) ValidateRequest(r *http.Request) (string, error) {
	if !a.Configured() {
		return "", ErrAdminAuthNotConfigured
	}
	if r == nil {
		return "", ErrMissingCredentials
	}
	if key := r.Header.Get(APIKeyHeader); key != "" {
		if err := a.ValidateAPIKey(key); err != nil {
			return "", err
		}
		return APIKeySubject, nil
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingCredentials
	}
	if a.tokens == nil || !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidCredentials
	}
	subject, err := a.tokens.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	if err != nil {
		return "", ErrInvalidCredentials
	}
	return subject, nil
}
