// Package auth authenticates write requests. Both schemes are stateless:
// basic auth checks bcrypt hashes from configuration, token auth verifies
// HS256 JWTs, so instances scale horizontally without shared state.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/artpar/docgate/config"
)

// ErrUnauthorized is returned when credentials are missing or invalid.
var ErrUnauthorized = errors.New("unauthorized")

// Principal is an authenticated caller.
type Principal struct {
	Subject string

	// Resources limits the resources the caller may write. Empty means all.
	Resources []string
}

// Allows reports whether the principal may write to resource.
func (p Principal) Allows(resource string) bool {
	return len(p.Resources) == 0 || slices.Contains(p.Resources, resource)
}

// Authenticator extracts a principal from a request.
type Authenticator interface {
	// Scheme is the WWW-Authenticate challenge scheme.
	Scheme() string
	Authenticate(r *http.Request) (Principal, error)
}

// New builds the authenticator for cfg. It returns nil when auth is disabled.
func New(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Mode {
	case "":
		return nil, nil
	case "basic":
		return NewBasicAuthenticator(cfg.Users), nil
	case "token":
		return NewTokenService(cfg.Secret, cfg.Issuer, cfg.TokenTTL), nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
}
