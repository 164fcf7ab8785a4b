package auth

import (
	"net/http"
	"sync"

	"github.com/artpar/docgate/config"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuthenticator checks HTTP basic credentials against bcrypt hashes.
type BasicAuthenticator struct {
	users map[string]config.UserConfig
}

// NewBasicAuthenticator creates an authenticator for the configured users.
func NewBasicAuthenticator(users []config.UserConfig) *BasicAuthenticator {
	b := &BasicAuthenticator{users: make(map[string]config.UserConfig, len(users))}
	for _, u := range users {
		b.users[u.Username] = u
	}
	return b
}

// Scheme returns "Basic".
func (b *BasicAuthenticator) Scheme() string {
	return "Basic"
}

// Authenticate verifies the request's basic credentials.
func (b *BasicAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return Principal{}, ErrUnauthorized
	}

	user, found := b.users[username]
	if !found {
		// Unknown users take as long as wrong passwords.
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return Principal{}, ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Principal{}, ErrUnauthorized
	}

	return Principal{Subject: username, Resources: user.Resources}, nil
}

var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("docgate"), bcrypt.DefaultCost)
	return hash
})

// HashPassword generates a bcrypt hash for a config file. Out of range costs
// fall back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
