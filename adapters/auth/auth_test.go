package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/docgate/adapters/auth"
	"github.com/artpar/docgate/config"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestNew(t *testing.T) {
	a, err := auth.New(config.AuthConfig{})
	if err != nil || a != nil {
		t.Errorf("disabled: got %v, %v", a, err)
	}

	a, err = auth.New(config.AuthConfig{Mode: "token", Secret: secret, Issuer: "docgate"})
	if err != nil || a.Scheme() != "Bearer" {
		t.Errorf("token: got %v, %v", a, err)
	}

	a, err = auth.New(config.AuthConfig{Mode: "basic"})
	if err != nil || a.Scheme() != "Basic" {
		t.Errorf("basic: got %v, %v", a, err)
	}

	if _, err := auth.New(config.AuthConfig{Mode: "saml"}); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestPrincipal_Allows(t *testing.T) {
	all := auth.Principal{Subject: "ops"}
	if !all.Allows("people") {
		t.Error("unscoped principal should write everywhere")
	}

	scoped := auth.Principal{Subject: "importer", Resources: []string{"contacts"}}
	if !scoped.Allows("contacts") || scoped.Allows("people") {
		t.Error("scope not enforced")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := auth.HashPassword("s3cret", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if cost, _ := bcrypt.Cost([]byte(hash)); cost != 4 {
		t.Errorf("cost = %d, want 4", cost)
	}

	hash, err = auth.HashPassword("s3cret", 99)
	if err != nil {
		t.Fatal(err)
	}
	if cost, _ := bcrypt.Cost([]byte(hash)); cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want default", cost)
	}
}

func TestBasicAuthenticator(t *testing.T) {
	hash, _ := auth.HashPassword("s3cret", bcrypt.MinCost)
	a := auth.NewBasicAuthenticator([]config.UserConfig{
		{Username: "ada", PasswordHash: hash, Resources: []string{"people"}},
	})

	tests := []struct {
		name     string
		user     string
		password string
		setAuth  bool
		wantErr  bool
	}{
		{"valid", "ada", "s3cret", true, false},
		{"wrong password", "ada", "nope", true, true},
		{"unknown user", "bob", "s3cret", true, true},
		{"no credentials", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/people", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.password)
			}

			p, err := a.Authenticate(req)
			if tt.wantErr {
				if !errors.Is(err, auth.ErrUnauthorized) {
					t.Errorf("err = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if p.Subject != "ada" || !p.Allows("people") || p.Allows("invoices") {
				t.Errorf("principal = %+v", p)
			}
		})
	}
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := auth.NewTokenService(secret, "docgate", time.Hour)

	token, expiresAt, err := svc.GenerateToken("importer", []string{"contacts"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("expiresAt = %v", expiresAt)
	}

	req := httptest.NewRequest(http.MethodPost, "/contacts", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	p, err := svc.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Subject != "importer" || !p.Allows("contacts") || p.Allows("people") {
		t.Errorf("principal = %+v", p)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	svc := auth.NewTokenService(secret, "docgate", time.Hour)
	other := auth.NewTokenService(strings.Repeat("x", 32), "docgate", time.Hour)
	foreign := auth.NewTokenService(secret, "elsewhere", time.Hour)
	expired := auth.NewTokenService(secret, "docgate", -time.Minute)

	wrongKey, _, _ := other.GenerateToken("a", nil)
	wrongIssuer, _, _ := foreign.GenerateToken("a", nil)
	stale, _, _ := expired.GenerateToken("a", nil)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: "docgate"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic YWRhOnMzY3JldA=="},
		{"garbage", "Bearer not-a-token"},
		{"wrong key", "Bearer " + wrongKey},
		{"wrong issuer", "Bearer " + wrongIssuer},
		{"expired", "Bearer " + stale},
		{"alg none", "Bearer " + none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/people", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if _, err := svc.Authenticate(req); !errors.Is(err, auth.ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}
