// Package tls provides HTTPS certificate sources for the write server:
// a static certificate pair or certificates obtained via ACME (Let's Encrypt).
package tls

import (
	"context"
	cryptotls "crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/artpar/docgate/config"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

const (
	// LetsEncrypt staging directory (for testing)
	letsEncryptStaging = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// Provider supplies the server's TLS configuration.
type Provider struct {
	mode      string
	tlsConfig *cryptotls.Config
	manager   *autocert.Manager
	domains   []string
	logger    zerolog.Logger
}

// New builds a provider for cfg. It returns nil when TLS is disabled.
func New(cfg config.TLSConfig, logger zerolog.Logger) (*Provider, error) {
	p := &Provider{mode: cfg.Mode, domains: cfg.Domains, logger: logger}

	switch cfg.Mode {
	case "":
		return nil, nil

	case "manual":
		cert, err := cryptotls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load certificate: %w", err)
		}
		p.tlsConfig = &cryptotls.Config{
			Certificates: []cryptotls.Certificate{cert},
			MinVersion:   cryptotls.VersionTLS12,
		}

	case "acme":
		p.manager = &autocert.Manager{
			Cache:      autocert.DirCache(cfg.CacheDir),
			Prompt:     autocert.AcceptTOS,
			Email:      cfg.Email,
			HostPolicy: p.hostPolicy,
		}
		if cfg.Staging {
			p.manager.Client = &acme.Client{DirectoryURL: letsEncryptStaging}
		}
		p.tlsConfig = p.manager.TLSConfig()
		p.tlsConfig.MinVersion = cryptotls.VersionTLS12
		p.tlsConfig.GetCertificate = p.getCertificate

	default:
		return nil, fmt.Errorf("unknown tls mode %q", cfg.Mode)
	}

	logger.Info().
		Str("mode", cfg.Mode).
		Strs("domains", cfg.Domains).
		Bool("staging", cfg.Staging).
		Msg("tls enabled")
	return p, nil
}

// Name returns the provider mode.
func (p *Provider) Name() string {
	return p.mode
}

// TLSConfig returns the configuration for http.Server.TLSConfig.
func (p *Provider) TLSConfig() *cryptotls.Config {
	return p.tlsConfig
}

// HTTPHandler serves plain-HTTP requests: ACME HTTP-01 challenges in acme
// mode, and a redirect to HTTPS for everything else.
func (p *Provider) HTTPHandler() http.Handler {
	if p.manager != nil {
		return p.manager.HTTPHandler(nil)
	}
	return http.HandlerFunc(redirectHTTPS)
}

func (p *Provider) getCertificate(hello *cryptotls.ClientHelloInfo) (*cryptotls.Certificate, error) {
	cert, err := p.manager.GetCertificate(hello)
	if err != nil {
		p.logger.Error().Err(err).Str("domain", hello.ServerName).Msg("certificate unavailable")
		return nil, err
	}
	return cert, nil
}

// hostPolicy accepts configured domains, with "*.example.com" matching any
// subdomain.
func (p *Provider) hostPolicy(_ context.Context, host string) error {
	for _, d := range p.domains {
		if d == host {
			return nil
		}
		if strings.HasPrefix(d, "*.") && strings.HasSuffix(host, d[1:]) && len(host) > len(d)-1 {
			return nil
		}
	}

	p.logger.Warn().Str("host", host).Strs("allowed", p.domains).Msg("host not in allowed domains")
	return fmt.Errorf("host %q not in allowed domains", host)
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
