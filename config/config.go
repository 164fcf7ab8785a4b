// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/events"
	"github.com/artpar/docgate/core/rules"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Resources ResourcesConfig `yaml:"resources"`
	Database  DatabaseConfig  `yaml:"database"`
	Documents DocumentsConfig `yaml:"documents"`
	Hooks     []HookConfig    `yaml:"hooks"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	OpenAPI   OpenAPIConfig   `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	TLS          TLSConfig     `yaml:"tls"`
}

// TLSConfig enables HTTPS. Mode "manual" serves a certificate pair from disk,
// "acme" obtains certificates from Let's Encrypt for Domains.
type TLSConfig struct {
	Mode     string   `yaml:"mode"` // "", "manual" or "acme"
	CertFile string   `yaml:"cert_file"`
	KeyFile  string   `yaml:"key_file"`
	Domains  []string `yaml:"domains"`
	Email    string   `yaml:"email"`
	CacheDir string   `yaml:"cache_dir"` // acme certificate cache (default: certs)
	Staging  bool     `yaml:"staging"`
	HTTPAddr string   `yaml:"http_addr"` // acme challenge listener (default: :80)
}

// ResourcesConfig locates the resource definitions.
type ResourcesConfig struct {
	Dir string `yaml:"dir"` // YAML resource files, loaded recursively
}

// DatabaseConfig configures the document store.
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`      // "sqlite" or "memory"
	DSN         string        `yaml:"dsn"`         // sqlite file path
	Synchronous string        `yaml:"synchronous"` // OFF, NORMAL or FULL
	Timeout     time.Duration `yaml:"timeout"`     // per-batch storage deadline
}

// DocumentsConfig configures field names and write behaviour.
type DocumentsConfig struct {
	Names          convention.Names `yaml:"names"`
	BandwidthSaver *bool            `yaml:"bandwidth_saver"`
	IfMatch        *bool            `yaml:"if_match"`
	AllowUnknown   bool             `yaml:"allow_unknown"`
	IDGenerator    string           `yaml:"id_generator"` // "uuid4", "uuid7" or "sequential"
}

// Settings returns the pipeline settings described by the documents section.
func (d DocumentsConfig) Settings() convention.Settings {
	s := convention.Default()
	s.Names = d.Names
	if d.BandwidthSaver != nil {
		s.BandwidthSaver = *d.BandwidthSaver
	}
	if d.IfMatch != nil {
		s.IfMatch = *d.IfMatch
	}
	s.AllowUnknown = d.AllowUnknown
	return s.WithDefaults()
}

// HookConfig attaches a built-in hook to a lifecycle point.
type HookConfig struct {
	Point    string `yaml:"point"`    // before-batch, before-item-insert, after-item-insert, after-batch
	Resource string `yaml:"resource"` // empty for every resource
	Action   string `yaml:"action"`   // "log" or "reject"
	When     string `yaml:"when"`     // optional Expr condition, e.g. doc.age < 18
	Message  string `yaml:"message"`  // reject reason reported to the client
}

// AuthConfig protects the write endpoint. Mode "basic" checks bcrypt password
// hashes, "token" verifies HS256 bearer tokens signed with Secret.
type AuthConfig struct {
	Mode     string        `yaml:"mode"` // "", "basic" or "token"
	Users    []UserConfig  `yaml:"users"`
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`    // default: docgate
	TokenTTL time.Duration `yaml:"token_ttl"` // lifetime of minted tokens (default: 24h)
}

// UserConfig is a basic-auth account. An empty Resources list grants every
// resource.
type UserConfig struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"` // bcrypt, see "docgate hash-password"
	Resources    []string `yaml:"resources"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /openapi.json and /swagger/
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Resource paths are relative to the config file
	if !filepath.IsAbs(cfg.Resources.Dir) {
		cfg.Resources.Dir = filepath.Join(filepath.Dir(path), cfg.Resources.Dir)
	}

	return cfg, nil
}

// Parse builds a configuration from YAML bytes, applying environment
// overrides and defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	DOCGATE_RESOURCES_DIR        - Resource definitions directory (required)
//	DOCGATE_SERVER_HOST          - Server host (default: 0.0.0.0)
//	DOCGATE_SERVER_PORT          - Server port (default: 8080)
//	DOCGATE_TLS_MODE             - manual or acme (default: plain HTTP)
//	DOCGATE_TLS_CERT_FILE        - Certificate file for manual TLS
//	DOCGATE_TLS_KEY_FILE         - Key file for manual TLS
//	DOCGATE_TLS_DOMAINS          - Comma-separated domains for acme TLS
//	DOCGATE_TLS_EMAIL            - Let's Encrypt account email
//	DOCGATE_DATABASE_DRIVER      - sqlite or memory (default: sqlite)
//	DOCGATE_DATABASE_DSN         - Database path (default: docgate.db)
//	DOCGATE_DATABASE_SYNCHRONOUS - OFF, NORMAL or FULL (default: NORMAL)
//	DOCGATE_BANDWIDTH_SAVER      - Echo only server-assigned fields (default: true)
//	DOCGATE_IF_MATCH             - Emit concurrency tokens (default: true)
//	DOCGATE_ALLOW_UNKNOWN        - Accept undeclared fields (default: false)
//	DOCGATE_ID_GENERATOR         - uuid4, uuid7 or sequential (default: uuid4)
//	DOCGATE_LOG_LEVEL            - Log level: debug, info, warn, error (default: info)
//	DOCGATE_LOG_FORMAT           - Log format: json or console (default: json)
//	DOCGATE_METRICS_ENABLED      - Enable /metrics endpoint
//	DOCGATE_OPENAPI_ENABLED      - Enable OpenAPI/Swagger
//	DOCGATE_AUTH_MODE            - basic or token (default: open)
//	DOCGATE_AUTH_SECRET          - Token signing secret
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set DOCGATE_RESOURCES_DIR")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("DOCGATE_RESOURCES_DIR") != ""
}

// applyEnvOverrides applies DOCGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("DOCGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DOCGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOCGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("DOCGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("DOCGATE_TLS_MODE"); v != "" {
		cfg.Server.TLS.Mode = v
	}
	if v := os.Getenv("DOCGATE_TLS_CERT_FILE"); v != "" {
		cfg.Server.TLS.CertFile = v
	}
	if v := os.Getenv("DOCGATE_TLS_KEY_FILE"); v != "" {
		cfg.Server.TLS.KeyFile = v
	}
	if v := os.Getenv("DOCGATE_TLS_DOMAINS"); v != "" {
		cfg.Server.TLS.Domains = strings.Split(v, ",")
	}
	if v := os.Getenv("DOCGATE_TLS_EMAIL"); v != "" {
		cfg.Server.TLS.Email = v
	}

	if v := os.Getenv("DOCGATE_RESOURCES_DIR"); v != "" {
		cfg.Resources.Dir = v
	}

	// Database configuration
	if v := os.Getenv("DOCGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DOCGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DOCGATE_DATABASE_SYNCHRONOUS"); v != "" {
		cfg.Database.Synchronous = v
	}
	if v := os.Getenv("DOCGATE_DATABASE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.Timeout = d
		}
	}

	// Document behaviour
	if v := os.Getenv("DOCGATE_BANDWIDTH_SAVER"); v != "" {
		b := parseBool(v)
		cfg.Documents.BandwidthSaver = &b
	}
	if v := os.Getenv("DOCGATE_IF_MATCH"); v != "" {
		b := parseBool(v)
		cfg.Documents.IfMatch = &b
	}
	if v := os.Getenv("DOCGATE_ALLOW_UNKNOWN"); v != "" {
		cfg.Documents.AllowUnknown = parseBool(v)
	}
	if v := os.Getenv("DOCGATE_ID_GENERATOR"); v != "" {
		cfg.Documents.IDGenerator = v
	}

	// Logging configuration
	if v := os.Getenv("DOCGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("DOCGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// OpenAPI configuration
	if v := os.Getenv("DOCGATE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}

	if v := os.Getenv("DOCGATE_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("DOCGATE_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 10 << 20
	}
	if cfg.Server.TLS.Mode == "acme" {
		if cfg.Server.TLS.CacheDir == "" {
			cfg.Server.TLS.CacheDir = "certs"
		}
		if cfg.Server.TLS.HTTPAddr == "" {
			cfg.Server.TLS.HTTPAddr = ":80"
		}
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "docgate.db"
	}
	if cfg.Database.Synchronous == "" {
		cfg.Database.Synchronous = "NORMAL"
	}
	if cfg.Database.Timeout == 0 {
		cfg.Database.Timeout = 30 * time.Second
	}

	cfg.Documents.Names = cfg.Documents.Settings().Names
	if cfg.Documents.IDGenerator == "" {
		cfg.Documents.IDGenerator = "uuid4"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "docgate"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.Resources.Dir == "" {
		return fmt.Errorf("resources.dir is required")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch tls := cfg.Server.TLS; tls.Mode {
	case "":
	case "manual":
		if tls.CertFile == "" || tls.KeyFile == "" {
			return fmt.Errorf("server.tls: manual mode requires cert_file and key_file")
		}
	case "acme":
		if len(tls.Domains) == 0 || tls.Email == "" {
			return fmt.Errorf("server.tls: acme mode requires domains and email")
		}
	default:
		return fmt.Errorf("server.tls.mode must be 'manual' or 'acme', got %q", tls.Mode)
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	validSync := map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
	if !validSync[strings.ToUpper(cfg.Database.Synchronous)] {
		return fmt.Errorf("database.synchronous must be OFF, NORMAL, FULL or EXTRA, got %q", cfg.Database.Synchronous)
	}

	validGenerators := map[string]bool{"uuid4": true, "uuid7": true, "sequential": true}
	if !validGenerators[cfg.Documents.IDGenerator] {
		return fmt.Errorf("documents.id_generator must be uuid4, uuid7 or sequential, got %q", cfg.Documents.IDGenerator)
	}

	if err := validateNames(cfg.Documents.Names); err != nil {
		return err
	}

	for i, h := range cfg.Hooks {
		if !events.Point(h.Point).Valid() {
			return fmt.Errorf("hooks[%d]: unknown point %q", i, h.Point)
		}
		switch h.Action {
		case "log":
		case "reject":
			if p := events.Point(h.Point); p != events.BeforeBatch && p != events.BeforeItemInsert {
				return fmt.Errorf("hooks[%d]: reject only applies to before-* points, got %q", i, h.Point)
			}
		default:
			return fmt.Errorf("hooks[%d]: unknown action %q (supported: log, reject)", i, h.Action)
		}
		if h.When != "" {
			if err := rules.Check(h.When); err != nil {
				return fmt.Errorf("hooks[%d]: %w", i, err)
			}
		}
	}

	switch cfg.Auth.Mode {
	case "":
	case "basic":
		if len(cfg.Auth.Users) == 0 {
			return fmt.Errorf("auth: basic mode requires at least one user")
		}
		for i, u := range cfg.Auth.Users {
			if u.Username == "" || u.PasswordHash == "" {
				return fmt.Errorf("auth.users[%d]: username and password_hash are required", i)
			}
		}
	case "token":
		if len(cfg.Auth.Secret) < 32 {
			return fmt.Errorf("auth: token mode requires a secret of at least 32 bytes")
		}
	default:
		return fmt.Errorf("auth.mode must be 'basic' or 'token', got %q", cfg.Auth.Mode)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

// validateNames rejects configurations where two roles share one field name.
func validateNames(n convention.Names) error {
	seen := make(map[string]string)
	for role, name := range map[string]string{
		"id": n.ID, "etag": n.ETag, "updated": n.Updated, "created": n.Created,
		"status": n.Status, "issues": n.Issues, "items": n.Items, "error": n.Error,
	} {
		if other, dup := seen[name]; dup {
			return fmt.Errorf("documents.names: %s and %s both use %q", other, role, name)
		}
		seen[name] = role
	}
	return nil
}
