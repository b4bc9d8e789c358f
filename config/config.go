// Package config loads contentgate settings from a TOML file, a .env file and
// CONTENTGATE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// HTTP contains the listener settings.
type HTTP struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is where clients reach this service. Local storage URLs
	// are issued under it.
	PublicBaseURL          string `toml:"public_base_url"`
	ReadHeaderTimeoutSecs  int    `toml:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

type Database struct {
	URL      string `toml:"url"`
	Schema   string `toml:"schema"`
	MaxConns int32  `toml:"max_conns"`
}

// Redis is disabled when Addr is empty.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Auth selects how session credentials are verified.
type Auth struct {
	Provider string `toml:"provider"` // supabase | oidc
	BaseURL  string `toml:"base_url"`
	// Secret is the pre-shared HMAC key (Supabase project JWT secret).
	Secret      string `toml:"secret"`
	KeysDir     string `toml:"keys_dir"`
	JWKSURL     string `toml:"jwks_url"`
	Issuer      string `toml:"issuer"`
	Audience    string `toml:"audience"`
	SkewSeconds int    `toml:"skew_seconds"`
	APIKey      string `toml:"api_key"`
	Cookie      string `toml:"cookie"`
	// PublishJWKS serves the loaded RSA public keys at /.well-known/jwks.json.
	PublishJWKS bool `toml:"publish_jwks"`
}

// Storage selects the object backend.
type Storage struct {
	Backend    string `toml:"backend"` // http | local
	BaseURL    string `toml:"base_url"`
	Bucket     string `toml:"bucket"`
	ServiceKey string `toml:"service_key"`
	Root       string `toml:"root"`
	Secret     string `toml:"secret"`

	RequestsPerSecond   float64  `toml:"requests_per_second"`
	Burst               int      `toml:"burst"`
	// VideoExtensions overrides the probe order; empty keeps the built-in one.
	VideoExtensions     []string `toml:"video_extensions"`
	ParallelProbe       bool     `toml:"parallel_probe"`
	ProbeTimeoutSeconds int      `toml:"probe_timeout_seconds"`
	MaxRedirects        int      `toml:"max_redirects"`
}

// Content holds grant and document limits.
type Content struct {
	GrantTTLSeconds  int   `toml:"grant_ttl_seconds"`
	MaxDocumentBytes int64 `toml:"max_document_bytes"`
	// CatalogFile, when set, serves the catalog from a TOML file instead of
	// postgres.
	CatalogFile string `toml:"catalog_file"`
}

// Tracking selects where access records go.
type Tracking struct {
	Mode      string `toml:"mode"` // off | postgres | redis | river
	Workers   int    `toml:"workers"`
	QueueSize int    `toml:"queue_size"`
	FlushSpec string `toml:"flush_spec"`
}

type RateLimit struct {
	Enabled       bool `toml:"enabled"`
	Limit         int  `toml:"limit"`
	WindowSeconds int  `toml:"window_seconds"`
}

type Telemetry struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | json
}

// Config encapsulates all configuration values for contentgate.
type Config struct {
	Env       string    `toml:"env"`
	HTTP      HTTP      `toml:"http"`
	Database  Database  `toml:"database"`
	Redis     Redis     `toml:"redis"`
	Auth      Auth      `toml:"auth"`
	Storage   Storage   `toml:"storage"`
	Content   Content   `toml:"content"`
	Tracking  Tracking  `toml:"tracking"`
	RateLimit RateLimit `toml:"rate_limit"`
	Telemetry Telemetry `toml:"telemetry"`
	Logging   Logging   `toml:"logging"`
}

// Load reads path (optional), then .env, then the environment. A missing
// file at path leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Production reports whether Env names a production deployment.
func (c *Config) Production() bool { return c.Env == "production" || c.Env == "prod" }

func (c *Config) GrantTTL() time.Duration {
	return time.Duration(c.Content.GrantTTLSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Storage.ProbeTimeoutSeconds) * time.Second
}

func (c *Config) Skew() time.Duration { return time.Duration(c.Auth.SkewSeconds) * time.Second }

func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.HTTP.ReadHeaderTimeoutSecs) * time.Second
}
