package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Auth.Provider = strings.ToLower(strings.TrimSpace(c.Auth.Provider))
	c.Auth.BaseURL = strings.TrimRight(strings.TrimSpace(c.Auth.BaseURL), "/")
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.BaseURL), "/")
	c.HTTP.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.HTTP.PublicBaseURL), "/")
	c.Tracking.Mode = strings.ToLower(strings.TrimSpace(c.Tracking.Mode))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
		if c.Production() {
			c.Logging.Format = "json"
		}
	}
	for i, ext := range c.Storage.VideoExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Storage.VideoExtensions[i] = ext
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateHTTP(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateContent(); err != nil {
		return err
	}
	if err := c.validateTracking(); err != nil {
		return err
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.WindowSeconds <= 0) {
		return errors.New("rate_limit.limit and rate_limit.window_seconds must be positive")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must be set")
	}
	if c.HTTP.PublicBaseURL != "" {
		if err := absoluteURL(c.HTTP.PublicBaseURL); err != nil {
			return fmt.Errorf("http.public_base_url: %w", err)
		}
	}
	return nil
}

func (c *Config) validateAuth() error {
	switch c.Auth.Provider {
	case "supabase", "oidc":
	default:
		return fmt.Errorf("auth.provider %q must be supabase or oidc", c.Auth.Provider)
	}
	if c.Auth.BaseURL != "" {
		if err := absoluteURL(c.Auth.BaseURL); err != nil {
			return fmt.Errorf("auth.base_url: %w", err)
		}
	}
	if c.Auth.Secret == "" && c.Auth.JWKSURL == "" && c.Auth.BaseURL == "" && c.Auth.KeysDir == "" {
		return errors.New("auth: set auth.secret, auth.jwks_url, auth.keys_dir or auth.base_url")
	}
	if c.Auth.SkewSeconds < 0 {
		return errors.New("auth.skew_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	switch s.Backend {
	case "http":
		if s.BaseURL == "" || s.Bucket == "" || s.ServiceKey == "" {
			return errors.New("storage: http backend needs base_url, bucket and service_key")
		}
		if err := absoluteURL(s.BaseURL); err != nil {
			return fmt.Errorf("storage.base_url: %w", err)
		}
	case "local":
		if s.Root == "" || s.Secret == "" {
			return errors.New("storage: local backend needs root and secret")
		}
		if c.HTTP.PublicBaseURL == "" {
			return errors.New("storage: local backend needs http.public_base_url")
		}
	default:
		return fmt.Errorf("storage.backend %q must be http or local", s.Backend)
	}
	if s.RequestsPerSecond < 0 || s.Burst < 0 {
		return errors.New("storage.requests_per_second and storage.burst must not be negative")
	}
	if s.ProbeTimeoutSeconds <= 0 {
		return errors.New("storage.probe_timeout_seconds must be positive")
	}
	if s.MaxRedirects < 0 {
		return errors.New("storage.max_redirects must not be negative")
	}
	for _, ext := range s.VideoExtensions {
		if len(ext) < 2 || strings.ContainsAny(ext, "/\\") {
			return fmt.Errorf("storage.video_extensions: invalid extension %q", ext)
		}
	}
	return nil
}

func (c *Config) validateContent() error {
	if c.Content.GrantTTLSeconds <= 0 || c.Content.GrantTTLSeconds > 24*3600 {
		return errors.New("content.grant_ttl_seconds must be between 1 and 86400")
	}
	if c.Content.MaxDocumentBytes <= 0 {
		return errors.New("content.max_document_bytes must be positive")
	}
	if c.Content.CatalogFile == "" && c.Database.URL == "" {
		return errors.New("database.url is required unless content.catalog_file is set")
	}
	return nil
}

func (c *Config) validateTracking() error {
	switch c.Tracking.Mode {
	case "off":
		return nil
	case "postgres", "river":
		if c.Database.URL == "" {
			return fmt.Errorf("tracking.mode %s needs database.url", c.Tracking.Mode)
		}
	case "redis":
		if c.Redis.Addr == "" || c.Database.URL == "" {
			return errors.New("tracking.mode redis needs redis.addr and database.url")
		}
		if c.Tracking.FlushSpec == "" {
			return errors.New("tracking.flush_spec must be set for redis tracking")
		}
	default:
		return fmt.Errorf("tracking.mode %q must be off, postgres, redis or river", c.Tracking.Mode)
	}
	if c.Tracking.Workers <= 0 || c.Tracking.QueueSize <= 0 {
		return errors.New("tracking.workers and tracking.queue_size must be positive")
	}
	return nil
}

func absoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
