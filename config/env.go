package config

import (
	"fmt"
	"strconv"
	"strings"
)

type lookupFunc func(string) (string, bool)

type envBinding struct {
	names []string
	set   func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func float(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func list(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
		return nil
	}
}

func (c *Config) bindings() []envBinding {
	return []envBinding{
		{[]string{"CONTENTGATE_ENV", "APP_ENV"}, str(&c.Env)},
		{[]string{"CONTENTGATE_HTTP_ADDR", "PORT"}, func(v string) error {
			if !strings.Contains(v, ":") {
				v = ":" + v
			}
			c.HTTP.Addr = v
			return nil
		}},
		{[]string{"CONTENTGATE_PUBLIC_BASE_URL"}, str(&c.HTTP.PublicBaseURL)},
		{[]string{"CONTENTGATE_DATABASE_URL", "DATABASE_URL"}, str(&c.Database.URL)},
		{[]string{"CONTENTGATE_DATABASE_SCHEMA"}, str(&c.Database.Schema)},
		{[]string{"CONTENTGATE_REDIS_ADDR"}, str(&c.Redis.Addr)},
		{[]string{"CONTENTGATE_REDIS_PASSWORD"}, str(&c.Redis.Password)},
		{[]string{"CONTENTGATE_REDIS_DB"}, integer(&c.Redis.DB)},
		{[]string{"CONTENTGATE_AUTH_PROVIDER"}, str(&c.Auth.Provider)},
		{[]string{"CONTENTGATE_AUTH_BASE_URL", "SUPABASE_URL"}, str(&c.Auth.BaseURL)},
		{[]string{"CONTENTGATE_AUTH_SECRET", "SUPABASE_JWT_SECRET"}, str(&c.Auth.Secret)},
		{[]string{"CONTENTGATE_AUTH_KEYS_DIR"}, str(&c.Auth.KeysDir)},
		{[]string{"CONTENTGATE_AUTH_JWKS_URL"}, str(&c.Auth.JWKSURL)},
		{[]string{"CONTENTGATE_AUTH_ISSUER"}, str(&c.Auth.Issuer)},
		{[]string{"CONTENTGATE_AUTH_AUDIENCE"}, str(&c.Auth.Audience)},
		{[]string{"CONTENTGATE_AUTH_API_KEY", "SUPABASE_ANON_KEY"}, str(&c.Auth.APIKey)},
		{[]string{"CONTENTGATE_AUTH_COOKIE"}, str(&c.Auth.Cookie)},
		{[]string{"CONTENTGATE_AUTH_PUBLISH_JWKS"}, boolean(&c.Auth.PublishJWKS)},
		{[]string{"CONTENTGATE_STORAGE_BACKEND"}, str(&c.Storage.Backend)},
		{[]string{"CONTENTGATE_STORAGE_BASE_URL"}, str(&c.Storage.BaseURL)},
		{[]string{"CONTENTGATE_STORAGE_BUCKET"}, str(&c.Storage.Bucket)},
		{[]string{"CONTENTGATE_STORAGE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"}, str(&c.Storage.ServiceKey)},
		{[]string{"CONTENTGATE_STORAGE_ROOT"}, str(&c.Storage.Root)},
		{[]string{"CONTENTGATE_STORAGE_SECRET"}, str(&c.Storage.Secret)},
		{[]string{"CONTENTGATE_STORAGE_RPS"}, float(&c.Storage.RequestsPerSecond)},
		{[]string{"CONTENTGATE_STORAGE_VIDEO_EXTENSIONS"}, list(&c.Storage.VideoExtensions)},
		{[]string{"CONTENTGATE_STORAGE_PARALLEL_PROBE"}, boolean(&c.Storage.ParallelProbe)},
		{[]string{"CONTENTGATE_GRANT_TTL_SECONDS"}, integer(&c.Content.GrantTTLSeconds)},
		{[]string{"CONTENTGATE_CATALOG_FILE"}, str(&c.Content.CatalogFile)},
		{[]string{"CONTENTGATE_TRACKING_MODE"}, str(&c.Tracking.Mode)},
		{[]string{"CONTENTGATE_TRACKING_WORKERS"}, integer(&c.Tracking.Workers)},
		{[]string{"CONTENTGATE_RATE_LIMIT_ENABLED"}, boolean(&c.RateLimit.Enabled)},
		{[]string{"CONTENTGATE_RATE_LIMIT"}, integer(&c.RateLimit.Limit)},
		{[]string{"CONTENTGATE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, str(&c.Telemetry.OTLPEndpoint)},
		{[]string{"CONTENTGATE_LOG_LEVEL", "LOG_LEVEL"}, str(&c.Logging.Level)},
		{[]string{"CONTENTGATE_LOG_FORMAT"}, str(&c.Logging.Format)},
	}
}

// applyEnv overrides fields from the environment. The first name of a
// binding that is set wins.
func (c *Config) applyEnv(lookup lookupFunc) error {
	for _, b := range c.bindings() {
		for _, name := range b.names {
			v, ok := lookup(name)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			if err := b.set(strings.TrimSpace(v)); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			break
		}
	}
	return nil
}
