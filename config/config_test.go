package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sample = `
env = "production"

[http]
addr = ":9000"
public_base_url = "https://media.example.com/"

[database]
url = "postgres://localhost/content"

[auth]
provider = "supabase"
base_url = "https://proj.supabase.co/"
secret = "file-secret"

[storage]
backend = "http"
base_url = "https://proj.supabase.co/storage/v1"
bucket = "course-media"
service_key = "service"
video_extensions = ["MP4", "webm"]

[content]
grant_ttl_seconds = 300

[tracking]
mode = "river"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "contentgate.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_FileThenEnv(t *testing.T) {
	p := writeConfig(t, sample)
	t.Setenv("CONTENTGATE_AUTH_SECRET", "env-secret")
	t.Setenv("CONTENTGATE_GRANT_TTL_SECONDS", "900")

	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTP.Addr)
	require.Equal(t, "https://media.example.com", cfg.HTTP.PublicBaseURL)
	require.Equal(t, "https://proj.supabase.co", cfg.Auth.BaseURL)
	require.Equal(t, "env-secret", cfg.Auth.Secret)
	require.Equal(t, 900*time.Second, cfg.GrantTTL())
	require.Equal(t, []string{".mp4", ".webm"}, cfg.Storage.VideoExtensions)
	require.Equal(t, "river", cfg.Tracking.Mode)
	require.Equal(t, "json", cfg.Logging.Format, "production defaults to json logs")
	require.Equal(t, 5*time.Second, cfg.ProbeTimeout())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONTENTGATE_DATABASE_URL", "postgres://localhost/content")
	t.Setenv("CONTENTGATE_AUTH_SECRET", "s")
	t.Setenv("CONTENTGATE_STORAGE_BACKEND", "local")
	t.Setenv("CONTENTGATE_STORAGE_ROOT", t.TempDir())
	t.Setenv("CONTENTGATE_STORAGE_SECRET", "objects")
	t.Setenv("CONTENTGATE_PUBLIC_BASE_URL", "http://localhost:8080")
	t.Setenv("PORT", "7000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.HTTP.Addr)
	require.Equal(t, 600*time.Second, cfg.GrantTTL())
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, "postgres", cfg.Tracking.Mode)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "[http]\nadress = \":1\"\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
}

func TestApplyEnv_FirstNameWins(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"CONTENTGATE_DATABASE_URL": "postgres://primary",
		"DATABASE_URL":             "postgres://fallback",
		"SUPABASE_JWT_SECRET":      "from-supabase",
		"CONTENTGATE_REDIS_DB":     "not-a-number",
	}
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "CONTENTGATE_REDIS_DB"))

	delete(env, "CONTENTGATE_REDIS_DB")
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	require.Equal(t, "postgres://primary", cfg.Database.URL)
	require.Equal(t, "from-supabase", cfg.Auth.Secret)
}

func valid() Config {
	c := Default()
	c.Database.URL = "postgres://localhost/content"
	c.Auth.Secret = "s"
	c.Storage.BaseURL = "https://store.example"
	c.Storage.Bucket = "b"
	c.Storage.ServiceKey = "k"
	c.normalize()
	return c
}

func TestValidate(t *testing.T) {
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"provider":       func(c *Config) { c.Auth.Provider = "saml" },
		"no auth source": func(c *Config) { c.Auth.Secret = "" },
		"backend":        func(c *Config) { c.Storage.Backend = "s3" },
		"http backend":   func(c *Config) { c.Storage.Bucket = "" },
		"local backend":  func(c *Config) { c.Storage.Backend = "local"; c.Storage.Root = "/srv"; c.Storage.Secret = "x" },
		"ttl":            func(c *Config) { c.Content.GrantTTLSeconds = 0 },
		"no catalog":     func(c *Config) { c.Database.URL = ""; c.Tracking.Mode = "off" },
		"tracking mode":  func(c *Config) { c.Tracking.Mode = "kafka" },
		"redis tracking": func(c *Config) { c.Tracking.Mode = "redis" },
		"rate limit":     func(c *Config) { c.RateLimit.Limit = 0 },
		"extension":      func(c *Config) { c.Storage.VideoExtensions = []string{"./x"} },
		"log format":     func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(&c)
		require.Error(t, c.Validate(), name)
	}

	c := valid()
	c.Database.URL = ""
	c.Tracking.Mode = "off"
	c.Content.CatalogFile = "catalog.toml"
	require.NoError(t, c.Validate(), "file catalog needs no database")
}

func TestDecodeFile_MissingKeepsDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, decodeFile(filepath.Join(t.TempDir(), "absent.toml"), &cfg))
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults changed (-want +got):\n%s", diff)
	}
}

func TestDecodeFile_OnlyTouchesListedKeys(t *testing.T) {
	cfg := Default()
	require.NoError(t, decodeFile(writeConfig(t, "[rate_limit]\nlimit = 5\n"), &cfg))
	want := Default()
	want.RateLimit.Limit = 5
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}
