package config

const (
	defaultAddr                = ":8080"
	defaultReadHeaderTimeout   = 10
	defaultShutdownTimeout     = 15
	defaultSchema              = "content"
	defaultMaxConns            = 10
	defaultProvider            = "supabase"
	defaultSkewSeconds         = 30
	defaultCookie              = "sb-access-token"
	defaultStorageBackend      = "http"
	defaultRequestsPerSecond   = 50
	defaultBurst               = 20
	defaultProbeTimeoutSeconds = 5
	defaultMaxRedirects        = 5
	defaultGrantTTLSeconds     = 600
	defaultMaxDocumentBytes    = 64 << 20
	defaultTrackingMode        = "postgres"
	defaultTrackingWorkers     = 2
	defaultTrackingQueue       = 1024
	defaultFlushSpec           = "@every 1m"
	defaultRateLimit           = 120
	defaultRateWindowSeconds   = 60
	defaultServiceName         = "contentgate"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTP{
			Addr:                   defaultAddr,
			ReadHeaderTimeoutSecs:  defaultReadHeaderTimeout,
			ShutdownTimeoutSeconds: defaultShutdownTimeout,
		},
		Database: Database{Schema: defaultSchema, MaxConns: defaultMaxConns},
		Auth: Auth{
			Provider:    defaultProvider,
			SkewSeconds: defaultSkewSeconds,
			Cookie:      defaultCookie,
		},
		Storage: Storage{
			Backend:             defaultStorageBackend,
			RequestsPerSecond:   defaultRequestsPerSecond,
			Burst:               defaultBurst,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			MaxRedirects:        defaultMaxRedirects,
		},
		Content: Content{
			GrantTTLSeconds:  defaultGrantTTLSeconds,
			MaxDocumentBytes: defaultMaxDocumentBytes,
		},
		Tracking: Tracking{
			Mode:      defaultTrackingMode,
			Workers:   defaultTrackingWorkers,
			QueueSize: defaultTrackingQueue,
			FlushSpec: defaultFlushSpec,
		},
		RateLimit: RateLimit{
			Enabled:       true,
			Limit:         defaultRateLimit,
			WindowSeconds: defaultRateWindowSeconds,
		},
		Telemetry: Telemetry{ServiceName: defaultServiceName},
		Logging:   Logging{Level: defaultLogLevel},
	}
}
