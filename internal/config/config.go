// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, the upstream astrology API, the
// LLM oracle, chat session lifetimes, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/astro-chat-relay/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "astro-chat-relay")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StorageConfig selects the database and the optional Redis instance.
type StorageConfig struct {
	Driver      string // DB_DRIVER: sqlite|postgres
	DBPath      string // DB_PATH, SQLite file
	DatabaseURL string // DATABASE_URL, Postgres DSN
	RedisURL    string // REDIS_URL; empty means in-process session locks
}

// AuthConfig controls the X-API-Key check.
type AuthConfig struct {
	APIKey   string // API_KEY
	Required bool   // API_KEY_REQUIRED; when false a missing header is allowed
}

// UpstreamConfig points at the astrology data API.
type UpstreamConfig struct {
	BaseURL     string        // UPSTREAM_BASE_URL
	APIKey      string        // UPSTREAM_API_KEY, falls back to API_KEY
	Timeout     time.Duration // UPSTREAM_TIMEOUT per call
	Concurrency int           // UPSTREAM_CONCURRENCY, parallel category fetches
	CatalogPath string        // CATALOG_PATH; empty uses the embedded catalog
}

// OracleConfig points at the chat-completion API.
type OracleConfig struct {
	BaseURL string        // ORACLE_BASE_URL
	APIKey  string        // ORACLE_API_KEY, falls back to PERPLEXITY_API_KEY
	Model   string        // ORACLE_MODEL
	Timeout time.Duration // ORACLE_TIMEOUT
}

// ChatConfig holds session and cache lifetimes.
type ChatConfig struct {
	SessionTTL       time.Duration // SESSION_TTL
	SessionCookie    string        // SESSION_COOKIE
	CookieSecure     bool          // COOKIE_SECURE
	MaxQueryRunes    int           // MAX_QUERY_RUNES
	ProfileFreshFor  time.Duration // PROFILE_FRESH_FOR
	ProfileMajorAge  time.Duration // PROFILE_MAJOR_AFTER
	ProfileRetention time.Duration // PROFILE_RETENTION; 0 keeps profiles forever
	GeoSearchTTL     time.Duration // GEO_SEARCH_TTL
	SweepInterval    time.Duration // SWEEP_INTERVAL; 0 disables the reaper
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must exceed the oracle timeout
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // redacting access logger instead of the plain one
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	Storage  StorageConfig
	Auth     AuthConfig
	Upstream UpstreamConfig
	Oracle   OracleConfig
	Chat     ChatConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	apiKey := getenv("API_KEY", "")

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 330*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		Storage: StorageConfig{
			Driver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DBPath:      getenv("DB_PATH", "astrorelay.db"),
			DatabaseURL: getenv("DATABASE_URL", ""),
			RedisURL:    getenv("REDIS_URL", ""),
		},
		Auth: AuthConfig{
			APIKey:   apiKey,
			Required: getbool("API_KEY_REQUIRED", false),
		},
		Upstream: UpstreamConfig{
			BaseURL:     strings.TrimRight(getenv("UPSTREAM_BASE_URL", "https://api.vedicastroapi.com/v3-json"), "/"),
			APIKey:      sysutil.FirstNonEmpty(os.Getenv("UPSTREAM_API_KEY"), apiKey),
			Timeout:     getdur("UPSTREAM_TIMEOUT", 30*time.Second),
			Concurrency: getint("UPSTREAM_CONCURRENCY", 4),
			CatalogPath: getenv("CATALOG_PATH", ""),
		},
		Oracle: OracleConfig{
			BaseURL: strings.TrimRight(getenv("ORACLE_BASE_URL", "https://api.perplexity.ai"), "/"),
			APIKey:  sysutil.FirstNonEmpty(os.Getenv("ORACLE_API_KEY"), os.Getenv("PERPLEXITY_API_KEY")),
			Model:   getenv("ORACLE_MODEL", "sonar-pro"),
			Timeout: getdur("ORACLE_TIMEOUT", 300*time.Second),
		},
		Chat: ChatConfig{
			SessionTTL:       getdur("SESSION_TTL", 24*time.Hour),
			SessionCookie:    getenv("SESSION_COOKIE", "chat_session_id"),
			CookieSecure:     getbool("COOKIE_SECURE", false),
			MaxQueryRunes:    getint("MAX_QUERY_RUNES", 2000),
			ProfileFreshFor:  getdur("PROFILE_FRESH_FOR", 24*time.Hour),
			ProfileMajorAge:  getdur("PROFILE_MAJOR_AFTER", 7*24*time.Hour),
			ProfileRetention: getdur("PROFILE_RETENTION", 0),
			GeoSearchTTL:     getdur("GEO_SEARCH_TTL", time.Hour),
			SweepInterval:    getdur("SWEEP_INTERVAL", 10*time.Minute),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 1.0),
		RateBurst: getint("RATE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "astro-chat-relay"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Storage.Driver == "postgresql" {
		cfg.Storage.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Auth.Required && strings.TrimSpace(cfg.Auth.APIKey) == "" {
		return cfg, errors.New("API_KEY must be set when API_KEY_REQUIRED=true")
	}
	if cfg.Upstream.Timeout <= 0 {
		return cfg, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.Upstream.Concurrency < 1 {
		return cfg, errors.New("UPSTREAM_CONCURRENCY must be >= 1")
	}
	if cfg.Oracle.Timeout <= 0 {
		return cfg, errors.New("ORACLE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Oracle.Model) == "" {
		return cfg, errors.New("ORACLE_MODEL must not be empty")
	}
	if cfg.WriteTimeout <= cfg.Oracle.Timeout {
		return cfg, errors.New("WRITE_TIMEOUT must exceed ORACLE_TIMEOUT")
	}
	if cfg.Chat.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Chat.SessionCookie) == "" {
		return cfg, errors.New("SESSION_COOKIE must not be empty")
	}
	if cfg.Chat.MaxQueryRunes < 1 {
		return cfg, errors.New("MAX_QUERY_RUNES must be >= 1")
	}
	if cfg.Chat.ProfileFreshFor <= 0 || cfg.Chat.ProfileMajorAge < cfg.Chat.ProfileFreshFor {
		return cfg, errors.New("PROFILE_FRESH_FOR must be > 0 and <= PROFILE_MAJOR_AFTER")
	}
	if cfg.Chat.ProfileRetention < 0 || cfg.Chat.SweepInterval < 0 {
		return cfg, errors.New("PROFILE_RETENTION and SWEEP_INTERVAL must be >= 0")
	}
	if cfg.Chat.GeoSearchTTL <= 0 {
		return cfg, errors.New("GEO_SEARCH_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// DSN returns the connection string for the configured driver.
func (s StorageConfig) DSN() string {
	if s.Driver == "postgres" {
		return s.DatabaseURL
	}
	return s.DBPath
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
