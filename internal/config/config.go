package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env       string
	HttpPort  string
	DBPath    string // used when DBDriver=sqlite
	DBDriver  string // sqlite|postgres
	DBDsn     string // used when DBDriver=postgres (e.g., DATABASE_URL)
	StaticDir string

	// CatalogPath points at the JSON catalog declaring provider accounts.
	CatalogPath string

	// Sync engine knobs. Account-level concurrency is deliberately smaller
	// than resource-level concurrency: each account fans out into many
	// resource calls of its own.
	SyncInterval        time.Duration
	SyncTTL             time.Duration
	AccountConcurrency  int
	ResourceConcurrency int
	JobHistory          int

	// Per-provider request pacing: at most RequestConcurrency calls in
	// flight against one provider API, spaced at least RequestInterval
	// apart.
	RequestConcurrency int
	RequestInterval    time.Duration
}

func Load() *Config {
	cfg := &Config{
		Env:       getEnv("APP_ENV", "dev"),
		HttpPort:  getEnv("HTTP_PORT", "8080"),
		DBPath:    getEnv("DB_PATH", "data/argus.db"),
		DBDriver:  getEnv("DB_DRIVER", "sqlite"),
		DBDsn:     Resolve(os.Getenv("DATABASE_URL"), os.Getenv("DB_DSN")),
		StaticDir: getEnv("STATIC_DIR", "web/dist"),

		CatalogPath: getEnv("CATALOG_PATH", "config/catalog.json"),

		SyncInterval:        getDuration("SYNC_INTERVAL", 15*time.Minute),
		SyncTTL:             getDuration("SYNC_TTL", time.Hour),
		AccountConcurrency:  getInt("SYNC_ACCOUNT_CONCURRENCY", 3),
		ResourceConcurrency: getInt("SYNC_RESOURCE_CONCURRENCY", 8),
		JobHistory:          getInt("JOB_HISTORY", 50),

		RequestConcurrency: getInt("REQUEST_CONCURRENCY", 4),
		RequestInterval:    getDuration("REQUEST_INTERVAL", 100*time.Millisecond),
	}
	return cfg
}

// Resolve returns the first non-empty value in precedence order. Account and
// provider loading use it so "env beats file beats default" lives in one place
// instead of branching at every call site.
func Resolve(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" { return v }
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
