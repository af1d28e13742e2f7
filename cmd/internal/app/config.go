package app

import (
	"strings"
	"time"

	"parley/cmd/identity"
	"parley/cmd/security/token"
)

// Store drivers selectable with PARLEY_STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string

	LogLevel  string
	LogFormat string // json | pretty
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// StoreDriver picks the account and message store.
	StoreDriver string

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	MongoURL      string
	MongoDatabase string

	// RedisURL enables the Redis revocation store. Empty means in-memory.
	RedisURL string

	// JWTSecret signs every token. Loaded once; never rotated at runtime.
	JWTSecret string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("PARLEY_HTTP_ADDR", "0.0.0.0:8080"),

		LogLevel:  EnvString("PARLEY_LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(EnvString("PARLEY_LOG_FORMAT", "json")),
		LogColor:  EnvBool("PARLEY_LOG_COLOR", false),

		ReadHeaderTimeout: EnvDuration("PARLEY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PARLEY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PARLEY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PARLEY_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("PARLEY_HTTP_MAX_HEADER_BYTES", 1<<20),

		StoreDriver: strings.ToLower(EnvString("PARLEY_STORE_DRIVER", StoreMemory)),

		DatabaseURL: EnvString("PARLEY_DATABASE_URL", ""),
		DBSchema:    EnvString("PARLEY_DB_SCHEMA", identity.DefaultSchema),
		DBMaxConns:  EnvInt32("PARLEY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PARLEY_DB_MIN_CONNS", 0),

		MongoURL:      EnvString("PARLEY_MONGO_URL", ""),
		MongoDatabase: EnvString("PARLEY_MONGO_DATABASE", "parley"),

		RedisURL: EnvString("PARLEY_REDIS_URL", ""),

		JWTSecret: EnvString(token.SecretEnvKey, ""),

		CORSAllowedOrigins:   EnvCSV("PARLEY_CORS_ALLOWED_ORIGINS", ""),
		CORSAllowCredentials: EnvBool("PARLEY_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("PARLEY_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("PARLEY_METRICS_ENABLED", true),
	}
}
