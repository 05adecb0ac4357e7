package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Upstream     UpstreamConfig
	Sync         SyncConfig
	Control      ControlConfig
	Notification NotificationConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path of the SQLite database file when Driver is sqlite
	Path string
	DSN  string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
	KeyPrefix    string
}

// PolicyConfig mirrors cache.Policy for one partition family.
type PolicyConfig struct {
	MaxAge     time.Duration
	MaxEntries int
}

type CacheConfig struct {
	// Backend is "redis" or "sql".
	Backend             string
	Epoch               string
	Static              PolicyConfig
	Dynamic             PolicyConfig
	Offline             PolicyConfig
	CoreAssets          []string
	ContentDirs         []string
	BackendHostPatterns []string
	SkipWaiting         bool
}

type UpstreamConfig struct {
	BaseURL       string
	ProbePath     string
	ProbeInterval time.Duration
}

type SyncConfig struct {
	EnqueueAttempts int
	EnqueueBackoff  time.Duration
}

type ControlConfig struct {
	// JWTSecret guards the /_engine control channel. Empty disables auth.
	JWTSecret string
	TokenTTL  time.Duration
	// Rate limiting needs Redis; zero disables it.
	RateLimitPerMinute int
	RateLimitBurst     float64
}

type NotificationConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	Recipient      string
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			// zero: a hung upstream fetch only blocks its own request
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "offline_engine"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			Path:            getEnv("DB_PATH", "./data/offline-engine.db"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "offline"),
		},
		Cache: CacheConfig{
			Backend: getEnv("CACHE_BACKEND", "sql"),
			Epoch:   getEnv("CACHE_EPOCH", "v2.0.0"),
			Static: PolicyConfig{
				MaxAge:     getDurationEnv("CACHE_STATIC_MAX_AGE", 7*24*time.Hour),
				MaxEntries: getIntEnv("CACHE_STATIC_MAX_ENTRIES", 0),
			},
			Dynamic: PolicyConfig{
				MaxAge:     getDurationEnv("CACHE_DYNAMIC_MAX_AGE", 24*time.Hour),
				MaxEntries: getIntEnv("CACHE_DYNAMIC_MAX_ENTRIES", 100),
			},
			Offline: PolicyConfig{
				MaxAge:     getDurationEnv("CACHE_OFFLINE_MAX_AGE", 30*24*time.Hour),
				MaxEntries: getIntEnv("CACHE_OFFLINE_MAX_ENTRIES", 0),
			},
			CoreAssets: getListEnv("CACHE_CORE_ASSETS", []string{
				"/", "/index.html", "/manifest.json", "/offline.html",
				"/icons/icon-192x192.png", "/icons/icon-512x512.png",
			}),
			ContentDirs:         getListEnv("CACHE_CONTENT_DIRS", []string{"/content/", "/lessons/", "/worksheets/", "/audio/"}),
			BackendHostPatterns: getListEnv("CACHE_BACKEND_HOST_PATTERNS", []string{`^api\.`, `\.supabase\.co$`}),
			SkipWaiting:         getBoolEnv("SKIP_WAITING", true),
		},
		Upstream: UpstreamConfig{
			BaseURL:       getEnv("UPSTREAM_URL", "http://localhost:3000"),
			ProbePath:     getEnv("UPSTREAM_PROBE_PATH", "/"),
			ProbeInterval: getDurationEnv("UPSTREAM_PROBE_INTERVAL", 30*time.Second),
		},
		Sync: SyncConfig{
			EnqueueAttempts: getIntEnv("SYNC_ENQUEUE_ATTEMPTS", 3),
			EnqueueBackoff:  getDurationEnv("SYNC_ENQUEUE_BACKOFF", 50*time.Millisecond),
		},
		Control: ControlConfig{
			JWTSecret: getEnv("CONTROL_JWT_SECRET", ""),
			TokenTTL:  getDurationEnv("CONTROL_TOKEN_TTL", 24*time.Hour),

			RateLimitPerMinute: getIntEnv("CONTROL_RATE_LIMIT_PER_MINUTE", 120),
			RateLimitBurst:     getFloatEnv("CONTROL_RATE_LIMIT_BURST", 2.0),
		},
		Notification: NotificationConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("FROM_EMAIL", "noreply@example.com"),
			FromName:       getEnv("FROM_NAME", "Kids Learning"),
			Recipient:      getEnv("NOTIFICATION_RECIPIENT", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	switch cfg.Database.Driver {
	case "postgres":
		cfg.Database.DSN = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.DBName,
			cfg.Database.SSLMode,
		)
	case "sqlite":
		cfg.Database.DSN = SQLiteDSN(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	if cfg.Cache.Backend != "redis" && cfg.Cache.Backend != "sql" {
		return nil, fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.Cache.Backend)
	}
	if strings.TrimSpace(cfg.Cache.Epoch) == "" {
		return nil, fmt.Errorf("CACHE_EPOCH must not be empty")
	}

	return cfg, nil
}

// SQLiteDSN builds a modernc.org/sqlite DSN with the pragmas the stores rely on.
func SQLiteDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv reads a comma separated list; empty items are dropped.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
