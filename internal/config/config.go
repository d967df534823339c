package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the importer.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	GLPI     GLPIConfig
	Import   ImportConfig
	Janitor  JanitorConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	MaxUploadBytes        int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	QueueKey       string
	StatePrefix    string
	StateTTLHours  int
	PopTimeoutSecs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
	Output string
}

// AuthConfig defines operator authentication for the HTTP API.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorUser          string
	OperatorPasswordHash  string
}

// GLPIConfig points at the remote ticketing API.
type GLPIConfig struct {
	Endpoint              string
	AppToken              string
	Username              string
	Password              string
	UserToken             string
	RequestTimeoutSeconds int
}

// ImportConfig tunes the per-record workflow and the worker.
type ImportConfig struct {
	UploadDir        string
	OutputDir        string
	SettleDelayMS    int
	DefaultStatus    int
	WorkerCount      int
	KillSessionOnEnd bool
	MetricsEnabled   bool
	MetricsPort      string
}

// JanitorConfig configures the retention sweeper.
type JanitorConfig struct {
	Enabled               bool
	Cron                  string
	RetentionHours        int
	HistoryRetentionHours int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "glpi-ticket-importer"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			MaxUploadBytes:        getEnvAsInt("HTTP_MAX_UPLOAD_BYTES", 20*1024*1024),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			QueueKey:       getEnv("REDIS_QUEUE_KEY", "importer:jobs"),
			StatePrefix:    getEnv("REDIS_STATE_PREFIX", "importer:job:"),
			StateTTLHours:  getEnvAsInt("REDIS_STATE_TTL_HOURS", 24),
			PopTimeoutSecs: getEnvAsInt("REDIS_POP_TIMEOUT_SECONDS", 5),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorUser:          getEnv("AUTH_OPERATOR_USER", "admin"),
			OperatorPasswordHash:  os.Getenv("AUTH_OPERATOR_PASSWORD_HASH"),
		},
		GLPI: GLPIConfig{
			Endpoint:              getEnv("GLPI_API_ENDPOINT", "http://localhost:8090/apirest.php"),
			AppToken:              getEnv("GLPI_APP_TOKEN", ""),
			Username:              os.Getenv("GLPI_USERNAME"),
			Password:              os.Getenv("GLPI_PASSWORD"),
			UserToken:             os.Getenv("GLPI_USER_TOKEN"),
			RequestTimeoutSeconds: getEnvAsInt("GLPI_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Import: ImportConfig{
			UploadDir:        getEnv("IMPORT_UPLOAD_DIR", "temp_files"),
			OutputDir:        getEnv("PROCESSED_FOLDER", "processed_files"),
			SettleDelayMS:    getEnvAsInt("IMPORT_SETTLE_DELAY_MS", 2000),
			DefaultStatus:    getEnvAsInt("IMPORT_DEFAULT_STATUS", 2),
			WorkerCount:      getEnvAsInt("IMPORT_WORKER_COUNT", 1),
			KillSessionOnEnd: getEnvAsBool("IMPORT_KILL_SESSION", true),
			MetricsEnabled:   getEnvAsBool("WORKER_METRICS_ENABLED", true),
			MetricsPort:      getEnv("WORKER_METRICS_PORT", "9091"),
		},
		Janitor: JanitorConfig{
			Enabled:               getEnvAsBool("JANITOR_ENABLED", true),
			Cron:                  getEnv("JANITOR_CRON", "@hourly"),
			RetentionHours:        getEnvAsInt("JANITOR_RETENTION_HOURS", 72),
			HistoryRetentionHours: getEnvAsInt("JANITOR_HISTORY_RETENTION_HOURS", 720),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// WorkerMetricsAddr returns the listen address of the worker's metrics
// endpoint, or an empty string when it is disabled.
func (c *Config) WorkerMetricsAddr() string {
	if !c.Import.MetricsEnabled || c.Import.MetricsPort == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.App.Host, c.Import.MetricsPort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-call timeout against GLPI.
func (g GLPIConfig) RequestTimeout() time.Duration {
	if g.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

// SettleDelay returns the pause between actor attachment and status update.
func (i ImportConfig) SettleDelay() time.Duration {
	if i.SettleDelayMS <= 0 {
		return 0
	}
	return time.Duration(i.SettleDelayMS) * time.Millisecond
}

// StateTTL returns how long job states are kept in Redis.
func (r RedisConfig) StateTTL() time.Duration {
	if r.StateTTLHours <= 0 {
		return 0
	}
	return time.Duration(r.StateTTLHours) * time.Hour
}

// PopTimeout returns the blocking wait of a worker on the queue.
func (r RedisConfig) PopTimeout() time.Duration {
	if r.PopTimeoutSecs <= 0 {
		return time.Second
	}
	return time.Duration(r.PopTimeoutSecs) * time.Second
}

// Retention returns the age after which uploads and artifacts are purged.
func (j JanitorConfig) Retention() time.Duration {
	return time.Duration(j.RetentionHours) * time.Hour
}

// HistoryRetention returns the age after which finished job runs are purged.
func (j JanitorConfig) HistoryRetention() time.Duration {
	return time.Duration(j.HistoryRetentionHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
