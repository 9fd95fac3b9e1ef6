package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Checker    CheckerConfig    `yaml:"checker"`
	Caching    CachingConfig    `yaml:"caching"`
	History    HistoryConfig    `yaml:"history"`
	Timeseries TimeseriesConfig `yaml:"timeseries"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Jobs       JobsConfig       `yaml:"jobs"`
}

// ServerConfig represents the server configuration
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	ETagMaxAgeSeconds int           `yaml:"etag_max_age_seconds"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// DatabaseConfig configures the monitor and check result store
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ClickHouseConfig configures the columnar Kubernetes metrics store.
// When disabled, metrics are kept in memory.
type ClickHouseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"`
}

// KubernetesConfig represents the Kubernetes configuration
type KubernetesConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Mode           string  `yaml:"mode"`
	KubeconfigPath string  `yaml:"kubeconfig_path"`
	QPS            float32 `yaml:"qps"`
	Burst          int     `yaml:"burst"`
}

// ClusterConfig places this replica in the deployment
type ClusterConfig struct {
	// Role is "leader" or "follower". Only the leader runs scheduled jobs.
	Role string `yaml:"role"`
}

// CheckerConfig configures monitor probing
type CheckerConfig struct {
	Concurrency   int     `yaml:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	UserAgent     string  `yaml:"user_agent"`
}

// CachingConfig represents caching configuration
type CachingConfig struct {
	DashboardTTL    time.Duration `yaml:"dashboard_ttl"`
	DashboardSize   int           `yaml:"dashboard_size"`
	IdempotencyTTL  time.Duration `yaml:"idempotency_ttl"`
	IdempotencySize int           `yaml:"idempotency_size"`
}

// HistoryConfig bounds the rows read per request
type HistoryConfig struct {
	FetchLimit          int `yaml:"fetch_limit"`
	DashboardFetchLimit int `yaml:"dashboard_fetch_limit"`
	MaxHours            int `yaml:"max_hours"`
}

// TimeseriesConfig configures the in-memory Kubernetes metrics store
type TimeseriesConfig struct {
	MaxWindow          time.Duration `yaml:"max_window"`
	PointsPerSeries    int           `yaml:"points_per_series"`
	MaxSeries          int           `yaml:"max_series"`
	MaxPointsPerSeries int           `yaml:"max_points_per_series"`
}

// WebSocketConfig bounds live stream connections
type WebSocketConfig struct {
	MaxConnections int `yaml:"max_connections"`
	MaxRoomSize    int `yaml:"max_room_size"`
}

// JobsConfig represents scheduled job intervals
type JobsConfig struct {
	CheckInterval   time.Duration `yaml:"check_interval"`
	WarmInterval    time.Duration `yaml:"warm_interval"`
	CollectInterval time.Duration `yaml:"collect_interval"`
	PruneInterval   time.Duration `yaml:"prune_interval"`
}

// Load loads the configuration from environment variables and defaults
func Load() (*Config, error) {
	return loadWithDefaults("")
}

// LoadFromFile loads configuration from a YAML file, with environment variable overrides
func LoadFromFile(configPath string) (*Config, error) {
	return loadWithDefaults(configPath)
}

// loadWithDefaults layers defaults, the optional YAML file and the environment,
// in that order. A .env file in the working directory is read into the
// environment first without overriding variables that are already set.
func loadWithDefaults(configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if configPath != "" {
		if err := loadFromYAMLFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	}

	applyEnv(cfg)

	// Override port if PORT env var is set
	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Addr = "0.0.0.0:" + port
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "0.0.0.0:8080",
			RequestTimeout:    60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			ETagMaxAgeSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:kuptime.db?_pragma=busy_timeout(5000)",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ClickHouse: ClickHouseConfig{
			Enabled:       false,
			DSN:           "clickhouse://localhost:9000/default",
			RetentionDays: 30,
		},
		Kubernetes: KubernetesConfig{
			Enabled: false,
			Mode:    "kubeconfig",
			QPS:     50,
			Burst:   100,
		},
		Cluster: ClusterConfig{
			Role: "leader",
		},
		Checker: CheckerConfig{
			Concurrency:   10,
			RatePerSecond: 20,
			Burst:         10,
			UserAgent:     "",
		},
		Caching: CachingConfig{
			DashboardTTL:    60 * time.Second,
			DashboardSize:   4096,
			IdempotencyTTL:  10 * time.Minute,
			IdempotencySize: 1024,
		},
		History: HistoryConfig{
			FetchLimit:          10000,
			DashboardFetchLimit: 0,
			MaxHours:            24 * 90,
		},
		Timeseries: TimeseriesConfig{
			MaxWindow:          24 * time.Hour,
			PointsPerSeries:    20000,
			MaxSeries:          10000,
			MaxPointsPerSeries: 20000,
		},
		WebSocket: WebSocketConfig{
			MaxConnections: 1000,
			MaxRoomSize:    100,
		},
		Jobs: JobsConfig{
			CheckInterval:   10 * time.Second,
			WarmInterval:    time.Minute,
			CollectInterval: 30 * time.Second,
			PruneInterval:   10 * time.Minute,
		},
	}
}

// applyEnv overrides cfg with every KUP_ variable that is set.
func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("KUP_SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.RequestTimeout = getEnvDuration("KUP_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("KUP_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.ETagMaxAgeSeconds = getEnvInt("KUP_ETAG_MAX_AGE_SECONDS", cfg.Server.ETagMaxAgeSeconds)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Level = getEnv("KUP_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("KUP_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.FilePath = getEnv("KUP_LOG_FILE", cfg.Logging.FilePath)

	cfg.Database.Driver = getEnv("KUP_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("KUP_DB_DSN", cfg.Database.DSN)
	cfg.Database.MaxOpenConns = getEnvInt("KUP_DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("KUP_DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("KUP_DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.ClickHouse.Enabled = getEnvBool("KUP_CLICKHOUSE_ENABLED", cfg.ClickHouse.Enabled)
	cfg.ClickHouse.DSN = getEnv("KUP_CLICKHOUSE_DSN", cfg.ClickHouse.DSN)
	cfg.ClickHouse.RetentionDays = getEnvInt("KUP_CLICKHOUSE_RETENTION_DAYS", cfg.ClickHouse.RetentionDays)

	cfg.Kubernetes.Enabled = getEnvBool("KUP_KUBE_ENABLED", cfg.Kubernetes.Enabled)
	cfg.Kubernetes.Mode = getEnv("KUP_KUBE_MODE", cfg.Kubernetes.Mode)
	cfg.Kubernetes.KubeconfigPath = getEnv("KUBECONFIG", cfg.Kubernetes.KubeconfigPath)
	cfg.Kubernetes.QPS = float32(getEnvFloat("KUP_KUBE_QPS", float64(cfg.Kubernetes.QPS)))
	cfg.Kubernetes.Burst = getEnvInt("KUP_KUBE_BURST", cfg.Kubernetes.Burst)

	cfg.Cluster.Role = getEnv("KUP_NODE_ROLE", cfg.Cluster.Role)

	cfg.Checker.Concurrency = getEnvInt("KUP_CHECKER_CONCURRENCY", cfg.Checker.Concurrency)
	cfg.Checker.RatePerSecond = getEnvFloat("KUP_CHECKER_RATE", cfg.Checker.RatePerSecond)
	cfg.Checker.Burst = getEnvInt("KUP_CHECKER_BURST", cfg.Checker.Burst)
	cfg.Checker.UserAgent = getEnv("KUP_CHECKER_USER_AGENT", cfg.Checker.UserAgent)

	cfg.Caching.DashboardTTL = getEnvDuration("KUP_DASHBOARD_TTL", cfg.Caching.DashboardTTL)
	cfg.Caching.DashboardSize = getEnvInt("KUP_DASHBOARD_CACHE_SIZE", cfg.Caching.DashboardSize)
	cfg.Caching.IdempotencyTTL = getEnvDuration("KUP_IDEMPOTENCY_TTL", cfg.Caching.IdempotencyTTL)
	cfg.Caching.IdempotencySize = getEnvInt("KUP_IDEMPOTENCY_CACHE_SIZE", cfg.Caching.IdempotencySize)

	cfg.History.FetchLimit = getEnvInt("KUP_HISTORY_FETCH_LIMIT", cfg.History.FetchLimit)
	cfg.History.DashboardFetchLimit = getEnvInt("KUP_DASHBOARD_FETCH_LIMIT", cfg.History.DashboardFetchLimit)
	cfg.History.MaxHours = getEnvInt("KUP_HISTORY_MAX_HOURS", cfg.History.MaxHours)

	cfg.Timeseries.MaxWindow = getEnvDuration("KUP_TIMESERIES_MAX_WINDOW", cfg.Timeseries.MaxWindow)
	cfg.Timeseries.MaxSeries = getEnvInt("KUP_TIMESERIES_MAX_SERIES", cfg.Timeseries.MaxSeries)

	cfg.WebSocket.MaxConnections = getEnvInt("KUP_WS_MAX_CONNECTIONS", cfg.WebSocket.MaxConnections)
	cfg.WebSocket.MaxRoomSize = getEnvInt("KUP_WS_MAX_ROOM_SIZE", cfg.WebSocket.MaxRoomSize)

	cfg.Jobs.CheckInterval = getEnvDuration("KUP_JOBS_CHECK_INTERVAL", cfg.Jobs.CheckInterval)
	cfg.Jobs.WarmInterval = getEnvDuration("KUP_JOBS_WARM_INTERVAL", cfg.Jobs.WarmInterval)
	cfg.Jobs.CollectInterval = getEnvDuration("KUP_JOBS_COLLECT_INTERVAL", cfg.Jobs.CollectInterval)
	cfg.Jobs.PruneInterval = getEnvDuration("KUP_JOBS_PRUNE_INTERVAL", cfg.Jobs.PruneInterval)
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadFromYAMLFile decodes the file over cfg; keys absent from the file keep their current value
func loadFromYAMLFile(configPath string, cfg *Config) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database driver must be 'postgres' or 'sqlite'")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	if c.ClickHouse.Enabled {
		if c.ClickHouse.DSN == "" {
			return fmt.Errorf("ClickHouse DSN is required when ClickHouse is enabled")
		}
		if c.ClickHouse.RetentionDays < 1 {
			return fmt.Errorf("ClickHouse retention must be at least one day")
		}
	}

	if c.Kubernetes.Mode != "incluster" && c.Kubernetes.Mode != "kubeconfig" {
		return fmt.Errorf("kubernetes mode must be 'incluster' or 'kubeconfig'")
	}

	if c.Cluster.Role != "" && c.Cluster.Role != "leader" && c.Cluster.Role != "follower" {
		return fmt.Errorf("cluster role must be 'leader' or 'follower'")
	}

	if c.Checker.Concurrency < 1 {
		return fmt.Errorf("checker concurrency must be at least 1")
	}
	if c.Checker.RatePerSecond <= 0 {
		return fmt.Errorf("checker rate must be positive")
	}

	if c.Caching.DashboardSize < 1 {
		return fmt.Errorf("dashboard cache size must be at least 1")
	}
	if c.History.FetchLimit < 0 || c.History.DashboardFetchLimit < 0 {
		return fmt.Errorf("fetch limits cannot be negative")
	}

	for name, d := range map[string]time.Duration{
		"check":   c.Jobs.CheckInterval,
		"warm":    c.Jobs.WarmInterval,
		"collect": c.Jobs.CollectInterval,
		"prune":   c.Jobs.PruneInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s job interval must be positive", name)
		}
	}

	return nil
}
