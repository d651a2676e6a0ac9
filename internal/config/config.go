package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	AdsPlatform   AdsPlatformConfig   `mapstructure:"ads_platform"`
	Optimizer     OptimizerConfig     `mapstructure:"optimizer"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MonitoringConfig controls the evaluation scheduler and issue lifecycle.
type MonitoringConfig struct {
	EvaluationInterval     string  `mapstructure:"evaluation_interval"`
	FetchConcurrency       int     `mapstructure:"fetch_concurrency"`
	FetchTimeout           string  `mapstructure:"fetch_timeout"`
	FetchRetryAttempts     int     `mapstructure:"fetch_retry_attempts"`
	DefaultCooldownMinutes int     `mapstructure:"default_cooldown_minutes"`
	HealthWeights          Weights `mapstructure:"health_weights"`
}

// Weights are the per-severity penalties used for the health score.
type Weights struct {
	Critical int `mapstructure:"critical"`
	High     int `mapstructure:"high"`
	Medium   int `mapstructure:"medium"`
	Low      int `mapstructure:"low"`
}

// AdsPlatformConfig points at the external metric snapshot provider.
type AdsPlatformConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	Timeout       string `mapstructure:"timeout"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
}

// OptimizerConfig points at the external remediation collaborator.
type OptimizerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout string `mapstructure:"timeout"`
}

type NotificationsConfig struct {
	DedupWindow   string        `mapstructure:"dedup_window"`
	QueueSize     int           `mapstructure:"queue_size"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBaseWait string        `mapstructure:"retry_base_wait"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Load reads configuration from configs/config.yaml plus environment overrides
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("ADPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("ads_platform.api_key", "ADS_PLATFORM_API_KEY")
	viper.BindEnv("optimizer.api_key", "OPTIMIZER_API_KEY")
	viper.BindEnv("notifications.webhook.url", "NOTIFICATION_WEBHOOK_URL")

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3001)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("database.path", "./data/adpulse.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("monitoring.evaluation_interval", "5m")
	viper.SetDefault("monitoring.fetch_concurrency", 10)
	viper.SetDefault("monitoring.fetch_timeout", "5s")
	viper.SetDefault("monitoring.fetch_retry_attempts", 3)
	viper.SetDefault("monitoring.default_cooldown_minutes", 60)
	viper.SetDefault("monitoring.health_weights.critical", 10)
	viper.SetDefault("monitoring.health_weights.high", 5)
	viper.SetDefault("monitoring.health_weights.medium", 2)
	viper.SetDefault("monitoring.health_weights.low", 1)

	viper.SetDefault("ads_platform.base_url", "http://localhost:8085")
	viper.SetDefault("ads_platform.timeout", "5s")
	viper.SetDefault("ads_platform.retry_attempts", 3)

	viper.SetDefault("optimizer.base_url", "http://localhost:8086")
	viper.SetDefault("optimizer.timeout", "10s")

	viper.SetDefault("notifications.dedup_window", "15m")
	viper.SetDefault("notifications.queue_size", 256)
	viper.SetDefault("notifications.max_attempts", 3)
	viper.SetDefault("notifications.retry_base_wait", "1s")
	viper.SetDefault("notifications.webhook.enabled", false)
	viper.SetDefault("notifications.webhook.timeout", "5s")

	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)
}

// Duration parses a duration-typed config field, returning fallback on error.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
