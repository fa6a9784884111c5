package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Dispatch   DispatchConfig
	Generation GenerationConfig
	S3         S3Config
}

type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
	FrontendURL string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DispatchConfig holds everything the two trigger paths need. Secrets are read
// once here at startup and never compared outside constant-time helpers.
type DispatchConfig struct {
	TriggerToken           string
	WebhookSecret          string
	BatchSize              int
	MaxConcurrency         int
	ClaimLease             time.Duration
	GenerationTimeout      time.Duration
	RetryBaseDelay         time.Duration
	RetryMaxDelay          time.Duration
	MaxConsecutiveFailures int
}

type GenerationConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config

	// App
	cfg.App.Name = viper.GetString("app.name")
	cfg.App.Environment = viper.GetString("app.environment")
	cfg.App.Debug = viper.GetBool("app.debug")
	cfg.App.FrontendURL = viper.GetString("app.frontend_url")

	// Server
	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Server.ReadTimeout = viper.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = viper.GetDuration("server.idle_timeout")

	// Database
	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Name = viper.GetString("database.name")
	cfg.Database.SSLMode = viper.GetString("database.ssl_mode")
	cfg.Database.MaxOpenConns = viper.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = viper.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = viper.GetDuration("database.conn_max_lifetime")

	// Redis
	cfg.Redis.Host = viper.GetString("redis.host")
	cfg.Redis.Port = viper.GetInt("redis.port")
	cfg.Redis.Password = viper.GetString("redis.password")
	cfg.Redis.DB = viper.GetInt("redis.db")

	// Dispatch
	cfg.Dispatch.TriggerToken = viper.GetString("dispatch.trigger_token")
	cfg.Dispatch.WebhookSecret = viper.GetString("dispatch.webhook_secret")
	cfg.Dispatch.BatchSize = viper.GetInt("dispatch.batch_size")
	cfg.Dispatch.MaxConcurrency = viper.GetInt("dispatch.max_concurrency")
	cfg.Dispatch.ClaimLease = viper.GetDuration("dispatch.claim_lease")
	cfg.Dispatch.GenerationTimeout = viper.GetDuration("dispatch.generation_timeout")
	cfg.Dispatch.RetryBaseDelay = viper.GetDuration("dispatch.retry_base_delay")
	cfg.Dispatch.RetryMaxDelay = viper.GetDuration("dispatch.retry_max_delay")
	cfg.Dispatch.MaxConsecutiveFailures = viper.GetInt("dispatch.max_consecutive_failures")

	// Generation
	cfg.Generation.BaseURL = viper.GetString("generation.base_url")
	cfg.Generation.APIKey = viper.GetString("generation.api_key")
	cfg.Generation.Timeout = viper.GetDuration("generation.timeout")
	cfg.Generation.MaxRetries = viper.GetInt("generation.max_retries")

	// S3
	cfg.S3.Endpoint = viper.GetString("s3.endpoint")
	cfg.S3.Region = viper.GetString("s3.region")
	cfg.S3.Bucket = viper.GetString("s3.bucket")
	cfg.S3.AccessKeyID = viper.GetString("s3.access_key_id")
	cfg.S3.SecretAccessKey = viper.GetString("s3.secret_access_key")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Dispatch.TriggerToken == "" {
		return fmt.Errorf("dispatch.trigger_token is required")
	}
	if c.Dispatch.WebhookSecret == "" {
		return fmt.Errorf("dispatch.webhook_secret is required")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("app.name", "contentpilot")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "contentpilot")
	viper.SetDefault("database.name", "contentpilot")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("dispatch.batch_size", 100)
	viper.SetDefault("dispatch.max_concurrency", 10)
	viper.SetDefault("dispatch.claim_lease", 15*time.Minute)
	viper.SetDefault("dispatch.generation_timeout", 3*time.Minute)
	viper.SetDefault("dispatch.retry_base_delay", 10*time.Minute)
	viper.SetDefault("dispatch.retry_max_delay", 6*time.Hour)
	viper.SetDefault("dispatch.max_consecutive_failures", 5)

	viper.SetDefault("generation.timeout", 2*time.Minute)
	viper.SetDefault("generation.max_retries", 2)

	viper.SetDefault("s3.region", "us-east-1")
}
