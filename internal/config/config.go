package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
	OpsAddr  string `mapstructure:"ops_addr"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Governor  GovernorConfig  `mapstructure:"governor"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// DatabaseConfig configures the application pool and the separate
// maintenance pool used for audited policy bypass.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	AdminURL string `mapstructure:"admin_url"`
	MaxConns int    `mapstructure:"max_conns"`
}

type GovernorConfig struct {
	MaxUnits int `mapstructure:"max_units"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	Sliding       bool          `mapstructure:"sliding"`
	TouchInterval time.Duration `mapstructure:"touch_interval"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
	PurgeGrace    time.Duration `mapstructure:"purge_grace"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
}

// AuthConfig describes how identity provider tokens are verified.
type AuthConfig struct {
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	Secret        string        `mapstructure:"secret"`
	PublicKeyFile string        `mapstructure:"public_key_file"`
	Leeway        time.Duration `mapstructure:"leeway"`
}

type RateLimitConfig struct {
	LoginPerMinute int `mapstructure:"login_per_minute"`
	LoginBurst     int `mapstructure:"login_burst"`
}

type WorkerConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PublicKeyPEM reads the configured identity provider public key, if any.
func (c *AuthConfig) PublicKeyPEM() ([]byte, error) {
	if c.PublicKeyFile == "" {
		return nil, nil
	}
	return os.ReadFile(c.PublicKeyFile)
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing precedence. Environment variables use the
// TIS_ prefix with dots replaced by underscores, e.g. TIS_DATABASE_URL.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if config.Governor.MaxUnits <= 0 {
		config.Governor.MaxUnits = config.Database.MaxConns
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":50051")
	v.SetDefault("ops_addr", ":8081")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.admin_url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("governor.max_units", 0)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.op_timeout", 2*time.Second)

	// Session defaults
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.idle_timeout", 0)
	v.SetDefault("session.sliding", false)
	v.SetDefault("session.touch_interval", time.Minute)
	v.SetDefault("session.purge_interval", time.Hour)
	v.SetDefault("session.purge_grace", 24*time.Hour)
	v.SetDefault("session.cookie_name", "session_id")
	v.SetDefault("session.cookie_secure", true)

	// Identity provider defaults
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.public_key_file", "")
	v.SetDefault("auth.leeway", 30*time.Second)

	v.SetDefault("rate_limit.login_per_minute", 10)
	v.SetDefault("rate_limit.login_burst", 5)

	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.queue_size", 256)
	v.SetDefault("worker.task_timeout", 30*time.Second)
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be positive")
	}
	if c.Governor.MaxUnits > c.Database.MaxConns {
		return fmt.Errorf("governor.max_units (%d) cannot exceed database.max_conns (%d)",
			c.Governor.MaxUnits, c.Database.MaxConns)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("session.idle_timeout cannot be negative")
	}
	if c.Redis.OpTimeout <= 0 || c.Redis.OpTimeout >= 10*time.Second {
		return errors.New("redis.op_timeout must be between 0 and 10s")
	}
	if c.Auth.Secret != "" && c.Auth.PublicKeyFile != "" {
		return errors.New("auth.secret and auth.public_key_file are mutually exclusive")
	}
	if c.IsProduction() {
		if c.Auth.Secret == "" && c.Auth.PublicKeyFile == "" {
			return errors.New("auth.secret or auth.public_key_file is required in production")
		}
		if !c.Session.CookieSecure {
			return errors.New("session.cookie_secure must be enabled in production")
		}
	}
	return nil
}
