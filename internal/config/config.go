package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration, matching config/config.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Shopify  ShopifyConfig  `mapstructure:"shopify"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug/release/test
}

// PostgresConfig holds the database connection settings.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ShopifyConfig holds the Admin API settings used for webhook registration.
type ShopifyConfig struct {
	APIVersion string `mapstructure:"api_version"` // e.g. 2024-01
	Timeout    int    `mapstructure:"timeout"`     // request timeout in seconds
	RetryCount int    `mapstructure:"retry_count"`
	Proxy      string `mapstructure:"proxy"`
}

// PubSubConfig holds the managed queue settings. An empty Project disables the
// ingestion engine: webhooks are never registered and no consumer is started.
type PubSubConfig struct {
	Project            string `mapstructure:"project"`
	SubscriptionPrefix string `mapstructure:"subscription_prefix"`
}

// Enabled reports whether a managed queue is configured.
func (p *PubSubConfig) Enabled() bool { return p.Project != "" }

// LoadConfig reads config/config.yaml, with sensitive values overridden from
// .env / environment (never committed).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// overrideFromEnv applies environment overrides (priority env > yaml).
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("PUBSUB_PROJECT"); v != "" {
		cfg.PubSub.Project = v
	}
	if v := os.Getenv("PUBSUB_SUBSCRIPTION_PREFIX"); v != "" {
		cfg.PubSub.SubscriptionPrefix = v
	}
	if v := os.Getenv("SHOPIFY_API_VERSION"); v != "" {
		cfg.Shopify.APIVersion = v
	}
	if v := os.Getenv("SHOPIFY_PROXY"); v != "" {
		cfg.Shopify.Proxy = v
	}
}
