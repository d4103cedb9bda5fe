package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tokenmint/ledger/internal/validator"
)

// RunMode distinguishes local development from a deployed environment.
type RunMode string

const (
	ModeLocal      RunMode = "local"
	ModeProduction RunMode = "production"
)

// LogLevel mirrors zap's level names for configuration purposes.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Configuration is the root configuration object, loaded by NewConfig and
// validated with go-playground/validator before the server starts.
type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Sentry     SentryConfig     `validate:"omitempty"`
	PG         PGConfig         `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
}

type DeploymentConfig struct {
	Mode RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address" validate:"required"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" default:"30"`
}

// AuthConfig secures the purchase/cancel/balance/cron-trigger endpoints
// (spec.md §6 does not fix an auth scheme; see DESIGN.md's Open Question
// decision) with a single shared bearer token.
type AuthConfig struct {
	BearerToken string `mapstructure:"bearer_token" validate:"required"`
}

type LoggingConfig struct {
	Level LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"required"`
	User                   string `mapstructure:"user" validate:"required"`
	Password               string `mapstructure:"password" validate:"required"`
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode" validate:"required"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" default:"1.0"`
}

// PGConfig holds the credentials for the external payment gateway
// (spec.md §6's PG_SECRET_KEY / PG_WEBHOOK_SECRET).
type PGConfig struct {
	SecretKey     string `mapstructure:"secret_key" validate:"required"`
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required"`
	SiteDomain    string `mapstructure:"site_domain" validate:"required"`
}

// BillingConfig holds the ledger's domain constants.
type BillingConfig struct {
	ReferralTokenAmount  int64 `mapstructure:"referral_token_amount" default:"0"`
	PurchaseExpiryDays   int   `mapstructure:"purchase_expiry_days" default:"60"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	// Step 1: Load `.env` if it exists
	_ = godotenv.Load()

	// Step 2: Initialize Viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("./config")

	// Step 3: Set up environment variables support
	v.SetEnvPrefix("LEDGER")
	v.AutomaticEnv()

	// Step 4: Environment variable key mapping (e.g., LEDGER_PG_SECRET_KEY)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Viper does not read `default` struct tags; register those defaults here.
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("billing.referral_token_amount", 0)
	v.SetDefault("billing.purchase_expiry_days", 60)

	// Step 5: Read the YAML file, tolerating its absence
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct, %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c Configuration) Validate() error {
	return validator.ValidateRequest(c)
}

// GetDefaultConfig returns a default configuration for local development.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: ModeLocal},
		Logging:    LoggingConfig{Level: LogLevelDebug},
		Billing:    BillingConfig{PurchaseExpiryDays: 60},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
