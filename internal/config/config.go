package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	NewRelic NewRelicConfig
	Auth     AuthConfig
	Dispatch DispatchConfig
	Realtime RealtimeConfig
	Payments PaymentsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis configuration. An empty Addr runs the service
// single-instance with in-memory location slots.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig holds the broker the lifecycle events are mirrored to.
// An empty URL disables mirroring.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// DispatchConfig holds the ride, location and ledger rules.
type DispatchConfig struct {
	CommissionRate     decimal.Decimal
	DefaultCODLimit    int64
	StalenessThreshold time.Duration
	FutureSkew         time.Duration
	LocationTTL        time.Duration
	RideCacheTTL       time.Duration
	OTPMaxAttempts     int
	PayoutLockTTL      time.Duration
}

// RealtimeConfig holds WebSocket timing.
type RealtimeConfig struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	SendBuffer int
}

// PaymentsConfig holds collaborator credentials.
type PaymentsConfig struct {
	GatewaySecret string
	WebhookSecret string
}

// Load reads configuration from a .env file and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	// A missing .env is fine; the environment is enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "dispatch")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "dispatch.rides")

	v.SetDefault("NEW_RELIC_APP_NAME", "dispatch-service")
	v.SetDefault("NEW_RELIC_LICENSE_KEY", "")
	v.SetDefault("NEW_RELIC_ENABLED", false)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("COMMISSION_RATE", "0.20")
	v.SetDefault("DEFAULT_COD_LIMIT", 500)
	v.SetDefault("LOCATION_STALENESS_THRESHOLD", "30s")
	v.SetDefault("LOCATION_FUTURE_SKEW", "5s")
	v.SetDefault("LOCATION_TTL", "10m")
	v.SetDefault("RIDE_CACHE_TTL", "10s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("PAYOUT_LOCK_TTL", "30s")

	v.SetDefault("WS_WRITE_WAIT", "10s")
	v.SetDefault("WS_PONG_WAIT", "60s")
	v.SetDefault("WS_PING_PERIOD", "54s")
	v.SetDefault("WS_SEND_BUFFER", 64)

	v.SetDefault("PAYMENT_GATEWAY_SECRET", "")
	v.SetDefault("PAYOUT_WEBHOOK_SECRET", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	rate, err := decimal.NewFromString(v.GetString("COMMISSION_RATE"))
	if err != nil {
		return nil, fmt.Errorf("COMMISSION_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("COMMISSION_RATE must be within [0, 1], got %s", rate)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("NEW_RELIC_APP_NAME"),
			LicenseKey: v.GetString("NEW_RELIC_LICENSE_KEY"),
			Enabled:    v.GetBool("NEW_RELIC_ENABLED"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		Dispatch: DispatchConfig{
			CommissionRate:     rate,
			DefaultCODLimit:    v.GetInt64("DEFAULT_COD_LIMIT"),
			StalenessThreshold: v.GetDuration("LOCATION_STALENESS_THRESHOLD"),
			FutureSkew:         v.GetDuration("LOCATION_FUTURE_SKEW"),
			LocationTTL:        v.GetDuration("LOCATION_TTL"),
			RideCacheTTL:       v.GetDuration("RIDE_CACHE_TTL"),
			OTPMaxAttempts:     v.GetInt("OTP_MAX_ATTEMPTS"),
			PayoutLockTTL:      v.GetDuration("PAYOUT_LOCK_TTL"),
		},
		Realtime: RealtimeConfig{
			WriteWait:  v.GetDuration("WS_WRITE_WAIT"),
			PongWait:   v.GetDuration("WS_PONG_WAIT"),
			PingPeriod: v.GetDuration("WS_PING_PERIOD"),
			SendBuffer: v.GetInt("WS_SEND_BUFFER"),
		},
		Payments: PaymentsConfig{
			GatewaySecret: v.GetString("PAYMENT_GATEWAY_SECRET"),
			WebhookSecret: v.GetString("PAYOUT_WEBHOOK_SECRET"),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
