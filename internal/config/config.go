// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for the key and user stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the address of the session/registry Redis (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis AUTH password; empty when Redis runs without auth.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database index.
	RedisDB int `mapstructure:"REDIS_DB"`
	// MasterKey is the process-wide secret that encrypts signing keys at rest.
	// Losing or changing it makes every persisted private key unreadable.
	MasterKey string `mapstructure:"MASTER_KEY"`
	// JWTIssuer is the iss claim set on every issued token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim set on every issued token.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTConfirmTTL is the email-confirmation token lifetime (e.g. "24h").
	JWTConfirmTTL string `mapstructure:"JWT_CONFIRM_TTL"`
	// JWTResetTTL is the password-reset token lifetime (e.g. "30m").
	JWTResetTTL string `mapstructure:"JWT_RESET_TTL"`
	// BcryptCost is the bcrypt cost factor (4 to 31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// KeyRotationCron is the rotation schedule in cron syntax; default monthly.
	KeyRotationCron string `mapstructure:"KEY_ROTATION_CRON"`
	// KeyRetentionAccessDays is how long rotated access-signing keys are kept.
	// Must exceed the access token lifetime or verification of older tokens breaks.
	KeyRetentionAccessDays int `mapstructure:"KEY_RETENTION_ACCESS_DAYS"`
	// KeyRetentionRefreshDays is how long rotated refresh-signing keys are kept.
	KeyRetentionRefreshDays int `mapstructure:"KEY_RETENTION_REFRESH_DAYS"`
	// KeyRetentionConfirmDays is how long rotated confirmation-signing keys are kept.
	KeyRetentionConfirmDays int `mapstructure:"KEY_RETENTION_CONFIRM_DAYS"`
	// KeyRetentionResetDays is how long rotated reset-signing keys are kept.
	KeyRetentionResetDays int `mapstructure:"KEY_RETENTION_RESET_DAYS"`

	// MailKafkaBrokers is a comma-separated list of Kafka broker addresses for
	// the auth email queue; empty disables the producer.
	MailKafkaBrokers string `mapstructure:"MAIL_KAFKA_BROKERS"`
	// MailKafkaTopic is the Kafka topic auth email messages are published to.
	MailKafkaTopic string `mapstructure:"MAIL_KAFKA_TOPIC"`
	// VerifyEmailURL is the frontend URL the confirmation token is appended to.
	VerifyEmailURL string `mapstructure:"VERIFY_EMAIL_URL"`
	// ResetPasswordURL is the frontend URL the reset token is appended to.
	ResetPasswordURL string `mapstructure:"RESET_PASSWORD_URL"`

	// RefreshCookieName is the cookie that carries the refresh token.
	RefreshCookieName string `mapstructure:"REFRESH_COOKIE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MASTER_KEY", "")
	v.SetDefault("JWT_ISSUER", "authplane")
	v.SetDefault("JWT_AUDIENCE", "authplane-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("JWT_CONFIRM_TTL", "24h")
	v.SetDefault("JWT_RESET_TTL", "30m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("KEY_ROTATION_CRON", "0 0 1 * *") // monthly
	v.SetDefault("KEY_RETENTION_ACCESS_DAYS", 31)
	v.SetDefault("KEY_RETENTION_REFRESH_DAYS", 61)
	v.SetDefault("KEY_RETENTION_CONFIRM_DAYS", 31)
	v.SetDefault("KEY_RETENTION_RESET_DAYS", 31)
	v.SetDefault("MAIL_KAFKA_BROKERS", "")
	v.SetDefault("MAIL_KAFKA_TOPIC", "authplane-email")
	v.SetDefault("VERIFY_EMAIL_URL", "http://localhost:3000/auth/verify-email")
	v.SetDefault("RESET_PASSWORD_URL", "http://localhost:3000/auth/reset-password")
	v.SetDefault("REFRESH_COOKIE_NAME", "refreshToken")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.MasterKey == "" {
		return nil, errors.New("config: MASTER_KEY must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	for _, ret := range []int{
		cfg.KeyRetentionAccessDays,
		cfg.KeyRetentionRefreshDays,
		cfg.KeyRetentionConfirmDays,
		cfg.KeyRetentionResetDays,
	} {
		if ret <= 0 {
			return nil, errors.New("config: key retention days must be positive")
		}
	}

	// Retention shorter than the token lifetime would purge keys with live
	// tokens still pointing at them.
	if time.Duration(cfg.KeyRetentionRefreshDays)*24*time.Hour <= cfg.RefreshTTL() {
		return nil, errors.New("config: KEY_RETENTION_REFRESH_DAYS must exceed JWT_REFRESH_TTL")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// ConfirmTTL parses JWTConfirmTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) ConfirmTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTConfirmTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// ResetTTL parses JWTResetTTL as a time.Duration. Returns 30m if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTResetTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// MailKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the email producer is enabled (non-empty list) and to create it.
func (c *Config) MailKafkaBrokersList() []string {
	if c == nil || c.MailKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.MailKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
