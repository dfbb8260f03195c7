package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`

	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	OTPRateLimitPerMinute int           `mapstructure:"OTP_RATE_LIMIT_PER_MINUTE"`
	OTPPerPhonePerMinute  int           `mapstructure:"OTP_PER_PHONE_PER_MINUTE"`
	OTPStore              string        `mapstructure:"OTP_STORE"`
	OTPTTL                time.Duration `mapstructure:"OTP_TTL"`
	RequestTimeout        time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit             string        `mapstructure:"BODY_LIMIT"`
	ClinicTimezone        string        `mapstructure:"CLINIC_TIMEZONE"`

	SMSEnabled                bool          `mapstructure:"SMS_ENABLED"`
	SMSGatewayURL             string        `mapstructure:"SMS_GATEWAY_URL"`
	SMSAPIKey                 string        `mapstructure:"SMS_API_KEY"`
	SMSSenderID               string        `mapstructure:"SMS_SENDER_ID"`
	SMSOTPTemplateID          string        `mapstructure:"SMS_OTP_TEMPLATE_ID"`
	SMSConfirmationTemplateID string        `mapstructure:"SMS_CONFIRMATION_TEMPLATE_ID"`
	SMSTimeout                time.Duration `mapstructure:"SMS_TIMEOUT"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`

	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
	MigrationsDir  string `mapstructure:"MIGRATIONS_DIR"`
}

var defaults = map[string]interface{}{
	"PORT":                      "8000",
	"ENV":                       "development",
	"LOG_LEVEL":                 "info",
	"DB_MAX_CONNS":              20,
	"DB_MIN_CONNS":              2,
	"CORS_ORIGINS":              "http://localhost:3000",
	"AUTH_ISSUER":               "booking-server",
	"RATE_LIMIT_RPS":            20,
	"RATE_LIMIT_BURST":          40,
	"OTP_RATE_LIMIT_PER_MINUTE": 5,
	"OTP_PER_PHONE_PER_MINUTE":  3,
	"OTP_STORE":                 "postgres",
	"OTP_TTL":                   "10m",
	"REQUEST_TIMEOUT":           "30s",
	"BODY_LIMIT":                "64K",
	"CLINIC_TIMEZONE":           "Asia/Kolkata",
	"SMS_ENABLED":               false,
	"SMS_GATEWAY_URL":           "https://www.fast2sms.com/dev/bulkV2",
	"SMS_TIMEOUT":               "10s",
	"SMTP_PORT":                 587,
	"METRICS_ENABLED":           true,
	"MIGRATIONS_DIR":            "migrations",
}

var envKeys = []string{
	"DATABASE_URL", "REDIS_URL", "AUTH_SIGNING_KEY",
	"SMS_API_KEY", "SMS_SENDER_ID", "SMS_OTP_TEMPLATE_ID", "SMS_CONFIRMATION_TEMPLATE_ID",
	"SMTP_HOST", "SMTP_USER", "SMTP_PASS", "SMTP_FROM",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
		v.BindEnv(k)
	}
	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location loads the clinic time zone used for dates and slot times.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// staff routes need a signing key and patients need a real SMS gateway.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.OTPStore {
	case "postgres", "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when OTP_STORE is \"redis\"")
		}
	default:
		return fmt.Errorf("OTP_STORE must be \"postgres\", \"redis\" or \"memory\", got %q", c.OTPStore)
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive, got %s", c.OTPTTL)
	}

	if !c.IsDev() {
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development (ENV=%q)", c.Env)
		}
		if c.OTPStore == "memory" {
			return fmt.Errorf("OTP_STORE=memory is only allowed in development")
		}
	}
	if c.IsProduction() && !c.SMSEnabled {
		return fmt.Errorf("SMS_ENABLED must be true in production")
	}

	if c.SMSEnabled {
		if c.SMSAPIKey == "" {
			return fmt.Errorf("SMS_API_KEY is required when SMS_ENABLED is true")
		}
		if c.SMSOTPTemplateID == "" || c.SMSConfirmationTemplateID == "" {
			return fmt.Errorf("SMS_OTP_TEMPLATE_ID and SMS_CONFIRMATION_TEMPLATE_ID are required when SMS_ENABLED is true")
		}
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}
