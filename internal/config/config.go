package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	BrandName        string        `mapstructure:"BRAND_NAME"`
	ExtraApplication string        `mapstructure:"EXTRA_APPLICATION"`
	SchemaFile       string        `mapstructure:"SCHEMA_FILE"`
	TemplateDir      string        `mapstructure:"TEMPLATE_DIR"`
	SessionSecret    string        `mapstructure:"SESSION_SECRET"`
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	LoginMaxAttempts int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	EventWebhookURL  string        `mapstructure:"EVENT_WEBHOOK_URL"`
	EventSecret      string        `mapstructure:"EVENT_WEBHOOK_SECRET"`
	EventChannel     string        `mapstructure:"EVENT_CHANNEL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	TLSEnabled       bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile      string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile       string        `mapstructure:"TLS_KEY_FILE"`
}

// devSessionSecret signs session cookies when ENV=development and no secret
// has been configured.
const devSessionSecret = "development-only-session-secret-do-not-deploy"

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"BRAND_NAME", "EXTRA_APPLICATION", "SCHEMA_FILE", "TEMPLATE_DIR",
	"SESSION_SECRET", "SESSION_TTL", "LOGIN_MAX_ATTEMPTS",
	"EVENT_WEBHOOK_URL", "EVENT_WEBHOOK_SECRET", "EVENT_CHANNEL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("BRAND_NAME", "Patient Tracker")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("EVENT_CHANNEL", "tracker.events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SessionSecret == "" && cfg.IsDev() {
		cfg.SessionSecret = devSessionSecret
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a real SESSION_SECRET of at least 32 bytes must be supplied, since it signs
// every session cookie.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.SessionSecret == "" || c.SessionSecret == devSessionSecret {
			return fmt.Errorf("SESSION_SECRET must be set when ENV=%q", c.Env)
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes, got %d", len(c.SessionSecret))
		}
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive, got %d", c.LoginMaxAttempts)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}

// PublicSettings is the subset of configuration exposed to templates.
func (c *Config) PublicSettings() map[string]interface{} {
	return map[string]interface{}{
		"brand_name":        c.BrandName,
		"env":               c.Env,
		"extra_application": c.ExtraApplication,
		"session_ttl":       c.SessionTTL.String(),
	}
}
