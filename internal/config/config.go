// Package config loads and validates engine configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	Detector DetectorConfig `koanf:"detector"`
	Agents   AgentsConfig   `koanf:"agents"`
	Alerting AlertingConfig `koanf:"alerting"`
	Monitor  MonitorConfig  `koanf:"monitor"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,nefield=Port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig contains API auth settings.
type AuthConfig struct {
	// JWTSecret signs bearer tokens accepted on mutating routes.
	// Empty disables auth (dev only).
	JWTSecret string `koanf:"jwt_secret"`
}

// DatabaseConfig contains history-store settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=0"`
}

// DetectorConfig contains probe fan-out settings.
type DetectorConfig struct {
	ProbeTimeout    time.Duration `koanf:"probe_timeout" validate:"required,min=1ms"`
	AcceptThreshold float64       `koanf:"accept_threshold" validate:"gte=0,lte=1"`
}

// AgentsConfig contains responder-role settings.
type AgentsConfig struct {
	// DefaultSLA bounds a role's activation latency unless overridden
	// per kind in SLAOverrides (keyed by kind name).
	DefaultSLA        time.Duration            `koanf:"default_sla" validate:"required,min=1ms"`
	SLAOverrides      map[string]time.Duration `koanf:"sla_overrides"`
	OverflowPolicy    string                   `koanf:"overflow_policy" validate:"oneof=queue reject"`
	QueueDepth        int                      `koanf:"queue_depth" validate:"min=1"`
	HardTimeoutFactor int                      `koanf:"hard_timeout_factor" validate:"min=1"`
}

// AlertingConfig contains alert distribution settings.
type AlertingConfig struct {
	// Escalation timers by band. High severities get the shorter timer.
	EscalateAfter         time.Duration `koanf:"escalate_after" validate:"required,min=1ms"`
	EscalateAfterCritical time.Duration `koanf:"escalate_after_critical" validate:"required,min=1ms"`
	Email                 EmailConfig   `koanf:"email"`
	SMS                   SMSConfig     `koanf:"sms"`
	Pager                 PagerConfig   `koanf:"pager"`
	Webhook               WebhookConfig `koanf:"webhook"`
}

// EmailConfig configures the SMTP channel sender.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port" validate:"min=0,max=65535"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
	Domain       string `koanf:"domain"`
}

// SMSConfig configures the SMS gateway channel sender.
type SMSConfig struct {
	Enabled    bool   `koanf:"enabled"`
	GatewayURL string `koanf:"gateway_url"`
	APIKey     string `koanf:"api_key"`
}

// PagerConfig configures the paging channel sender.
type PagerConfig struct {
	Enabled    bool   `koanf:"enabled"`
	EventsURL  string `koanf:"events_url"`
	RoutingKey string `koanf:"routing_key"`
}

// WebhookConfig configures the webhook channel sender.
type WebhookConfig struct {
	URL       string  `koanf:"url"`
	Token     string  `koanf:"token"`
	RateLimit float64 `koanf:"rate_limit" validate:"min=0"`
	Burst     int     `koanf:"burst" validate:"min=0"`
}

// MonitorConfig contains monitoring-loop settings.
type MonitorConfig struct {
	MinInterval     time.Duration `koanf:"min_interval" validate:"required,min=1ms"`
	MaxInterval     time.Duration `koanf:"max_interval" validate:"required,min=1ms,gtefield=MinInterval"`
	TrailingWindow  time.Duration `koanf:"trailing_window" validate:"required,min=1s"`
	WindowCapacity  int           `koanf:"window_capacity" validate:"min=1"`
	RecentIncidents int           `koanf:"recent_incidents" validate:"min=1"`
}

// Default returns the built-in configuration. Numeric thresholds here
// are tunable defaults, not protocol constants.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Detector: DetectorConfig{
			ProbeTimeout:    5 * time.Second,
			AcceptThreshold: 0.8,
		},
		Agents: AgentsConfig{
			DefaultSLA:        2 * time.Second,
			OverflowPolicy:    "queue",
			QueueDepth:        16,
			HardTimeoutFactor: 10,
		},
		Alerting: AlertingConfig{
			EscalateAfter:         900 * time.Second,
			EscalateAfterCritical: 300 * time.Second,
		},
		Monitor: MonitorConfig{
			MinInterval:     5 * time.Second,
			MaxInterval:     60 * time.Second,
			TrailingWindow:  15 * time.Minute,
			WindowCapacity:  256,
			RecentIncidents: 20,
		},
	}
}

// Load reads configuration from an optional YAML file, then overlays
// RESPONDER_* environment variables, then validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// RESPONDER_SERVER__PORT=8081 -> server.port
	err := k.Load(env.Provider("RESPONDER_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "RESPONDER_")), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	for kind, sla := range c.Agents.SLAOverrides {
		if sla <= 0 {
			return fmt.Errorf("validate config: sla override for %q must be positive", kind)
		}
	}

	if c.Alerting.EscalateAfterCritical > c.Alerting.EscalateAfter {
		return fmt.Errorf("validate config: critical escalation timer %v exceeds base timer %v",
			c.Alerting.EscalateAfterCritical, c.Alerting.EscalateAfter)
	}

	return nil
}
