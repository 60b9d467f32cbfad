package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Contact   ContactConfig   `yaml:"contact" mapstructure:"contact"`
	Email     EmailConfig     `yaml:"email" mapstructure:"email"`
	CRM       CRMConfig       `yaml:"crm" mapstructure:"crm"`
	Webhook   WebhookConfig   `yaml:"webhook" mapstructure:"webhook"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Admin     AdminConfig     `yaml:"admin" mapstructure:"admin"`
	Capture   CaptureConfig   `yaml:"capture" mapstructure:"capture"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string        `yaml:"key" mapstructure:"key"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MinInterval time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SessionConfig bounds conversation memory.
type SessionConfig struct {
	ContextTurns  int           `yaml:"context_turns" mapstructure:"context_turns"`
	HistoryCap    int           `yaml:"history_cap" mapstructure:"history_cap"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// ContactConfig names the human who follows up on leads.
type ContactConfig struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Email string `yaml:"email" mapstructure:"email"`
	Phone string `yaml:"phone" mapstructure:"phone"`
}

// EmailConfig configures lead notification email.
type EmailConfig struct {
	// Provider is smtp, resend or none.
	Provider string       `yaml:"provider" mapstructure:"provider"`
	From     string       `yaml:"from" mapstructure:"from"`
	To       []string     `yaml:"to" mapstructure:"to"`
	SMTP     SMTPConfig   `yaml:"smtp" mapstructure:"smtp"`
	Resend   ResendConfig `yaml:"resend" mapstructure:"resend"`
}

// SMTPConfig holds SMTP submission settings.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ResendConfig holds Resend API settings.
type ResendConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// CRMConfig selects and configures the CRM channel.
type CRMConfig struct {
	// Provider is hubspot, salesforce or none.
	Provider      string           `yaml:"provider" mapstructure:"provider"`
	DealThreshold int              `yaml:"deal_threshold" mapstructure:"deal_threshold"`
	DealAmount    float64          `yaml:"deal_amount" mapstructure:"deal_amount"`
	DealPipeline  string           `yaml:"deal_pipeline" mapstructure:"deal_pipeline"`
	DealStage     string           `yaml:"deal_stage" mapstructure:"deal_stage"`
	DealCloseDays int              `yaml:"deal_close_days" mapstructure:"deal_close_days"`
	HubSpot       HubSpotConfig    `yaml:"hubspot" mapstructure:"hubspot"`
	Salesforce    SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// HubSpotConfig holds HubSpot private app settings.
type HubSpotConfig struct {
	Token   string  `yaml:"token" mapstructure:"token"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// SalesforceConfig holds Salesforce auth settings. KeyPath selects the JWT
// bearer flow; otherwise username, password and security token are used.
type SalesforceConfig struct {
	Domain         string  `yaml:"domain" mapstructure:"domain"`
	ClientID       string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret   string  `yaml:"client_secret" mapstructure:"client_secret"`
	Username       string  `yaml:"username" mapstructure:"username"`
	Password       string  `yaml:"password" mapstructure:"password"`
	SecurityToken  string  `yaml:"security_token" mapstructure:"security_token"`
	KeyPath        string  `yaml:"key_path" mapstructure:"key_path"`
	OpportunityStg string  `yaml:"opportunity_stage" mapstructure:"opportunity_stage"`
	RPS            float64 `yaml:"rps" mapstructure:"rps"`
}

// WebhookConfig configures the lead webhook.
type WebhookConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Secret  string        `yaml:"secret" mapstructure:"secret"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// NotionConfig holds Notion API credentials and the lead board id.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// StoreConfig configures lead persistence.
type StoreConfig struct {
	// Dir holds one JSON file per lead.
	Dir    string       `yaml:"dir" mapstructure:"dir"`
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`
}

// LedgerConfig configures the capture ledger database.
type LedgerConfig struct {
	// Driver is sqlite, postgres or none.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// AdminConfig holds HTTP Basic credentials for the admin routes. The routes
// are disabled when either is empty.
type AdminConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// Enabled reports whether admin routes should be mounted.
func (a AdminConfig) Enabled() bool { return a.Username != "" && a.Password != "" }

// CaptureConfig tunes the capture worker and channel retries.
type CaptureConfig struct {
	Workers        int           `yaml:"workers" mapstructure:"workers"`
	QueueSize      int           `yaml:"queue_size" mapstructure:"queue_size"`
	ChannelTimeout time.Duration `yaml:"channel_timeout" mapstructure:"channel_timeout"`
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	// BreakerThreshold consecutive outages open a channel's circuit; zero
	// disables breakers.
	BreakerThreshold int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// ExtractConfig configures the entity extractor.
type ExtractConfig struct {
	VocabularyPath string `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envAliases maps config keys to conventional variable names accepted in
// addition to the LEADS_ prefixed form.
var envAliases = map[string][]string{
	"anthropic.key":             {"ANTHROPIC_API_KEY"},
	"email.smtp.host":           {"SMTP_HOST"},
	"email.smtp.port":           {"SMTP_PORT"},
	"email.smtp.username":       {"SMTP_USER"},
	"email.smtp.password":       {"SMTP_PASSWORD"},
	"email.resend.api_key":      {"RESEND_API_KEY"},
	"crm.hubspot.token":         {"HUBSPOT_API_KEY"},
	"webhook.url":               {"LEAD_WEBHOOK_URL"},
	"webhook.secret":            {"WEBHOOK_SECRET"},
	"notion.token":              {"NOTION_TOKEN"},
	"store.ledger.database_url": {"DATABASE_URL"},
}

// Load reads .env (if present), config.yaml (if present) and LEADS_*
// environment variables, in increasing precedence over the defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file, which must exist. An empty
// path falls back to the optional ./config.yaml.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, aliases := range envAliases {
		names := append([]string{"LEADS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var missing viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &missing) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Email.To = splitList(cfg.Email.To)
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 500)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("anthropic.min_interval", "1500ms")
	v.SetDefault("anthropic.max_attempts", 3)
	v.SetDefault("anthropic.timeout", "60s")

	v.SetDefault("session.context_turns", 6)
	v.SetDefault("session.history_cap", 20)
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.sweep_interval", "1m")

	v.SetDefault("contact.name", "Reno")
	v.SetDefault("contact.email", "reno@lenilani.com")
	v.SetDefault("contact.phone", "808-766-1164")

	v.SetDefault("email.provider", "smtp")
	v.SetDefault("email.from", "")
	v.SetDefault("email.to", []string{"reno@lenilani.com"})
	v.SetDefault("email.smtp.host", "smtp.gmail.com")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.resend.api_key", "")

	v.SetDefault("crm.provider", "hubspot")
	v.SetDefault("crm.deal_threshold", 70)
	v.SetDefault("crm.deal_amount", 10000)
	v.SetDefault("crm.deal_pipeline", "default")
	v.SetDefault("crm.deal_stage", "appointmentscheduled")
	v.SetDefault("crm.deal_close_days", 60)
	v.SetDefault("crm.hubspot.token", "")
	v.SetDefault("crm.hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("crm.hubspot.rps", 10)
	v.SetDefault("crm.salesforce.domain", "https://login.salesforce.com")
	v.SetDefault("crm.salesforce.client_id", "")
	v.SetDefault("crm.salesforce.client_secret", "")
	v.SetDefault("crm.salesforce.username", "")
	v.SetDefault("crm.salesforce.password", "")
	v.SetDefault("crm.salesforce.security_token", "")
	v.SetDefault("crm.salesforce.key_path", "")
	v.SetDefault("crm.salesforce.opportunity_stage", "Prospecting")
	v.SetDefault("crm.salesforce.rps", 5)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")

	v.SetDefault("store.dir", "leads")
	v.SetDefault("store.ledger.driver", "sqlite")
	v.SetDefault("store.ledger.database_url", "leads.db")
	v.SetDefault("store.ledger.max_conns", 10)
	v.SetDefault("store.ledger.min_conns", 2)

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")

	v.SetDefault("capture.workers", 4)
	v.SetDefault("capture.queue_size", 64)
	v.SetDefault("capture.channel_timeout", "30s")
	v.SetDefault("capture.max_attempts", 3)
	v.SetDefault("capture.initial_backoff", "500ms")
	v.SetDefault("capture.max_backoff", "5s")
	v.SetDefault("capture.breaker_threshold", 5)
	v.SetDefault("capture.breaker_cooldown", "1m")

	v.SetDefault("extract.vocabulary_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// splitList flattens comma-separated entries, as env vars deliver lists
// as one string.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var (
	emailProviders  = []string{"smtp", "resend", "none"}
	crmProviders    = []string{"hubspot", "salesforce", "none"}
	ledgerDrivers   = []string{"sqlite", "postgres", "none"}
	validationModes = []string{"serve", "chat", "leads"}
)

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	if !slices.Contains(validationModes, mode) {
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Store.Dir == "" {
		add("store.dir is required")
	}
	if !slices.Contains(ledgerDrivers, c.Store.Ledger.Driver) {
		add("store.ledger.driver %q must be one of %s", c.Store.Ledger.Driver, strings.Join(ledgerDrivers, ", "))
	}
	if c.Store.Ledger.Driver != "none" && c.Store.Ledger.DatabaseURL == "" {
		add("store.ledger.database_url is required for driver %s", c.Store.Ledger.Driver)
	}

	if mode == "serve" || mode == "chat" {
		if c.Anthropic.Key == "" {
			add("anthropic.key is required")
		}
		if c.Session.ContextTurns <= 0 {
			add("session.context_turns must be positive")
		}
		if c.Session.ContextTurns%2 != 0 {
			add("session.context_turns (%d) must be even so the window holds whole exchanges", c.Session.ContextTurns)
		}
		if c.Session.HistoryCap%2 != 0 {
			add("session.history_cap (%d) must be even so the window holds whole exchanges", c.Session.HistoryCap)
		}
		if c.Session.HistoryCap < c.Session.ContextTurns {
			add("session.history_cap (%d) must be at least session.context_turns (%d)", c.Session.HistoryCap, c.Session.ContextTurns)
		}
		if !slices.Contains(emailProviders, c.Email.Provider) {
			add("email.provider %q must be one of %s", c.Email.Provider, strings.Join(emailProviders, ", "))
		}
		if !slices.Contains(crmProviders, c.CRM.Provider) {
			add("crm.provider %q must be one of %s", c.CRM.Provider, strings.Join(crmProviders, ", "))
		}
		if c.CRM.DealThreshold < 0 || c.CRM.DealThreshold > 100 {
			add("crm.deal_threshold %d must be within 0-100", c.CRM.DealThreshold)
		}
		if c.Capture.Workers <= 0 {
			add("capture.workers must be positive")
		}
	}
	if mode == "serve" {
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		} else if c.Server.Port > 65535 {
			add("server.port %d is out of range", c.Server.Port)
		}
		if (c.Admin.Username == "") != (c.Admin.Password == "") {
			add("admin.username and admin.password must be set together")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
