package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
)

// Template selector implementations.
const (
	SelectorKeyword = "keyword"
	SelectorDefault = "default"
)

// Testing hook implementations.
const (
	TestingHookLog  = "log"
	TestingHookNone = "none"
)

// Config holds all configuration for the webhook orchestrator
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Server settings
	Host string `envconfig:"WEBHOOK_HOST" default:"0.0.0.0"`
	Port int    `envconfig:"WEBHOOK_PORT" default:"8090"`

	// State settings
	StateDir        string `envconfig:"STATE_DIR" default:"state"`
	CooldownMinutes int    `envconfig:"COOLDOWN_MINUTES" default:"5"`
	RetentionDays   int    `envconfig:"RETENTION_DAYS" default:"7"`

	// External collaborators
	SessionLauncher     string        `envconfig:"SESSION_LAUNCHER" default:"scripts/create_automated_session.sh"`
	MessageSender       string        `envconfig:"MESSAGE_SENDER" default:"scripts/send-claude-message.sh"`
	SessionTargetSuffix string        `envconfig:"SESSION_TARGET_SUFFIX" default:":0"`
	TmuxBin             string        `envconfig:"TMUX_BIN" default:"tmux"`
	LaunchTimeout       time.Duration `envconfig:"LAUNCH_TIMEOUT" default:"30s"`
	MessageTimeout      time.Duration `envconfig:"MESSAGE_TIMEOUT" default:"30s"`
	SubmitTimeout       time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"10s"`
	SettleDelay         time.Duration `envconfig:"SETTLE_DELAY" default:"3s"`

	// Template selection
	TemplatesDir     string `envconfig:"TEMPLATES_DIR" default:"templates"`
	TemplateSelector string `envconfig:"TEMPLATE_SELECTOR" default:"keyword"`
	TemplateCatalog  string `envconfig:"TEMPLATE_CATALOG"`
	DefaultTemplate  string `envconfig:"DEFAULT_TEMPLATE" default:"nextjs-clerk-prisma"`

	// Phase scheduling
	PhasePlanFile string `envconfig:"PHASE_PLAN_FILE"`
	TestingHook   string `envconfig:"TESTING_HOOK" default:"log"`

	// Security settings
	WebhookSecret  string `envconfig:"WEBHOOK_SECRET"`
	AdminJWTSecret string `envconfig:"ADMIN_JWT_SECRET"`

	// GitHub settings (tracker fetch for ideabrow payloads)
	GitHubToken  string `envconfig:"GITHUB_TOKEN"`
	GitHubAPIURL string `envconfig:"GITHUB_API_URL"`

	// Dispatcher settings
	DispatcherWorkers   int `envconfig:"DISPATCHER_WORKERS" default:"4"`
	DispatcherQueueSize int `envconfig:"DISPATCHER_QUEUE_SIZE" default:"16"`
}

// ClientConfig configures the admin API clients (CLI and MCP server).
type ClientConfig struct {
	BaseURL        string        `envconfig:"ORCHESTRATOR_URL" default:"http://localhost:8090"`
	AdminJWTSecret string        `envconfig:"ADMIN_JWT_SECRET"`
	Timeout        time.Duration `envconfig:"ORCHESTRATOR_TIMEOUT" default:"15s"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadClient loads the admin client configuration from environment variables
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading client config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ORCHESTRATOR_URL must not be empty")
	}
	return &cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CooldownWindow returns the cooldown as a duration.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// IsDevelopment reports whether console logging should be used.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func (c *Config) applyDefaults() {
	c.TemplateSelector = strings.ToLower(strings.TrimSpace(c.TemplateSelector))
	c.TestingHook = strings.ToLower(strings.TrimSpace(c.TestingHook))

	if c.TemplateSelector == "" {
		c.TemplateSelector = SelectorKeyword
	}
	if c.TestingHook == "" {
		c.TestingHook = TestingHookLog
	}
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = 30 * time.Second
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 30 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 10 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("WEBHOOK_PORT must be between 1 and 65535")
	}
	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("STATE_DIR is required")
	}
	if c.CooldownMinutes <= 0 {
		return fmt.Errorf("COOLDOWN_MINUTES must be greater than 0")
	}
	if c.RetentionDays <= 0 || c.RetentionDays > state.MaxRetentionDays {
		return fmt.Errorf("RETENTION_DAYS must be between 1 and %d", state.MaxRetentionDays)
	}
	if strings.TrimSpace(c.SessionLauncher) == "" {
		return fmt.Errorf("SESSION_LAUNCHER is required")
	}
	if strings.TrimSpace(c.MessageSender) == "" {
		return fmt.Errorf("MESSAGE_SENDER is required")
	}

	switch c.TemplateSelector {
	case SelectorKeyword, SelectorDefault:
	default:
		return fmt.Errorf("invalid TEMPLATE_SELECTOR: %s (must be '%s' or '%s')", c.TemplateSelector, SelectorKeyword, SelectorDefault)
	}

	switch c.TestingHook {
	case TestingHookLog, TestingHookNone:
	default:
		return fmt.Errorf("invalid TESTING_HOOK: %s (must be '%s' or '%s')", c.TestingHook, TestingHookLog, TestingHookNone)
	}

	return c.validateDispatcherConfig()
}

func (c *Config) validateDispatcherConfig() error {
	if c.DispatcherWorkers <= 0 {
		return fmt.Errorf("DISPATCHER_WORKERS must be greater than 0")
	}
	if c.DispatcherQueueSize <= 0 {
		return fmt.Errorf("DISPATCHER_QUEUE_SIZE must be greater than 0")
	}
	return nil
}
