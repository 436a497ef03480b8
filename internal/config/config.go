// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing engine configuration.
// Components depend on this rather than the concrete Config so tests can
// substitute mocks.
type Interface interface {
	Logger() LoggerConfig
	Locator() LocatorConfig
	Scheduler() SchedulerConfig
	Agent() AgentConfig
	Providers() ProvidersConfig
	Journal() JournalConfig
	Browser() BrowserConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LocatorCfg   LocatorConfig   `mapstructure:"locator" yaml:"locator"`
	SchedulerCfg SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	ProviderCfg  ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	JournalCfg   JournalConfig   `mapstructure:"journal" yaml:"journal"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Locator() LocatorConfig     { return c.LocatorCfg }
func (c *Config) Scheduler() SchedulerConfig { return c.SchedulerCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Providers() ProvidersConfig { return c.ProviderCfg }
func (c *Config) Journal() JournalConfig     { return c.JournalCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LocatorConfig tunes the template-matching engine.
type LocatorConfig struct {
	// Threshold is the default minimum confidence for a match in [0, 1].
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	// MaxResults caps how many matches FindAll returns after de-duplication.
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`
	// Scales are the template scale factors tried by multi-scale search.
	Scales []float64 `mapstructure:"scales" yaml:"scales"`
	// PollInterval is the default wait-for polling cadence.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// SchedulerConfig holds defaults applied to tasks that do not set their own.
type SchedulerConfig struct {
	DefaultRetryDelay time.Duration `mapstructure:"default_retry_delay" yaml:"default_retry_delay"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	StopOnError       bool          `mapstructure:"stop_on_error" yaml:"stop_on_error"`
}

// AgentConfig holds settings for the perception-decision-action loop.
type AgentConfig struct {
	MaxSteps      int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay     time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	HistoryWindow int           `mapstructure:"history_window" yaml:"history_window"`
	// ScreenshotDir, when non-empty, enables per-step frame persistence.
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// ProvidersConfig selects and configures decision-source providers.
type ProvidersConfig struct {
	// Active names the provider used when none is given on the command line.
	Active string `mapstructure:"active" yaml:"active"`
	// Settings maps provider names to their connection settings.
	Settings map[string]ProviderSettings `mapstructure:"settings" yaml:"settings"`
}

// ProviderSettings configures a single decision-source provider. APIKey wins
// over APIKeyEnv when both are set; keys never appear in serialized config.
type ProviderSettings struct {
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	APIKeyEnv   string        `mapstructure:"api_key_env" yaml:"api_key_env"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	VisionModel string        `mapstructure:"vision_model" yaml:"vision_model"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// JournalConfig controls the optional run journal.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DSN is a PostgreSQL connection string. Empty selects the in-memory
	// journal even when Enabled is true.
	DSN string `mapstructure:"dsn" yaml:"-"`
	// MemoryLimit bounds how many runs the in-memory journal retains.
	MemoryLimit int `mapstructure:"memory_limit" yaml:"memory_limit"`
}

// BrowserConfig holds settings for the bundled CDP backend.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	HumanMotion    bool     `mapstructure:"human_motion" yaml:"human_motion"`
	MotionSeed     int64    `mapstructure:"motion_seed" yaml:"motion_seed"`
	Args           []string `mapstructure:"args" yaml:"args"`
}

// DefaultConfigDir returns the per-user configuration directory, resolving
// the home directory portably.
func DefaultConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".deskhand"), nil
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskhand")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Locator --
	v.SetDefault("locator.threshold", 0.8)
	v.SetDefault("locator.max_results", 10)
	v.SetDefault("locator.scales", []float64{0.5, 0.75, 1.0, 1.25, 1.5})
	v.SetDefault("locator.poll_interval", "500ms")

	// -- Scheduler --
	v.SetDefault("scheduler.default_retry_delay", "1s")
	v.SetDefault("scheduler.default_timeout", "0s")
	v.SetDefault("scheduler.stop_on_error", false)

	// -- Agent --
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.step_delay", "1s")
	v.SetDefault("agent.history_window", 5)
	v.SetDefault("agent.screenshot_dir", "")

	// -- Providers --
	v.SetDefault("providers.active", "openai")
	v.SetDefault("providers.settings.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.settings.openai.vision_model", "gpt-4o")
	v.SetDefault("providers.settings.openai.timeout", "60s")
	v.SetDefault("providers.settings.gemini.model", "gemini-2.5-flash")
	v.SetDefault("providers.settings.gemini.timeout", "60s")
	v.SetDefault("providers.settings.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("providers.settings.anthropic.timeout", "60s")
	v.SetDefault("providers.settings.ollama.base_url", "http://localhost:11434")
	v.SetDefault("providers.settings.ollama.model", "llama3.2-vision")
	v.SetDefault("providers.settings.ollama.timeout", "120s")

	// -- Journal --
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.memory_limit", 100)

	// -- Browser backend --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.human_motion", true)
	v.SetDefault("browser.motion_seed", 0)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are fully under our control; failing to decode them is a
		// programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object,
// binding sensitive values to environment variables and validating the
// result.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Secrets come from the environment, never the config file.
	v.BindEnv("journal.dsn", "DESKHAND_JOURNAL_DSN")
	v.BindEnv("providers.settings.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("providers.settings.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("providers.settings.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("providers.settings.deepseek.api_key", "DEEPSEEK_API_KEY")
	v.BindEnv("providers.settings.dashscope.api_key", "DASHSCOPE_API_KEY")
	v.BindEnv("providers.settings.moonshot.api_key", "MOONSHOT_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LocatorCfg.Validate(); err != nil {
		return fmt.Errorf("locator configuration invalid: %w", err)
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.JournalCfg.Validate(); err != nil {
		return fmt.Errorf("journal configuration invalid: %w", err)
	}
	if c.BrowserCfg.ViewportWidth <= 0 || c.BrowserCfg.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	return nil
}

// Validate checks the locator settings.
func (l *LocatorConfig) Validate() error {
	if l.Threshold < 0 || l.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0, 1], got %v", l.Threshold)
	}
	if l.MaxResults <= 0 {
		return fmt.Errorf("max_results must be a positive integer")
	}
	for _, s := range l.Scales {
		if s <= 0 {
			return fmt.Errorf("scales must all be positive, got %v", s)
		}
	}
	if l.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}

// Validate checks the agent loop settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be greater than 0")
	}
	if a.StepDelay < 0 {
		return fmt.Errorf("step_delay cannot be negative")
	}
	if a.HistoryWindow < 0 {
		return fmt.Errorf("history_window cannot be negative")
	}
	return nil
}

// Validate checks the journal settings.
func (j *JournalConfig) Validate() error {
	if !j.Enabled {
		return nil
	}
	if j.MemoryLimit <= 0 && j.DSN == "" {
		return fmt.Errorf("memory_limit must be positive when no dsn is configured")
	}
	return nil
}
