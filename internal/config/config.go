// Package config loads meetflow settings from defaults, an optional YAML
// file, MEETFLOW_* environment variables and bound CLI flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meetflow/internal/calendar"
	"meetflow/internal/observability"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MEETFLOW_LLM_MODEL.
const EnvPrefix = "MEETFLOW"

// Config is the full application configuration.
type Config struct {
	LLM       LLMConfig                   `mapstructure:"llm"`
	Calendar  CalendarConfig              `mapstructure:"calendar"`
	Attendees AttendeesConfig             `mapstructure:"attendees"`
	Mail      MailConfig                  `mapstructure:"mail"`
	Server    ServerConfig                `mapstructure:"server"`
	Progress  ProgressConfig              `mapstructure:"progress"`
	Pipeline  PipelineConfig              `mapstructure:"pipeline"`
	Logging   observability.LogConfig     `mapstructure:"logging"`
	Tracing   observability.TracingConfig `mapstructure:"tracing"`
}

// LLMConfig selects the text generator.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// CalendarConfig selects the calendar backend and the working-hours policy.
type CalendarConfig struct {
	// Backend is "memory" or "sqlite".
	Backend      string `mapstructure:"backend"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	Timezone     string `mapstructure:"timezone"`
	WorkStart    string `mapstructure:"work_start"`
	WorkEnd      string `mapstructure:"work_end"`
	SkipWeekends bool   `mapstructure:"skip_weekends"`
}

// AttendeesConfig points at the alias table.
type AttendeesConfig struct {
	DirectoryPath  string  `mapstructure:"directory_path"`
	DefaultDomain  string  `mapstructure:"default_domain"`
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
}

// MailConfig configures summary delivery. Disabled mail is logged only.
type MailConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
	Subject    string   `mapstructure:"subject"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	MaxConcurrentRuns int64         `mapstructure:"max_concurrent_runs"`
	RunHistory        int           `mapstructure:"run_history"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// ProgressConfig tunes the broadcaster and streaming endpoints.
type ProgressConfig struct {
	QueueCapacity     int           `mapstructure:"queue_capacity"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// PipelineConfig tunes the stages.
type PipelineConfig struct {
	StageTimeout     time.Duration `mapstructure:"stage_timeout"`
	ContextDaysBack  int           `mapstructure:"context_days_back"`
	ContextDaysAhead int           `mapstructure:"context_days_ahead"`
	ContextMaxEvents int           `mapstructure:"context_max_events"`
	RelatedLimit     int           `mapstructure:"related_limit"`
	SlotSearchDays   int           `mapstructure:"slot_search_days"`
	AutoExecute      bool          `mapstructure:"auto_execute"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("calendar.backend", "memory")
	v.SetDefault("calendar.sqlite_path", "meetflow.db")
	v.SetDefault("calendar.timezone", calendar.DefaultTimezone)
	v.SetDefault("calendar.work_start", "09:00")
	v.SetDefault("calendar.work_end", "17:00")
	v.SetDefault("calendar.skip_weekends", true)

	v.SetDefault("attendees.directory_path", "attendees.yaml")
	v.SetDefault("attendees.default_domain", "")
	v.SetDefault("attendees.fuzzy_threshold", 0.8)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.recipients", []string{})
	v.SetDefault("mail.subject", "AI Meeting Summary")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_concurrent_runs", 4)
	v.SetDefault("server.run_history", 256)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("progress.queue_capacity", 100)
	v.SetDefault("progress.heartbeat_interval", 15*time.Second)

	v.SetDefault("pipeline.stage_timeout", 2*time.Minute)
	v.SetDefault("pipeline.context_days_back", 30)
	v.SetDefault("pipeline.context_days_ahead", 30)
	v.SetDefault("pipeline.context_max_events", 50)
	v.SetDefault("pipeline.related_limit", 20)
	v.SetDefault("pipeline.slot_search_days", 14)
	v.SetDefault("pipeline.auto_execute", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "otlp")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.zipkin_endpoint", "http://localhost:9411/api/v2/spans")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "meetflow")
	v.SetDefault("tracing.service_version", "dev")
}

type loadOptions struct {
	path  string
	viper *viper.Viper
}

// Option customises Load.
type Option func(*loadOptions)

// WithConfigPath reads the given file instead of searching for meetflow.yaml.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.path = path
	}
}

// WithViper loads through v, typically one with CLI flags already bound.
func WithViper(v *viper.Viper) Option {
	return func(o *loadOptions) {
		o.viper = v
	}
}

// Load resolves the configuration and returns it with the path of the file
// it read, if any. A missing default file is not an error; a missing
// explicit one is.
func Load(opts ...Option) (Config, string, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	v := options.viper
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if options.path != "" {
		v.SetConfigFile(options.path)
	} else {
		v.SetConfigName("meetflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".meetflow"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.path != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Calendar.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("calendar.backend must be memory or sqlite, got %q", c.Calendar.Backend)
	}
	if _, err := c.WorkingHours(); err != nil {
		return err
	}
	if t := c.Attendees.FuzzyThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("attendees.fuzzy_threshold must be in (0, 1], got %v", t)
	}
	if c.Pipeline.SlotSearchDays <= 0 {
		return fmt.Errorf("pipeline.slot_search_days must be positive, got %d", c.Pipeline.SlotSearchDays)
	}
	if c.Pipeline.StageTimeout < 0 {
		return errors.New("pipeline.stage_timeout must not be negative")
	}
	if c.Progress.QueueCapacity <= 0 {
		return fmt.Errorf("progress.queue_capacity must be positive, got %d", c.Progress.QueueCapacity)
	}
	if c.Server.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("server.max_concurrent_runs must be positive, got %d", c.Server.MaxConcurrentRuns)
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		return errors.New("mail.host and mail.from are required when mail is enabled")
	}
	return nil
}

// WorkingHours builds the slot finder policy from the calendar section.
func (c Config) WorkingHours() (calendar.WorkingHours, error) {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return calendar.WorkingHours{}, fmt.Errorf("calendar.timezone: %w", err)
	}
	start, err := calendar.ParseClock(c.Calendar.WorkStart)
	if err != nil {
		return calendar.WorkingHours{}, fmt.Errorf("calendar.work_start: %w", err)
	}
	end, err := calendar.ParseClock(c.Calendar.WorkEnd)
	if err != nil {
		return calendar.WorkingHours{}, fmt.Errorf("calendar.work_end: %w", err)
	}
	if end.Hour*60+end.Minute <= start.Hour*60+start.Minute {
		return calendar.WorkingHours{}, fmt.Errorf("calendar.work_end %s must be after work_start %s", end, start)
	}
	return calendar.WorkingHours{Start: start, End: end, SkipWeekends: c.Calendar.SkipWeekends, Location: loc}, nil
}
