package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meetflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, used, err := Load()
	require.NoError(t, err)
	assert.Empty(t, used)

	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "memory", cfg.Calendar.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.StageTimeout)
	assert.Equal(t, 14, cfg.Pipeline.SlotSearchDays)
	assert.True(t, cfg.Pipeline.AutoExecute)
	assert.Equal(t, int64(4), cfg.Server.MaxConcurrentRuns)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "AI Meeting Summary", cfg.Mail.Subject)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: openai
  model: gpt-file
calendar:
  backend: sqlite
  work_start: "08:30"
  work_end: "16:00"
pipeline:
  stage_timeout: 45s
mail:
  enabled: true
  host: smtp.example.com
  from: bot@example.com
  recipients: [ops@example.com]
`)
	t.Setenv("MEETFLOW_LLM_MODEL", "gpt-env")

	cfg, used, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-env", cfg.LLM.Model)
	assert.Equal(t, "sqlite", cfg.Calendar.Backend)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Mail.Recipients)

	hours, err := cfg.WorkingHours()
	require.NoError(t, err)
	assert.Equal(t, 8, hours.Start.Hour)
	assert.Equal(t, 30, hours.Start.Minute)
	assert.Equal(t, 16, hours.End.Hour)
	assert.Equal(t, "America/New_York", hours.Location.String())
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, _, err := Load(WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
}

func TestLoadWithBoundViper(t *testing.T) {
	v := viper.New()
	v.Set("pipeline.auto_execute", false)

	cfg, _, err := Load(WithViper(v), WithConfigPath(writeConfig(t, "{}\n")))
	require.NoError(t, err)
	assert.False(t, cfg.Pipeline.AutoExecute)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, _, err := Load(WithConfigPath(writeConfig(t, "{}\n")))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Calendar.Backend = "ical" }, "calendar.backend"},
		{"timezone", func(c *Config) { c.Calendar.Timezone = "Mars/Olympus" }, "calendar.timezone"},
		{"clock", func(c *Config) { c.Calendar.WorkStart = "nine" }, "calendar.work_start"},
		{"inverted hours", func(c *Config) { c.Calendar.WorkEnd = "08:00" }, "must be after"},
		{"threshold", func(c *Config) { c.Attendees.FuzzyThreshold = 1.5 }, "fuzzy_threshold"},
		{"slot days", func(c *Config) { c.Pipeline.SlotSearchDays = 0 }, "slot_search_days"},
		{"timeout", func(c *Config) { c.Pipeline.StageTimeout = -time.Second }, "stage_timeout"},
		{"queue", func(c *Config) { c.Progress.QueueCapacity = 0 }, "queue_capacity"},
		{"runs", func(c *Config) { c.Server.MaxConcurrentRuns = 0 }, "max_concurrent_runs"},
		{"mail", func(c *Config) { c.Mail.Enabled = true }, "mail.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
