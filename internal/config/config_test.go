package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvpanel/pkg/contracts/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "unexposed", cfg.Engine.Reference)
	assert.Equal(t, "reference", cfg.Engine.Transform)
	assert.Equal(t, "days", cfg.Engine.TimeUnit)
	assert.Equal(t, "single", cfg.Engine.EventPolicy)
	assert.Equal(t, "strict_ids", cfg.Engine.MergeMode)
	assert.Equal(t, "yields", cfg.Engine.WashoutPolicy)
	assert.Equal(t, "layer", cfg.Engine.Overlap)
	assert.Empty(t, cfg.Engine.DoseColumn)
	assert.Equal(t, "data", cfg.Paths.DataDir)
	assert.Equal(t, "reports", cfg.Paths.ReportsDir)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
engine:
  reference: untreated
  transform: lag
  transform_days: 14
  merge_days: 7
  event_policy: recurring
  merge_mode: lenient
paths:
  data_dir: /tmp/panels
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "untreated", cfg.Engine.Reference)
	assert.Equal(t, "lag", cfg.Engine.Transform)
	assert.Equal(t, int64(14), cfg.Engine.TransformDays)
	assert.Equal(t, int64(7), cfg.Engine.MergeDays)
	assert.Equal(t, "recurring", cfg.Engine.EventPolicy)
	assert.Equal(t, "lenient", cfg.Engine.MergeMode)
	assert.Equal(t, "/tmp/panels", cfg.Paths.DataDir)
}

func TestLoadEngineOptionsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
engine:
  overlap: priority
  priority: [drug_a, drug_b]
  dose_column: dose
  merge_renames:
    - [exposure, dose]
    - [statin]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "priority", cfg.Engine.Overlap)
	assert.Equal(t, []string{"drug_a", "drug_b"}, cfg.Engine.Priority)
	assert.Equal(t, "dose", cfg.Engine.DoseColumn)
	assert.Equal(t, [][]string{{"exposure", "dose"}, {"statin"}}, cfg.Engine.MergeRenames)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "unexposed", cfg.Engine.Reference)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transform", func(c *Config) { c.Engine.Transform = "square" }},
		{"unknown time unit", func(c *Config) { c.Engine.TimeUnit = "fortnights" }},
		{"unknown event policy", func(c *Config) { c.Engine.EventPolicy = "sometimes" }},
		{"unknown merge mode", func(c *Config) { c.Engine.MergeMode = "hopeful" }},
		{"unknown washout policy", func(c *Config) { c.Engine.WashoutPolicy = "maybe" }},
		{"negative batch size", func(c *Config) { c.Engine.BatchSize = -1 }},
		{"lag without days", func(c *Config) { c.Engine.Transform = "lag"; c.Engine.TransformDays = 0 }},
		{"unknown overlap strategy", func(c *Config) { c.Engine.Overlap = "newest" }},
		{"priority overlap without list", func(c *Config) { c.Engine.Overlap = "priority" }},
		{"renames and prefixes together", func(c *Config) {
			c.Engine.MergeRenames = [][]string{{"a"}}
			c.Engine.MergePrefixes = []string{"p_"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDomainTransform(t *testing.T) {
	e := EngineConfig{Transform: "lag", TransformDays: 30, TimeUnit: "years"}
	tr := e.DomainTransform()
	assert.Equal(t, domain.TransformLag, tr.Kind)
	assert.Equal(t, int64(30), tr.Days)
	assert.Empty(t, tr.Unit)

	e = EngineConfig{Transform: "cumulative_duration", TimeUnit: "years"}
	tr = e.DomainTransform()
	assert.Equal(t, domain.TransformCumulativeDuration, tr.Kind)
	assert.Equal(t, domain.UnitYears, tr.Unit)
	assert.Zero(t, tr.Days)

	e = EngineConfig{Transform: "reference", TransformDays: 5}
	tr = e.DomainTransform()
	assert.Equal(t, domain.TransformReference, tr.Kind)
	assert.Zero(t, tr.Days)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  reference: from_file\n"), 0644))

	t.Setenv("TV_ENGINE_REFERENCE", "from_env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Engine.Reference)
}
