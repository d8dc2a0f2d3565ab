package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"tvpanel/pkg/contracts/domain"
)

// Config represents the complete application configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Engine  EngineConfig  `yaml:"engine" envconfig:"ENGINE"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// EngineConfig contains the per-run interval engine configuration.
// These are plain structured values passed once per pipeline invocation;
// there is no dynamic reconfiguration mid-run.
type EngineConfig struct {
	Reference        string   `yaml:"reference" envconfig:"REFERENCE" validate:"required"`
	Transform        string   `yaml:"transform" envconfig:"TRANSFORM" validate:"oneof=reference ever_treated current_former lag washout cumulative_duration"`
	TransformDays    int64    `yaml:"transform_days" envconfig:"TRANSFORM_DAYS" validate:"min=0"`
	TimeUnit         string   `yaml:"time_unit" envconfig:"TIME_UNIT" validate:"oneof=days weeks months quarters years"`
	MergeDays        int64    `yaml:"merge_days" envconfig:"MERGE_DAYS" validate:"min=0"`
	GraceDays        int64    `yaml:"grace_days" envconfig:"GRACE_DAYS" validate:"min=0"`
	Overlap          string   `yaml:"overlap" envconfig:"OVERLAP" validate:"oneof=layer priority"`
	Priority         []string `yaml:"priority" envconfig:"PRIORITY"`
	DoseColumn       string   `yaml:"dose_column" envconfig:"DOSE_COLUMN"`
	WashoutPolicy    string   `yaml:"washout_policy" envconfig:"WASHOUT_POLICY" validate:"oneof=yields overrides"`
	EventPolicy      string   `yaml:"event_policy" envconfig:"EVENT_POLICY" validate:"oneof=single recurring"`
	KindPriority     []string `yaml:"kind_priority" envconfig:"KIND_PRIORITY"`
	MergeMode        string   `yaml:"merge_mode" envconfig:"MERGE_MODE" validate:"oneof=strict_ids lenient"`
	MergePrefixes    []string `yaml:"merge_prefixes" envconfig:"MERGE_PREFIXES"`
	// MergeRenames is one name list per merged panel. Nested lists have no
	// environment-variable form, so the field is file-only.
	MergeRenames     [][]string `yaml:"merge_renames" ignored:"true"`
	BatchSize        int        `yaml:"batch_size" envconfig:"BATCH_SIZE" validate:"min=0"`
	Workers          int        `yaml:"workers" envconfig:"WORKERS" validate:"min=0"`
	StrictValidation bool       `yaml:"strict_validation" envconfig:"STRICT_VALIDATION"`
}

// PathsConfig contains file system paths used by the loader and exporter
// collaborators; the engine itself never touches the file system.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/tvpanel.log",
		},
		Engine: EngineConfig{
			Reference:     "unexposed",
			Transform:     "reference",
			TimeUnit:      "days",
			Overlap:       "layer",
			WashoutPolicy: "yields",
			EventPolicy:   "single",
			MergeMode:     "strict_ids",
		},
		Paths: PathsConfig{
			DataDir:    "data",
			ReportsDir: "reports",
			LogsDir:    "logs",
		},
	}
}

// Load layers the configuration sources: defaults, then the YAML file,
// then explicitly set TV_* environment variables.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if err := envconfig.Process("TV", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if err := c.Engine.DomainTransform().Validate(); err != nil {
		return fmt.Errorf("engine.transform: %w", err)
	}
	if c.Engine.Overlap == "priority" && len(c.Engine.Priority) == 0 {
		return fmt.Errorf("engine.overlap: priority strategy requires a non-empty priority list")
	}
	if len(c.Engine.MergeRenames) > 0 && len(c.Engine.MergePrefixes) > 0 {
		return fmt.Errorf("engine: merge_renames and merge_prefixes are mutually exclusive")
	}
	return nil
}

// DomainTransform converts the configured transform into its tagged
// domain representation.
func (e EngineConfig) DomainTransform() domain.Transform {
	t := domain.Transform{Kind: domain.TransformKind(e.Transform)}
	switch t.Kind {
	case domain.TransformLag, domain.TransformWashout:
		t.Days = e.TransformDays
	case domain.TransformCumulativeDuration:
		t.Unit = domain.TimeUnit(e.TimeUnit)
	}
	return t
}

// DomainEventPolicy converts the configured event policy.
func (e EngineConfig) DomainEventPolicy() domain.EventPolicy {
	return domain.EventPolicy(e.EventPolicy)
}

// DomainTimeUnit converts the configured time unit.
func (e EngineConfig) DomainTimeUnit() domain.TimeUnit {
	return domain.TimeUnit(e.TimeUnit)
}
