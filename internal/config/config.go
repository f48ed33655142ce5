package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-plan-pipeline/internal/model"
)

// EnvPrefix is prepended to every environment override, e.g.
// PLANNER_ORACLE_MODEL sets oracle.model.
const EnvPrefix = "PLANNER"

// Config is the planner configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Output  OutputConfig  `mapstructure:"output"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr              string  `mapstructure:"addr"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// OracleConfig configures the model-backed plan generator.
type OracleConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Endpoint          string        `mapstructure:"endpoint"`
	Model             string        `mapstructure:"model"`
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`

	model.RetryConfig `mapstructure:",squash"`
}

type LimitsConfig struct {
	MaxGoalLength  int `mapstructure:"max_goal_length"`
	MaxSampleBytes int `mapstructure:"max_sample_bytes"`
	MaxExampleRows int `mapstructure:"max_example_rows"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

func setDefaults(v *viper.Viper) {
	retry := model.DefaultRetryConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.requests_per_second", 20.0)
	v.SetDefault("server.burst", 40)
	v.SetDefault("store.path", "planner.db")
	v.SetDefault("output.dir", "outputs")

	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.endpoint", "")
	v.SetDefault("oracle.model", "gemini-2.0-flash")
	v.SetDefault("oracle.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("oracle.requests_per_second", 2.0)
	v.SetDefault("oracle.content_retries", retry.ContentRetries)
	v.SetDefault("oracle.transport_retries", retry.TransportRetries)
	v.SetDefault("oracle.backoff_base", retry.BackoffBase)
	v.SetDefault("oracle.backoff_max", retry.BackoffMax)

	v.SetDefault("limits.max_goal_length", 2000)
	v.SetDefault("limits.max_sample_bytes", 1<<20)
	v.SetDefault("limits.max_example_rows", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads the optional YAML file at path (empty means none) and applies
// PLANNER_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("server.requests_per_second must not be negative"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Oracle.Enabled {
		if c.Oracle.Model == "" {
			errs = append(errs, errors.New("oracle.model is required when the oracle is enabled"))
		}
		if c.Oracle.APIKeyEnv == "" {
			errs = append(errs, errors.New("oracle.api_key_env is required when the oracle is enabled"))
		}
	}
	if c.Oracle.Timeout < 0 {
		errs = append(errs, errors.New("oracle.timeout must not be negative"))
	}
	if c.Oracle.ContentRetries < 0 || c.Oracle.TransportRetries < 0 {
		errs = append(errs, errors.New("oracle retry budgets must not be negative"))
	}
	if c.Limits.MaxGoalLength <= 0 || c.Limits.MaxSampleBytes <= 0 || c.Limits.MaxExampleRows <= 0 {
		errs = append(errs, errors.New("limits must be positive"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}
