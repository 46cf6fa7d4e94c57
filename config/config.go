// Package config loads daemon settings with viper.
//
// Precedence (lowest to highest): defaults < TOML file < $VEONIM_CONFIG JSON
// blob < VEONIM_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "VEONIM"
	EnvConfigBlob = "VEONIM_CONFIG"
	EnvConfigFile = "VEONIM_CONFIG_FILE"

	BackendLSP    = "lsp"
	BackendRemote = "remote"
)

type Config struct {
	LogLevel               string            `mapstructure:"log_level"`
	Backend                string            `mapstructure:"backend"`
	BackendCommand         []string          `mapstructure:"backend_command"`
	BackendURL             string            `mapstructure:"backend_url"`
	BackendAPIKey          string            `mapstructure:"backend_api_key"`
	BackendTimeoutMs       int               `mapstructure:"backend_timeout_ms"`
	FileEnterDebounceMs    int               `mapstructure:"file_enter_debounce_ms"`
	TextChangeDebounceMs   int               `mapstructure:"text_change_debounce_ms"`
	MaxResults             int               `mapstructure:"max_results"`
	CompletionTriggers     map[string]string `mapstructure:"completion_triggers"`
	MetricsURL             string            `mapstructure:"metrics_url"`
	DataDir                string            `mapstructure:"data_dir"`
	DebugImmediateShutdown bool              `mapstructure:"debug_immediate_shutdown"`
}

// SetDefaults registers every key so environment overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("backend", BackendLSP)
	v.SetDefault("backend_command", []string{})
	v.SetDefault("backend_url", "")
	v.SetDefault("backend_api_key", "")
	v.SetDefault("backend_timeout_ms", 5000)
	v.SetDefault("file_enter_debounce_ms", 100)
	v.SetDefault("text_change_debounce_ms", 200)
	v.SetDefault("max_results", 8)
	v.SetDefault("completion_triggers", map[string]string{})
	v.SetDefault("metrics_url", "")
	v.SetDefault("data_dir", "")
	v.SetDefault("debug_immediate_shutdown", false)
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(EnvConfigFile), os.Getenv(EnvConfigBlob))
}

// LoadFrom reads configuration from an optional TOML file and an optional
// JSON blob. Either may be empty.
func LoadFrom(configFile, blob string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile == "" {
		configFile = defaultConfigFile()
	}
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			v.SetConfigFile(configFile)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "read config file %s", configFile)
			}
		}
	}

	if strings.TrimSpace(blob) != "" {
		v.SetConfigType("json")
		if err := v.MergeConfig(strings.NewReader(blob)); err != nil {
			return nil, errors.Wrap(err, "invalid config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "veonim", "config.toml")
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLSP, BackendRemote:
	default:
		return errors.Newf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendRemote && c.BackendURL == "" {
		return errors.New("backend_url is required for the remote backend")
	}
	if c.MaxResults <= 0 {
		return errors.Newf("max_results must be positive, got %d", c.MaxResults)
	}
	for lang, pattern := range c.CompletionTriggers {
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.Wrapf(err, "completion trigger for %s", lang)
		}
	}
	return nil
}

func (c *Config) FileEnterDebounce() time.Duration {
	return time.Duration(c.FileEnterDebounceMs) * time.Millisecond
}

func (c *Config) TextChangeDebounce() time.Duration {
	return time.Duration(c.TextChangeDebounceMs) * time.Millisecond
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutMs) * time.Millisecond
}
