package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/spf13/viper"
)

const appName = "lazyvar"

// Config holds all application configuration
type Config struct {
	Store    models.Parameters `mapstructure:"store"`
	General  GeneralConfig     `mapstructure:"general"`
	Query    QueryConfig       `mapstructure:"query"`
	History  HistoryConfig     `mapstructure:"history"`
	Profiles ProfilesConfig    `mapstructure:"profiles"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	UI       UIConfig          `mapstructure:"ui"`
}

type GeneralConfig struct {
	User     string `mapstructure:"user"`
	Analysis string `mapstructure:"analysis"`
}

type QueryConfig struct {
	ResultLimit      int `mapstructure:"result_limit"`
	StatementTimeout int `mapstructure:"statement_timeout"`
}

type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type ProfilesConfig struct {
	Dir string `mapstructure:"dir"`
}

type UIConfig struct {
	Theme string `mapstructure:"theme"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	return &Config{
		Store: models.Parameters{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "prefer",
			MaxConns: 10,
			Schemas: map[string]string{
				string(models.SchemaMain):  "variants",
				string(models.SchemaUsers): "variants_users",
			},
		},
		Query: QueryConfig{
			ResultLimit:      1000,
			StatementTimeout: 0,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		UI: UIConfig{
			Theme: "default",
		},
	}
}

// Load reads the configuration. When path is empty the usual locations are
// searched and a missing file is not an error. Keys can be overridden with
// LAZYVAR_ environment variables, e.g. LAZYVAR_STORE_HOST.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := GetConfigPath(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := GetDefaults()
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.host", d.Store.Host)
	v.SetDefault("store.port", d.Store.Port)
	v.SetDefault("store.user", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.ssl_mode", d.Store.SSLMode)
	v.SetDefault("store.compression", false)
	v.SetDefault("store.max_conns", d.Store.MaxConns)
	v.SetDefault("store.schemas", d.Store.Schemas)
	v.SetDefault("general.user", "")
	v.SetDefault("general.analysis", "")
	v.SetDefault("query.result_limit", d.Query.ResultLimit)
	v.SetDefault("query.statement_timeout", d.Query.StatementTimeout)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", d.History.RetentionDays)
	v.SetDefault("profiles.dir", "")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("ui.theme", d.UI.Theme)
}

// fillPaths points unset file locations into the config directory
func (c *Config) fillPaths() error {
	if c.History.Path != "" && c.Profiles.Dir != "" {
		return nil
	}
	dir, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to locate config directory: %w", err)
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(dir, "history.db")
	}
	if c.Profiles.Dir == "" {
		c.Profiles.Dir = dir
	}
	return nil
}

// GetConfigPath returns the user config directory path
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}
