// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. ALBUMS_ENDPOINT_BASE_URL.
const EnvPrefix = "ALBUMS"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Page     PageConfig     `mapstructure:"page"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// EndpointConfig describes the remote albums endpoint.
type EndpointConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	CallbackName string `mapstructure:"callback_name"`
}

// FetchConfig configures the outbound callback fetch.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// PageConfig controls the hosted page.
type PageConfig struct {
	TargetID string `mapstructure:"target_id"`
	Title    string `mapstructure:"title"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ConfigName is the file name (without extension) searched for when no
// explicit path is given.
const ConfigName = "albumlist"

// Load builds a Config from disk/environment. With an empty path the file is
// optional and looked up in the working directory, /etc/albumlist and
// $HOME/.albumlist.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/albumlist/")
		v.AddConfigPath("$HOME/.albumlist")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	// AutomaticEnv only resolves keys Viper already knows about.
	v.SetDefault("endpoint.base_url", "")
	v.SetDefault("endpoint.callback_name", "handleStuff")
	v.SetDefault("fetch.timeout_seconds", 5)
	v.SetDefault("fetch.user_agent", "albumlist/0.1")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("page.target_id", "albumList")
	v.SetDefault("page.title", "Albums")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Endpoint.BaseURL == "" {
		return fmt.Errorf("endpoint.base_url must be set")
	}
	u, err := url.Parse(c.Endpoint.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint.base_url must be an absolute URL, got %q", c.Endpoint.BaseURL)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("endpoint.base_url must not carry a query string")
	}
	if c.Endpoint.CallbackName == "" {
		return fmt.Errorf("endpoint.callback_name must be set")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Page.TargetID == "" {
		return fmt.Errorf("page.target_id must be set")
	}
	return nil
}

// FetchTimeout converts the configured deadline into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
