// Package config wraps viper for agent configuration: file + environment
// loading, typed accessors, per-module overrides, and hot reload.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/boardscout/boardscout/internal/registry"
)

// Config is a nil-safe wrapper around a viper instance.
type Config struct {
	v *viper.Viper
}

// New wraps an existing viper instance. A nil viper yields a Config that
// returns zero values.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Load reads the agent configuration. With an empty path it searches the
// working directory and /etc/boardscout for boardscout.yaml; a missing file
// is fine (defaults plus environment apply). Environment variables use the
// BOARDSCOUT_ prefix with underscores for key separators.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOARDSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		return New(v), nil
	}

	v.SetConfigName("boardscout")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/boardscout")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.default_interval", "30s")
	v.SetDefault("agent.online_window", "90s")
	v.SetDefault("agent.core_modules", []string{})
	v.SetDefault("agent.command_rate", 5.0)
	v.SetDefault("agent.command_burst", 5)
	v.SetDefault("agent.backoff.threshold", 3)
	v.SetDefault("agent.backoff.ceiling", "10m")
	v.SetDefault("agent.grace_period", "10s")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", "127.0.0.1:9167")
	v.SetDefault("publish.mqtt.enabled", false)
	v.SetDefault("publish.statestore.enabled", false)
	v.SetDefault("publish.statestore.path", "boardscout.db")
}

// Watch invokes onChange whenever the config file changes on disk. No-op
// when no config file was loaded.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(fsnotify.Event) {
		onChange(c)
	})
	c.v.WatchConfig()
}

// ModuleOverrides extracts per-module enabled/interval overrides from the
// modules section. Module ids contain dots, so the section is read as a map
// rather than through viper's dotted key paths.
func (c *Config) ModuleOverrides() map[string]registry.Override {
	out := make(map[string]registry.Override)
	if c.v == nil {
		return out
	}
	for id, raw := range c.v.GetStringMap("modules") {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var ov registry.Override
		if e, ok := entry["enabled"].(bool); ok {
			ov.Enabled = &e
		}
		if d, ok := parseDuration(entry["interval"]); ok {
			ov.Interval = d
		}
		out[id] = ov
	}
	return out
}

func parseDuration(raw any) (time.Duration, bool) {
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	case int:
		return time.Duration(v) * time.Second, true
	case int64:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	default:
		return 0, false
	}
}

// GetString returns the string value for key.
func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// GetInt returns the int value for key.
func (c *Config) GetInt(key string) int {
	if c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

// GetFloat64 returns the float value for key.
func (c *Config) GetFloat64(key string) float64 {
	if c.v == nil {
		return 0
	}
	return c.v.GetFloat64(key)
}

// GetBool returns the bool value for key.
func (c *Config) GetBool(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

// GetDuration returns the duration value for key.
func (c *Config) GetDuration(key string) time.Duration {
	if c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

// GetStringSlice returns the string slice value for key.
func (c *Config) GetStringSlice(key string) []string {
	if c.v == nil {
		return nil
	}
	return c.v.GetStringSlice(key)
}

// IsSet reports whether key is present.
func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the subtree under key. Never nil; a missing subtree yields an
// empty Config.
func (c *Config) Sub(key string) *Config {
	if c.v == nil {
		return New(nil)
	}
	sub := c.v.Sub(key)
	if sub == nil {
		return New(viper.New())
	}
	return New(sub)
}

// Unmarshal decodes the configuration into target via mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}
