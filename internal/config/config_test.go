package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfigGetString(t *testing.T) {
	v := viper.New()
	v.Set("name", "test")
	cfg := New(v)

	if got := cfg.GetString("name"); got != "test" {
		t.Errorf("GetString('name') = %q, want %q", got, "test")
	}
}

func TestConfigGetInt(t *testing.T) {
	v := viper.New()
	v.Set("port", 9167)
	cfg := New(v)

	if got := cfg.GetInt("port"); got != 9167 {
		t.Errorf("GetInt('port') = %d, want %d", got, 9167)
	}
}

func TestConfigGetBool(t *testing.T) {
	v := viper.New()
	v.Set("enabled", true)
	cfg := New(v)

	if got := cfg.GetBool("enabled"); !got {
		t.Error("GetBool('enabled') = false, want true")
	}
}

func TestConfigGetDuration(t *testing.T) {
	v := viper.New()
	v.Set("timeout", "5s")
	cfg := New(v)

	want := 5 * time.Second
	if got := cfg.GetDuration("timeout"); got != want {
		t.Errorf("GetDuration('timeout') = %v, want %v", got, want)
	}
}

func TestConfigIsSet(t *testing.T) {
	v := viper.New()
	v.Set("exists", true)
	cfg := New(v)

	if !cfg.IsSet("exists") {
		t.Error("IsSet('exists') = false, want true")
	}
	if cfg.IsSet("missing") {
		t.Error("IsSet('missing') = true, want false")
	}
}

func TestConfigSub(t *testing.T) {
	v := viper.New()
	v.Set("publish.mqtt.enabled", true)
	v.Set("publish.mqtt.broker", "tcp://localhost:1883")
	cfg := New(v)

	sub := cfg.Sub("publish.mqtt")
	if sub == nil {
		t.Fatal("Sub('publish.mqtt') = nil")
	}
	if got := sub.GetBool("enabled"); !got {
		t.Error("sub.GetBool('enabled') = false, want true")
	}
	if got := sub.GetString("broker"); got != "tcp://localhost:1883" {
		t.Errorf("sub.GetString('broker') = %q, want %q", got, "tcp://localhost:1883")
	}
}

func TestConfigSubMissing(t *testing.T) {
	cfg := New(viper.New())

	sub := cfg.Sub("nonexistent")
	if sub == nil {
		t.Fatal("Sub('nonexistent') should return empty Config, not nil")
	}
	if got := sub.GetString("anything"); got != "" {
		t.Errorf("missing subtree GetString() = %q, want empty", got)
	}
}

func TestConfigUnmarshal(t *testing.T) {
	v := viper.New()
	v.Set("broker", "tcp://broker:1883")
	v.Set("qos", 1)
	cfg := New(v)

	var target struct {
		Broker string `mapstructure:"broker"`
		QoS    int    `mapstructure:"qos"`
	}
	if err := cfg.Unmarshal(&target); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if target.Broker != "tcp://broker:1883" {
		t.Errorf("Broker = %q, want %q", target.Broker, "tcp://broker:1883")
	}
	if target.QoS != 1 {
		t.Errorf("QoS = %d, want %d", target.QoS, 1)
	}
}

func TestNilViper(t *testing.T) {
	cfg := New(nil)
	// Should not panic and return zero values.
	if got := cfg.GetString("key"); got != "" {
		t.Errorf("nil viper GetString() = %q, want empty", got)
	}
	if cfg.GetDuration("key") != 0 {
		t.Error("nil viper GetDuration() != 0")
	}
	if len(cfg.ModuleOverrides()) != 0 {
		t.Error("nil viper ModuleOverrides() not empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "empty.yaml"))
	if err == nil {
		t.Fatal("Load() of missing explicit file succeeded, want error")
	}

	// With no explicit path a missing file falls back to defaults.
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.GetDuration("agent.default_interval"); got != 30*time.Second {
		t.Errorf("agent.default_interval = %v, want 30s", got)
	}
	if got := cfg.GetDuration("agent.online_window"); got != 90*time.Second {
		t.Errorf("agent.online_window = %v, want 90s", got)
	}
	if got := cfg.GetInt("agent.backoff.threshold"); got != 3 {
		t.Errorf("agent.backoff.threshold = %d, want 3", got)
	}
	if got := cfg.GetString("server.addr"); got != "127.0.0.1:9167" {
		t.Errorf("server.addr = %q, want 127.0.0.1:9167", got)
	}
	if cfg.GetBool("publish.mqtt.enabled") {
		t.Error("publish.mqtt.enabled = true by default, want false")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardscout.yaml")
	body := `
agent:
  default_interval: 10s
  core_modules: [cpu.load, thermal.soc]
server:
  enabled: false
modules:
  thermal.soc:
    enabled: false
  net.dev:
    interval: 2m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.GetDuration("agent.default_interval"); got != 10*time.Second {
		t.Errorf("agent.default_interval = %v, want 10s", got)
	}
	if cfg.GetBool("server.enabled") {
		t.Error("server.enabled = true, want false from file")
	}
	core := cfg.GetStringSlice("agent.core_modules")
	if len(core) != 2 || core[0] != "cpu.load" {
		t.Errorf("agent.core_modules = %v, want [cpu.load thermal.soc]", core)
	}
	// Defaults not touched by the file survive.
	if got := cfg.GetDuration("agent.backoff.ceiling"); got != 10*time.Minute {
		t.Errorf("agent.backoff.ceiling = %v, want 10m", got)
	}
}

func TestModuleOverrides(t *testing.T) {
	v := viper.New()
	v.Set("modules", map[string]any{
		"thermal.soc": map[string]any{"enabled": false},
		"net.dev":     map[string]any{"interval": "2m"},
		"disk.root":   map[string]any{"enabled": true, "interval": 120},
		"broken":      "not-a-map",
	})
	cfg := New(v)

	overrides := cfg.ModuleOverrides()

	if ov, ok := overrides["thermal.soc"]; !ok || ov.Enabled == nil || *ov.Enabled {
		t.Errorf("thermal.soc override = %+v, want enabled=false", ov)
	}
	if ov, ok := overrides["net.dev"]; !ok || ov.Interval != 2*time.Minute {
		t.Errorf("net.dev override = %+v, want interval=2m", ov)
	}
	if ov, ok := overrides["disk.root"]; !ok {
		t.Error("disk.root override missing")
	} else {
		if ov.Enabled == nil || !*ov.Enabled {
			t.Errorf("disk.root Enabled = %v, want true", ov.Enabled)
		}
		// Bare integers are seconds.
		if ov.Interval != 2*time.Minute {
			t.Errorf("disk.root Interval = %v, want 2m", ov.Interval)
		}
	}
	if _, ok := overrides["broken"]; ok {
		t.Error("non-map module entry produced an override")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw  any
		want time.Duration
		ok   bool
	}{
		{"15s", 15 * time.Second, true},
		{"2m", 2 * time.Minute, true},
		{30, 30 * time.Second, true},
		{int64(5), 5 * time.Second, true},
		{1.5, 1500 * time.Millisecond, true},
		{"soon", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseDuration(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseDuration(%v) = (%v, %t), want (%v, %t)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
