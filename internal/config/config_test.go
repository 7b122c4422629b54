package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default cluster config
	if cfg.Cluster.InstanceName != "test" {
		t.Errorf("Cluster.InstanceName = %q, want %q", cfg.Cluster.InstanceName, "test")
	}
	if cfg.Cluster.Version != "1.5.0" {
		t.Errorf("Cluster.Version = %q, want %q", cfg.Cluster.Version, "1.5.0")
	}
	if cfg.Cluster.TabletServers != 1 {
		t.Errorf("Cluster.TabletServers = %d, want 1", cfg.Cluster.TabletServers)
	}
	if cfg.Cluster.InitTimeoutSeconds != 120 {
		t.Errorf("Cluster.InitTimeoutSeconds = %d, want 120", cfg.Cluster.InitTimeoutSeconds)
	}

	// Verify default port config
	if cfg.Ports.MaxAttempts != 13 {
		t.Errorf("Ports.MaxAttempts = %d, want 13", cfg.Ports.MaxAttempts)
	}

	// Verify default drain config
	if cfg.Drain.FlushIntervalMs != 1000 {
		t.Errorf("Drain.FlushIntervalMs = %d, want 1000", cfg.Drain.FlushIntervalMs)
	}

	// Verify default runtime config
	if cfg.Runtime.Kind != RuntimeNative {
		t.Errorf("Runtime.Kind = %q, want %q", cfg.Runtime.Kind, RuntimeNative)
	}
	if cfg.Runtime.MaxHeap != "128m" {
		t.Errorf("Runtime.MaxHeap = %q, want %q", cfg.Runtime.MaxHeap, "128m")
	}

	// Verify default logging config
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}

	if cfg.Site == nil || len(cfg.Site) != 0 {
		t.Errorf("Site = %v, want empty non-nil map", cfg.Site)
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"init timeout", cfg.Cluster.InitTimeout(), 2 * time.Minute},
		{"coordination wait", cfg.Cluster.CoordinationWait(), 30 * time.Second},
		{"stop grace", cfg.Cluster.StopGrace(), 5 * time.Second},
		{"flush interval", cfg.Drain.FlushInterval(), time.Second},
		{"close grace", cfg.Drain.CloseGrace(), 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	cfg.Cluster.InitTimeoutSeconds = 0
	if cfg.Cluster.InitTimeout() != 0 {
		t.Errorf("InitTimeout() with 0 seconds = %v, want 0", cfg.Cluster.InitTimeout())
	}
}

func TestParseSiteOverrides(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "empty",
			pairs: nil,
			want:  map[string]string{},
		},
		{
			name:  "single pair",
			pairs: []string{"tserver.port.client=9997"},
			want:  map[string]string{"tserver.port.client": "9997"},
		},
		{
			name:  "value containing equals",
			pairs: []string{"general.classpaths=a=b"},
			want:  map[string]string{"general.classpaths": "a=b"},
		},
		{
			name:  "empty value allowed",
			pairs: []string{"trace.token.property.password="},
			want:  map[string]string{"trace.token.property.password": ""},
		},
		{
			name:  "later pair wins",
			pairs: []string{"k=1", "k=2"},
			want:  map[string]string{"k": "2"},
		},
		{
			name:    "missing equals",
			pairs:   []string{"novalue"},
			wantErr: true,
		},
		{
			name:    "empty key",
			pairs:   []string{"=v"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSiteOverrides(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSiteOverrides(%v) expected error", tt.pairs)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSiteOverrides(%v) error: %v", tt.pairs, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestMergeSite(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	extra := map[string]string{"b": "3", "c": "4"}

	got := MergeSite(base, extra)

	want := map[string]string{"a": "1", "b": "3", "c": "4"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("MergeSite()[%q] = %q, want %q", k, got[k], v)
		}
	}
	if base["b"] != "2" {
		t.Error("MergeSite mutated its base map")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/instamo"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "instamo")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/instamo/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Cluster.InstanceName != "test" {
			t.Errorf("Cluster.InstanceName = %q, want %q", cfg.Cluster.InstanceName, "test")
		}
	})

	t.Run("site values are stringified", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()
		viper.Set("site", map[string]any{
			"tserver.port.client":                9997,
			"tserver.memory.maps.native.enabled": true,
		})

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Site["tserver.port.client"] != "9997" {
			t.Errorf("Site[tserver.port.client] = %q, want %q", cfg.Site["tserver.port.client"], "9997")
		}
		if cfg.Site["tserver.memory.maps.native.enabled"] != "true" {
			t.Errorf("Site[tserver.memory.maps.native.enabled] = %q, want %q",
				cfg.Site["tserver.memory.maps.native.enabled"], "true")
		}
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()
		viper.Set("cluster.tablet_servers", 0)

		_, err := Load()
		if err == nil {
			t.Fatal("Load() expected validation error")
		}
		if _, ok := err.(ValidationErrors); !ok {
			t.Errorf("Load() error type = %T, want ValidationErrors", err)
		}
	})
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Ports.MaxAttempts != 13 {
		t.Errorf("Get().Ports.MaxAttempts = %d, want 13", cfg.Ports.MaxAttempts)
	}

	// An invalid value falls back to defaults
	viper.Set("drain.flush_interval_ms", 1)
	cfg = Get()
	if cfg.Drain.FlushIntervalMs != 1000 {
		t.Errorf("Get() with invalid config: FlushIntervalMs = %d, want default 1000", cfg.Drain.FlushIntervalMs)
	}
}
