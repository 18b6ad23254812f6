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

	// Verify default proxy config
	if !cfg.Proxy.Enabled {
		t.Error("Proxy.Enabled should be true by default")
	}
	if cfg.Proxy.BindAddress != "127.0.0.1:51820" {
		t.Errorf("Proxy.BindAddress = %q, want %q", cfg.Proxy.BindAddress, "127.0.0.1:51820")
	}
	if cfg.Proxy.Upstream != "" {
		t.Errorf("Proxy.Upstream = %q, want empty", cfg.Proxy.Upstream)
	}

	// Verify default pairing config
	if cfg.Pairing.Filename != "pairingFile.plist" {
		t.Errorf("Pairing.Filename = %q, want %q", cfg.Pairing.Filename, "pairingFile.plist")
	}
	if len(cfg.Pairing.AllowedExtensions) != 2 {
		t.Errorf("Pairing.AllowedExtensions = %v, want 2 entries", cfg.Pairing.AllowedExtensions)
	}

	// Verify default connection config
	if cfg.Connection.EstablishTimeout != 15*time.Second {
		t.Errorf("Connection.EstablishTimeout = %v, want 15s", cfg.Connection.EstablishTimeout)
	}

	// Verify default retry config
	if cfg.Retry.MaxAttempts != 0 {
		t.Errorf("Retry.MaxAttempts = %d, want 0 (unlimited)", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Multiplier != 2.0 {
		t.Errorf("Retry.Multiplier = %v, want 2.0", cfg.Retry.Multiplier)
	}

	// Verify default logging config
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestPairingPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	tests := []struct {
		name string
		cfg  PairingConfig
		want string
	}{
		{
			name: "defaults to config dir",
			cfg:  PairingConfig{Filename: "pairingFile.plist"},
			want: "/custom/config/pairlink/pairingFile.plist",
		},
		{
			name: "absolute dir",
			cfg:  PairingConfig{Dir: "/data", Filename: "pairingFile.plist"},
			want: "/data/pairingFile.plist",
		},
		{
			name: "relative dir",
			cfg:  PairingConfig{Dir: "state", Filename: "pairingFile.plist"},
			want: "/custom/config/pairlink/state/pairingFile.plist",
		},
		{
			name: "empty filename",
			cfg:  PairingConfig{Dir: "/data"},
			want: "/data/pairingFile.plist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pairing = tt.cfg
			if got := cfg.PairingPath(); got != tt.want {
				t.Errorf("PairingPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		path string
		want string
	}{
		{"", "/fallback"},
		{"~", home},
		{"~/pairing", filepath.Join(home, "pairing")},
		{"/abs", "/abs"},
		{"rel", "/fallback/rel"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ResolveDir(tt.path, "/fallback"); got != tt.want {
				t.Errorf("ResolveDir(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestLogDirAndInboxDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	cfg := Default()
	if got, want := cfg.LogDir(), "/custom/config/pairlink/logs"; got != want {
		t.Errorf("LogDir() = %q, want %q", got, want)
	}
	if got := cfg.InboxDir(); got != "" {
		t.Errorf("InboxDir() = %q, want empty when unset", got)
	}

	cfg.Pairing.InboxDir = "/inbox"
	if got := cfg.InboxDir(); got != "/inbox" {
		t.Errorf("InboxDir() = %q, want %q", got, "/inbox")
	}
}

func TestConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/pairlink"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	// Test without XDG_CONFIG_HOME
	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "pairlink")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/pairlink/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	// Get() should return defaults when no config file exists
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Proxy.BindAddress != DefaultBindAddress {
		t.Errorf("Get().Proxy.BindAddress = %q, want %q", cfg.Proxy.BindAddress, DefaultBindAddress)
	}
	if cfg.Connection.EstablishTimeout != 15*time.Second {
		t.Errorf("Get().Connection.EstablishTimeout = %v, want 15s", cfg.Connection.EstablishTimeout)
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("connection.establish_timeout", "30s")
	viper.Set("retry.initial_backoff", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Connection.EstablishTimeout != 30*time.Second {
		t.Errorf("EstablishTimeout = %v, want 30s", cfg.Connection.EstablishTimeout)
	}
	if cfg.Retry.InitialBackoff != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 250ms", cfg.Retry.InitialBackoff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("proxy.bind_address", "0.0.0.0:51820")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should reject a non-loopback bind address")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Load() error type = %T, want ValidationErrors", err)
	}
	if verrs[0].Field != "proxy.bind_address" {
		t.Errorf("Field = %q, want proxy.bind_address", verrs[0].Field)
	}
}
