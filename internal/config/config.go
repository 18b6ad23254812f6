package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete pairlink configuration
type Config struct {
	Proxy      ProxyConfig      `mapstructure:"proxy" yaml:"proxy"`
	Pairing    PairingConfig    `mapstructure:"pairing" yaml:"pairing"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat" yaml:"heartbeat"`
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	TUI        TUIConfig        `mapstructure:"tui" yaml:"tui"`
}

// ProxyConfig controls the local loopback proxy
type ProxyConfig struct {
	// Enabled starts the proxy alongside the connection lifecycle (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// BindAddress is the loopback host:port the proxy listens on
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`
	// Upstream is the host:port accepted connections are relayed to.
	// Empty means accepted connections are closed immediately.
	Upstream string `mapstructure:"upstream" yaml:"upstream"`
}

// PairingConfig controls where the pairing credential lives
type PairingConfig struct {
	// Dir holds the active credential. Empty means the config directory.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Filename is the credential's file name inside Dir
	Filename string `mapstructure:"filename" yaml:"filename"`
	// InboxDir is watched for new pairing files to import. Empty disables the watcher.
	InboxDir string `mapstructure:"inbox_dir" yaml:"inbox_dir"`
	// AllowedExtensions lists the file extensions accepted for import
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

// HeartbeatConfig controls the heartbeat dial against the paired host
type HeartbeatConfig struct {
	// HostAddress is the host:port dialed by each heartbeat attempt
	HostAddress string `mapstructure:"host_address" yaml:"host_address"`
	// DialTimeout bounds a single dial
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// ExpectedHostID, when set, must match the credential's HostID
	ExpectedHostID string `mapstructure:"expected_host_id" yaml:"expected_host_id"`
}

// ConnectionConfig controls connection establishment
type ConnectionConfig struct {
	// EstablishTimeout is how long after the first attempt the fatal
	// "HeartBeat Error" is shown if the connection is still not ready
	EstablishTimeout time.Duration `mapstructure:"establish_timeout" yaml:"establish_timeout"`
}

// RetryConfig controls backoff between generic heartbeat failures
type RetryConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier" yaml:"multiplier"`
	// Jitter is the fraction (0-1) of each delay that is randomized
	Jitter float64 `mapstructure:"jitter" yaml:"jitter"`
	// MaxAttempts caps the total number of attempts (0 = unlimited)
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// MaxElapsed caps the time spent retrying (0 = unlimited)
	MaxElapsed time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory. Empty means <config dir>/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum size of a log file before rotation
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// TUIConfig controls the terminal front end
type TUIConfig struct {
	// Enabled renders notifications in a terminal UI when stdout is a TTY
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultBindAddress is the loopback address the proxy listens on by default
const DefaultBindAddress = "127.0.0.1:51820"

// DefaultPairingFilename is the name of the active credential file
const DefaultPairingFilename = "pairingFile.plist"

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Enabled:     true,
			BindAddress: DefaultBindAddress,
		},
		Pairing: PairingConfig{
			Filename:          DefaultPairingFilename,
			AllowedExtensions: []string{".mobiledevicepairing", ".plist"},
		},
		Heartbeat: HeartbeatConfig{
			HostAddress: "10.7.0.1:62078",
			DialTimeout: 5 * time.Second,
		},
		Connection: ConnectionConfig{
			EstablishTimeout: 15 * time.Second,
		},
		Retry: RetryConfig{
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
			Jitter:         0.2,
			MaxAttempts:    0, // retry until ready or interrupted
			MaxElapsed:     0,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		TUI: TUIConfig{
			Enabled: true,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Proxy defaults
	viper.SetDefault("proxy.enabled", defaults.Proxy.Enabled)
	viper.SetDefault("proxy.bind_address", defaults.Proxy.BindAddress)
	viper.SetDefault("proxy.upstream", defaults.Proxy.Upstream)

	// Pairing defaults
	viper.SetDefault("pairing.dir", defaults.Pairing.Dir)
	viper.SetDefault("pairing.filename", defaults.Pairing.Filename)
	viper.SetDefault("pairing.inbox_dir", defaults.Pairing.InboxDir)
	viper.SetDefault("pairing.allowed_extensions", defaults.Pairing.AllowedExtensions)

	// Heartbeat defaults
	viper.SetDefault("heartbeat.host_address", defaults.Heartbeat.HostAddress)
	viper.SetDefault("heartbeat.dial_timeout", defaults.Heartbeat.DialTimeout)
	viper.SetDefault("heartbeat.expected_host_id", defaults.Heartbeat.ExpectedHostID)

	// Connection defaults
	viper.SetDefault("connection.establish_timeout", defaults.Connection.EstablishTimeout)

	// Retry defaults
	viper.SetDefault("retry.initial_backoff", defaults.Retry.InitialBackoff)
	viper.SetDefault("retry.max_backoff", defaults.Retry.MaxBackoff)
	viper.SetDefault("retry.multiplier", defaults.Retry.Multiplier)
	viper.SetDefault("retry.jitter", defaults.Retry.Jitter)
	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.max_elapsed", defaults.Retry.MaxElapsed)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// TUI defaults
	viper.SetDefault("tui.enabled", defaults.TUI.Enabled)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// PairingPath returns the full path of the active pairing credential.
func (c *Config) PairingPath() string {
	dir := ResolveDir(c.Pairing.Dir, ConfigDir())
	name := c.Pairing.Filename
	if name == "" {
		name = DefaultPairingFilename
	}
	return filepath.Join(dir, name)
}

// LogDir returns the resolved log directory.
func (c *Config) LogDir() string {
	return ResolveDir(c.Logging.Dir, filepath.Join(ConfigDir(), "logs"))
}

// InboxDir returns the resolved pairing inbox directory, or "" when the
// inbox watcher is disabled.
func (c *Config) InboxDir() string {
	if c.Pairing.InboxDir == "" {
		return ""
	}
	return ResolveDir(c.Pairing.InboxDir, ConfigDir())
}

// ResolveDir expands a configured directory. Empty returns fallback,
// a leading ~ expands to the user's home directory and relative paths
// are resolved against fallback.
func ResolveDir(path, fallback string) string {
	if path == "" {
		return fallback
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(fallback, path)
	}
	return path
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pairlink")
	}
	// Fall back to ~/.config/pairlink
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pairlink"
	}
	return filepath.Join(home, ".config", "pairlink")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
