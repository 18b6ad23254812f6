package cmd

import (
	"fmt"

	"github.com/Iron-Ham/pairlink/internal/config"
	"github.com/Iron-Ham/pairlink/internal/heartbeat"
	"github.com/Iron-Ham/pairlink/internal/logging"
	"github.com/Iron-Ham/pairlink/internal/orchestrator"
	"github.com/Iron-Ham/pairlink/internal/orchestrator/retry"
	"github.com/Iron-Ham/pairlink/internal/pairing"
	"github.com/Iron-Ham/pairlink/internal/proxy"
)

// loadConfig reads and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger opens the rotating log file, or a discarding logger when file
// logging is off.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	rotation := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}
	logger, err := logging.NewLoggerWithRotation(cfg.LogDir(), cfg.Logging.Level, rotation)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

func newStore(cfg *config.Config, logger *logging.Logger) *pairing.Store {
	return pairing.NewStore(pairing.StoreConfig{
		Path:              cfg.PairingPath(),
		AllowedExtensions: cfg.Pairing.AllowedExtensions,
		Logger:            logger,
	})
}

func newHeartbeatService(cfg *config.Config, logger *logging.Logger) *heartbeat.DialService {
	return &heartbeat.DialService{
		Address:        cfg.Heartbeat.HostAddress,
		Timeout:        cfg.Heartbeat.DialTimeout,
		ExpectedHostID: cfg.Heartbeat.ExpectedHostID,
		Logger:         logger,
	}
}

func newLauncher(cfg *config.Config, logger *logging.Logger) *proxy.Launcher {
	return proxy.NewLauncher(proxy.Config{
		Upstream:    cfg.Proxy.Upstream,
		DialTimeout: cfg.Heartbeat.DialTimeout,
		Logger:      logger,
	})
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		EstablishTimeout: cfg.Connection.EstablishTimeout,
		Retry: retry.Policy{
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			Multiplier:     cfg.Retry.Multiplier,
			Jitter:         cfg.Retry.Jitter,
			MaxAttempts:    cfg.Retry.MaxAttempts,
			MaxElapsed:     cfg.Retry.MaxElapsed,
		},
		ProxyAddress: cfg.Proxy.BindAddress,
	}
}
