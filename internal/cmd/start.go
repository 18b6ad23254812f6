package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/pairlink/internal/config"
	"github.com/Iron-Ham/pairlink/internal/event"
	"github.com/Iron-Ham/pairlink/internal/logging"
	"github.com/Iron-Ham/pairlink/internal/notify"
	"github.com/Iron-Ham/pairlink/internal/orchestrator"
	"github.com/Iron-Ham/pairlink/internal/pairing"
	"github.com/Iron-Ham/pairlink/internal/tui"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Establish the connection and keep the tunnel proxy running",
	Long: `Start launches the loopback tunnel proxy and verifies the active pairing
credential with a heartbeat. Failed heartbeats are retried with backoff.
If the host rejects the credential you are asked for a new pairing file.

Without a credential the connection is considered ready immediately.
The proxy keeps running until the process is interrupted.`,
	RunE: runStart,
}

var (
	startTUI     bool
	startNoProxy bool
)

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().BoolVar(&startTUI, "tui", true, "Show the terminal UI (default when stdout is a terminal)")
	startCmd.Flags().BoolVar(&startNoProxy, "no-proxy", false, "Do not launch the tunnel proxy")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useTUI := cfg.TUI.Enabled && term.IsTerminal(int(os.Stdout.Fd()))
	if cmd.Flags().Changed("tui") {
		useTUI = startTUI
	}

	store := newStore(cfg, logger)
	bus := event.NewBus()
	bus.SetLogger(logger)

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	var tuiSink *tui.Sink
	if useTUI {
		tuiSink = tui.NewSink()
		sinks = append(sinks, tuiSink)
		defer tuiSink.Observe(bus)()
	} else {
		sinks = append(sinks, notify.NewConsoleSink(cmd.OutOrStdout()))
	}

	deps := orchestrator.Deps{
		Store:   store,
		Service: newHeartbeatService(cfg, logger),
		Sink:    notify.Fanout(sinks...),
		Bus:     bus,
		Logger:  logger,
	}
	if cfg.Proxy.Enabled && !startNoProxy {
		launcher := newLauncher(cfg, logger)
		defer func() { _ = launcher.Close() }()
		deps.Proxy = launcher
	}

	orch, err := orchestrator.New(orchestratorConfig(cfg), deps)
	if err != nil {
		return err
	}

	if dir := cfg.InboxDir(); dir != "" {
		watcher, err := startInbox(ctx, dir, store, orch, logger)
		if err != nil {
			return err
		}
		defer watcher.Stop()
	}

	logger.Info("starting",
		"config_file", config.ConfigFile(),
		"pairing_path", store.Path(),
		"tui", useTUI)

	if !useTUI {
		if err := orch.Run(ctx); err != nil {
			return ignoreCanceled(err)
		}
		// The proxy keeps serving after the connection is ready.
		<-ctx.Done()
		return nil
	}

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	model := tui.New(tui.Options{Import: orch.ImportCredential})
	uiErr := tui.Run(ctx, model, tuiSink, tea.WithAltScreen())

	// Quitting the UI stops everything, including the proxy.
	stop()
	if err := ignoreCanceled(<-runErr); err != nil {
		return err
	}
	return uiErr
}

// startInbox imports pairing files dropped into dir.
func startInbox(ctx context.Context, dir string, store *pairing.Store, orch *orchestrator.Orchestrator, logger *logging.Logger) (*pairing.Watcher, error) {
	watcher, err := pairing.NewWatcher(pairing.WatcherConfig{
		Dir:     dir,
		Accepts: store.Accepts,
		OnFile: func(path string) {
			if err := orch.ImportCredential(ctx, path); err != nil {
				logger.Warn("inbox import failed", "path", path, "error", err.Error())
			}
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch pairing inbox: %w", err)
	}
	watcher.Start()
	return watcher, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
