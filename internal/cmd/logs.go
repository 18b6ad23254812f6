package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/pairlink/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View connection logs",
	Long: `View and filter the pairlink log, including rotated backups.

Examples:
  # Show the last 50 entries
  pairlink logs

  # Show every warning and error from the last hour
  pairlink logs -n 0 --level warn --since 1h

  # Follow one heartbeat attempt
  pairlink logs --attempt 3f1c9a2e-...

  # Export orchestrator entries as CSV
  pairlink logs --component orchestrator --format csv`,
	RunE: runLogs,
}

var (
	logsTail      int
	logsLevel     string
	logsSince     string
	logsComponent string
	logsAttempt   string
	logsState     string
	logsGrep      string
	logsFormat    string
	logsOutput    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (orchestrator, heartbeat, pairing, proxy)")
	logsCmd.Flags().StringVar(&logsAttempt, "attempt", "", "Filter by heartbeat attempt ID")
	logsCmd.Flags().StringVar(&logsState, "state", "", "Filter by lifecycle state")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter entries whose message contains text")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format (text, json, csv)")
	logsCmd.Flags().StringVarP(&logsOutput, "output", "o", "", "Write entries to a file instead of stdout")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filter, err := buildLogFilter(time.Now())
	if err != nil {
		return err
	}

	entries, err := logging.AggregateLogs(cfg.LogDir())
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if logsOutput != "" {
		if err := logging.ExportLogEntries(entries, logsOutput, logsFormat); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries to %s\n", len(entries), logsOutput)
		return nil
	}
	return logging.WriteLogEntries(cmd.OutOrStdout(), entries, logsFormat)
}

func buildLogFilter(now time.Time) (logging.LogFilter, error) {
	filter := logging.LogFilter{
		Component:       logsComponent,
		AttemptID:       logsAttempt,
		State:           logsState,
		MessageContains: logsGrep,
	}

	if logsLevel != "" {
		if !slices.Contains(logging.ValidLevels(), strings.ToUpper(logsLevel)) {
			return filter, fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", logsLevel)
		}
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return filter, fmt.Errorf("invalid --since duration: %w", err)
		}
		filter.StartTime = now.Add(-d)
	}
	return filter, nil
}
