package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/pairlink/internal/config"
	"github.com/Iron-Ham/pairlink/internal/logging"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active pairing credential and connection settings",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	store := newStore(cfg, logging.NopLogger())

	fmt.Fprintln(out, "Pairing credential:")
	fmt.Fprintf(out, "  Path:   %s\n", store.Path())
	if !store.Exists() {
		fmt.Fprintln(out, "  Status: none (start goes straight to ready)")
	} else {
		cred, err := store.Load()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "  Status: present")
		printField(out, "HostID", cred.HostID)
		printField(out, "SystemBUID", cred.SystemBUID)
		printField(out, "UDID", cred.UDID)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Connection:")
	fmt.Fprintf(out, "  Heartbeat host:    %s\n", cfg.Heartbeat.HostAddress)
	fmt.Fprintf(out, "  Establish timeout: %s\n", cfg.Connection.EstablishTimeout)
	if cfg.Proxy.Enabled {
		fmt.Fprintf(out, "  Proxy:             %s\n", cfg.Proxy.BindAddress)
	} else {
		fmt.Fprintln(out, "  Proxy:             disabled")
	}
	if dir := cfg.InboxDir(); dir != "" {
		fmt.Fprintf(out, "  Pairing inbox:     %s\n", dir)
	}
	fmt.Fprintf(out, "  Config file:       %s\n", config.ConfigFile())
	return nil
}

func printField(w io.Writer, name, value string) {
	if value == "" {
		value = "(missing)"
	}
	fmt.Fprintf(w, "  %-11s %s\n", name+":", value)
}
