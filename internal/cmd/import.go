package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <pairing-file>",
	Short: "Replace the active pairing credential",
	Long: `Import validates a .mobiledevicepairing or .plist file and makes it the
active pairing credential, replacing any existing one. A running
'pairlink start' picks up files dropped into the pairing inbox instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	store := newStore(cfg, logger)
	if err := store.ImportAndReplace(args[0]); err != nil {
		return err
	}

	cred, err := store.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %s\n", args[0])
	fmt.Fprintf(out, "  Credential: %s\n", store.Path())
	if cred.HasHostID() {
		fmt.Fprintf(out, "  HostID:     %s\n", cred.HostID)
	} else {
		fmt.Fprintln(out, "  HostID:     (missing, the host will reject this credential)")
	}
	return nil
}
