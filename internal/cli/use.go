package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
)

var useCmd = &cobra.Command{
	Use:   "use <session-id>",
	Short: "Switch the active session",
	Long: `Make another session the active one.

When the backend is reachable the stored copy is reconciled with the
backend copy first; the newer one wins.

Examples:
  fieldwork use 2f1c9a4e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runUse,
}

func runUse(cmd *cobra.Command, args []string) error {
	sess, err := mgr.LoadSession(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	fmt.Printf("Active session: %s\n", sess.Title())
	fmt.Printf("  %d messages · %s · updated %s\n", sess.MessageCount, storageLabel(sess.IsLocal), models.RelativeTime(sess.UpdatedAt))
	return nil
}
