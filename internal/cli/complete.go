package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
)

var completeAbandon bool

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Mark the active session as completed",
	Long: `Move the active session out of the active state.

Examples:
  fieldwork complete
  fieldwork complete --abandon`,
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().BoolVar(&completeAbandon, "abandon", false, "mark as abandoned instead of completed")
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if _, err := currentSession(ctx); err != nil {
		return err
	}

	status := models.StatusCompleted
	if completeAbandon {
		status = models.StatusAbandoned
	}

	if err := mgr.SetStatus(status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	sess := mgr.Current()
	fmt.Printf("Session %s marked %s (%d messages).\n", sess.SessionID, status, sess.MessageCount)
	return nil
}
