package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
)

var sayAs string

var sayCmd = &cobra.Command{
	Use:   "say <message>",
	Short: "Append a message to the active session",
	Long: `Append one conversation turn to the active session.

By default the message is recorded as the interviewer (user). Use --as
to record the other side of the conversation.

Examples:
  fieldwork say "How often do you drive on weekdays?"
  fieldwork say --as assistant "Mostly weekends, honestly."`,
	Args: cobra.ExactArgs(1),
	RunE: runSay,
}

func init() {
	sayCmd.Flags().StringVar(&sayAs, "as", "user", "message role (user, assistant)")
}

func runSay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if _, err := currentSession(ctx); err != nil {
		return err
	}

	if err := mgr.Say(models.Role(sayAs), args[0]); err != nil {
		return fmt.Errorf("add message: %w", err)
	}

	sess := mgr.Current()
	fmt.Printf("[%s] message %d added\n", sayAs, sess.MessageCount)
	return nil
}
