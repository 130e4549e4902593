package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fieldwork/internal/store"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete an interview session",
	Long: `Delete an interview session from the local store and, when the
session has been synced, from the backend as well.

Requires confirmation unless --force is used.

Examples:
  fieldwork delete 7c1f3a9e-2b44-4f0a-9c31-d2e8a65f40bb
  fieldwork delete 7c1f3a9e-2b44-4f0a-9c31-d2e8a65f40bb --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()

	rec, err := st.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("session not found: %s", id)
		}
		return fmt.Errorf("get session: %w", err)
	}

	// Confirm deletion
	if !deleteForce {
		fmt.Printf("About to delete: %s (%d messages)\n", rec.Session.Title(), rec.Session.MessageCount)
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := mgr.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	fmt.Printf("Deleted: %s\n", rec.Session.Title())
	return nil
}
