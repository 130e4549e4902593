package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List interview sessions",
	Long: `List locally stored sessions, newest first.

The active session is marked with '*'. Sessions that have not reached
the backend yet are marked [local].

Examples:
  fieldwork list
  fieldwork list --status completed
  fieldwork list -n 10`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status (active, completed, abandoned)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "max results")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sessions, err := mgr.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if listStatus != "" {
		filtered := sessions[:0]
		for _, s := range sessions {
			if s.Status == models.Status(listStatus) {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}
	if listLimit > 0 && len(sessions) > listLimit {
		sessions = sessions[:listLimit]
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	currentID, err := st.CurrentSessionID(ctx)
	if err != nil {
		currentID = ""
	}

	fmt.Printf("Sessions (%d):\n\n", len(sessions))
	for _, s := range sessions {
		marker := " "
		if s.SessionID == currentID {
			marker = "*"
		}
		localMark := ""
		if s.IsLocal {
			localMark = " [local]"
		}

		fmt.Printf("%s %s [%s]%s\n", marker, s.Title(), s.Status, localMark)
		fmt.Printf("    %s · %d messages · updated %s\n", s.SessionID, s.MessageCount, models.RelativeTime(s.UpdatedAt))
		if verbose {
			if s.BusinessContext.TargetCustomer != "" {
				fmt.Printf("    Customer: %s\n", s.BusinessContext.TargetCustomer)
			}
			if s.BusinessContext.Problem != "" {
				fmt.Printf("    Problem:  %s\n", s.BusinessContext.Problem)
			}
		}
	}

	return nil
}
