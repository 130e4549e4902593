package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/metrics"
	"fieldwork/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and store status",
	Long: `Show backend connectivity, local store contents and sync state.

Examples:
  fieldwork status
  fieldwork status -v`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fmt.Printf("Fieldwork Status\n")
	fmt.Printf("═══════════════════════════════════════\n")
	if orch.Online() {
		fmt.Printf("Backend:  online  (%s)\n", cfg.APIURL)
	} else {
		fmt.Printf("Backend:  offline (%s)\n", cfg.APIURL)
	}
	if err := st.Ping(ctx); err != nil {
		fmt.Printf("Store:    error (%v)\n", err)
	} else {
		fmt.Printf("Store:    ok\n")
	}
	fmt.Printf("Data dir: %s\n", cfg.DataDir)

	sessions, err := mgr.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	byStatus := map[models.Status]int{}
	local := 0
	for _, sess := range sessions {
		byStatus[sess.Status]++
		if sess.IsLocal {
			local++
		}
	}

	fmt.Printf("\nSessions: %d", len(sessions))
	if len(sessions) > 0 {
		fmt.Printf(" (%d active, %d completed, %d abandoned)",
			byStatus[models.StatusActive], byStatus[models.StatusCompleted], byStatus[models.StatusAbandoned])
	}
	fmt.Println()
	if local > 0 {
		fmt.Printf("Local only: %d\n", local)
	}

	pending, err := st.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	fmt.Printf("Pending sync: %d\n", pending)

	status := orch.Status()
	if status.LastSyncAt != nil {
		fmt.Printf("Last sync: %s\n", models.RelativeTime(*status.LastSyncAt))
	}
	if status.SyncError != "" {
		fmt.Printf("Sync error: %s\n", status.SyncError)
	}

	if current, err := st.CurrentSessionID(ctx); err == nil && current != "" {
		for _, sess := range sessions {
			if sess.SessionID == current {
				fmt.Printf("\nCurrent session: %s (%d messages)\n", sess.Title(), sess.MessageCount)
				break
			}
		}
	}

	if verbose {
		fmt.Println()
		printMetrics(collector.Snapshot())
	}

	return nil
}

// printMetrics displays store and API timing for this invocation.
func printMetrics(snap metrics.Snapshot) {
	fmt.Printf("Operation Metrics (this invocation)\n")
	fmt.Printf("═══════════════════════════════════════\n")

	ops := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"Store read", snap.StoreRead},
		{"Store write", snap.StoreWrite},
		{"Store delete", snap.StoreDelete},
		{"Store list", snap.StoreList},
		{"API call", snap.APICall},
		{"Sync push", snap.SyncPush},
		{"Sync sweep", snap.SyncSweep},
		{"Sync pull", snap.SyncPull},
		{"Question gen", snap.QuestionGen},
	}

	for _, entry := range ops {
		if entry.op == nil {
			continue
		}
		fmt.Printf("\n%s:\n", entry.name)
		printOpMetrics(entry.op)
	}
}

func printOpMetrics(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Failures: %d\n", op.Count, op.Failures)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
