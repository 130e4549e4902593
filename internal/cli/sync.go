package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending local changes to the backend",
	Long: `Push every locally modified session to the backend.

Sessions edited while offline accumulate in the local store; sync
pushes them all in one sweep. Conflicts resolve in favor of the most
recently updated copy.

Examples:
  fieldwork sync`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pending, err := st.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if pending == 0 {
		fmt.Println("Nothing to sync.")
		return nil
	}
	fmt.Printf("Pending: %d session(s)\n", pending)

	if !orch.Probe(ctx) {
		return fmt.Errorf("backend unreachable at %s", cfg.APIURL)
	}

	if err := mgr.ForceSync(ctx); err != nil {
		if errors.Is(err, syncer.ErrOffline) {
			return fmt.Errorf("backend unreachable at %s", cfg.APIURL)
		}
		return fmt.Errorf("sync: %w", err)
	}

	remaining, err := st.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if remaining == 0 {
		fmt.Println("All changes synced.")
	} else {
		fmt.Printf("%d session(s) still pending; they will retry on the next sync.\n", remaining)
	}

	return nil
}
