package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch backend sessions into the local store",
	Long: `Fetch every session the backend knows and cache the ones that are
missing or stale locally.

Sessions edited more recently on this machine are left alone; the most
recently updated copy always wins. Requires the backend to be
reachable.

Examples:
  fieldwork pull`,
	Args: cobra.NoArgs,
	RunE: runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !orch.Probe(ctx) {
		return fmt.Errorf("backend unreachable at %s", cfg.APIURL)
	}

	adopted, err := orch.Pull(ctx)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if adopted == 0 {
		fmt.Println("Local store already up to date.")
	} else {
		fmt.Printf("Pulled %d session(s).\n", adopted)
	}
	return nil
}
