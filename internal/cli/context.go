package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
)

var (
	contextIdea     string
	contextCustomer string
	contextProblem  string
	contextIndustry string
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show or update the session's business context",
	Long: `Show the active session's business context, or update parts of it.

Only the flags you pass change; everything else is kept. Passing an
empty string clears that field.

Examples:
  fieldwork context
  fieldwork context --customer "urban commuters"
  fieldwork context --problem "" --industry mobility`,
	RunE: runContext,
}

func init() {
	contextCmd.Flags().StringVar(&contextIdea, "idea", "", "business idea")
	contextCmd.Flags().StringVar(&contextCustomer, "customer", "", "target customer segment")
	contextCmd.Flags().StringVar(&contextProblem, "problem", "", "problem hypothesis")
	contextCmd.Flags().StringVar(&contextIndustry, "industry", "", "industry")
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	var patch models.BusinessContextPatch
	changed := false
	if cmd.Flags().Changed("idea") {
		patch.BusinessIdea = &contextIdea
		changed = true
	}
	if cmd.Flags().Changed("customer") {
		patch.TargetCustomer = &contextCustomer
		changed = true
	}
	if cmd.Flags().Changed("problem") {
		patch.Problem = &contextProblem
		changed = true
	}
	if cmd.Flags().Changed("industry") {
		patch.Industry = &contextIndustry
		changed = true
	}

	if changed {
		if err := mgr.PatchBusinessContext(patch); err != nil {
			return fmt.Errorf("update business context: %w", err)
		}
		sess = mgr.Current()
		fmt.Println("Business context updated.")
		fmt.Println()
	}

	fmt.Printf("  Idea:     %s\n", orDash(sess.BusinessContext.BusinessIdea))
	fmt.Printf("  Customer: %s\n", orDash(sess.BusinessContext.TargetCustomer))
	fmt.Printf("  Problem:  %s\n", orDash(sess.BusinessContext.Problem))
	fmt.Printf("  Industry: %s\n", sess.BusinessContext.Industry)

	return nil
}
