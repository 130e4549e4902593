package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
)

var (
	newCustomer string
	newProblem  string
	newIndustry string
)

var newCmd = &cobra.Command{
	Use:   "new <business idea>",
	Short: "Start a new interview session",
	Long: `Start a new customer discovery session around a business idea.

The session is created locally and becomes the active session. It syncs
to the backend in the background once one is reachable.

Examples:
  fieldwork new "Neighborhood carsharing for commuters"
  fieldwork new "B2B invoice reminders" --customer "freelance designers" --industry saas
  fieldwork new "Meal prep boxes" -c "busy parents" -p "no time to cook on weekdays"`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

func init() {
	newCmd.Flags().StringVarP(&newCustomer, "customer", "c", "", "target customer segment")
	newCmd.Flags().StringVarP(&newProblem, "problem", "p", "", "problem hypothesis")
	newCmd.Flags().StringVar(&newIndustry, "industry", "", "industry (defaults to general)")
}

func runNew(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := mgr.CreateSession(ctx, models.BusinessContext{
		BusinessIdea:   args[0],
		TargetCustomer: newCustomer,
		Problem:        newProblem,
		Industry:       newIndustry,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	fmt.Printf("Started session: %s\n", sess.SessionID)
	fmt.Printf("  Idea:     %s\n", sess.BusinessContext.BusinessIdea)
	if sess.BusinessContext.TargetCustomer != "" {
		fmt.Printf("  Customer: %s\n", sess.BusinessContext.TargetCustomer)
	}
	if sess.BusinessContext.Problem != "" {
		fmt.Printf("  Problem:  %s\n", sess.BusinessContext.Problem)
	}
	fmt.Printf("  Industry: %s\n", sess.BusinessContext.Industry)

	if sess.IsLocal {
		fmt.Println("\nStored locally; will sync when the backend is reachable.")
	} else {
		fmt.Println("\nSynced to backend.")
	}

	return nil
}
