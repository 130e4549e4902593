package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Generate interview questions for the active session",
	Long: `Ask the backend to generate interview questions from the session's
business context and the conversation so far.

The generated questionnaire replaces any previous one. Requires the
backend to be reachable.

Examples:
  fieldwork questions`,
	RunE: runQuestions,
}

func runQuestions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}
	if !orch.Online() {
		return fmt.Errorf("backend unreachable; question generation needs a connection")
	}

	if sess.Questionnaire.Generated {
		fmt.Println("Regenerating questionnaire...")
	} else {
		fmt.Println("Generating questionnaire...")
	}

	resp, err := api.GenerateQuestions(ctx, sess)
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}

	// Fresh questions replace the questionnaire wholesale; carry the
	// stakeholder analysis over so regeneration does not discard it.
	q := resp.Questionnaire()
	q.PrimaryStakeholders = sess.Questionnaire.PrimaryStakeholders
	q.SecondaryStakeholders = sess.Questionnaire.SecondaryStakeholders
	q.TimeEstimate = sess.Questionnaire.TimeEstimate

	if err := mgr.ApplyQuestionnaire(q); err != nil {
		return fmt.Errorf("store questionnaire: %w", err)
	}

	qs := mgr.Current().Questionnaire.Questions
	fmt.Printf("\nGenerated %d questions.\n", qs.Total())
	printQuestionGroup("Problem discovery", qs.ProblemDiscovery)
	printQuestionGroup("Solution validation", qs.SolutionValidation)
	printQuestionGroup("Follow up", qs.FollowUp)

	return nil
}
