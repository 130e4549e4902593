package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fieldwork/internal/models"
)

var showMessages int

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session with its conversation",
	Long: `Show a session's business context, conversation and questionnaire.

Without an argument the active session is shown.

Examples:
  fieldwork show
  fieldwork show 2f1c9a4e-...
  fieldwork show --messages 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().IntVarP(&showMessages, "messages", "m", 0, "show only the last N messages (0 = all)")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var sess *models.Session
	if len(args) == 1 {
		rec, err := st.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		sess = &rec.Session
	} else {
		var err error
		sess, err = currentSession(ctx)
		if err != nil {
			return err
		}
	}

	fmt.Printf("%s\n", sess.Title())
	fmt.Printf("%s\n\n", strings.Repeat("=", len(sess.Title())))
	fmt.Printf("  ID:       %s\n", sess.SessionID)
	fmt.Printf("  Status:   %s\n", sess.Status)
	fmt.Printf("  Storage:  %s\n", storageLabel(sess.IsLocal))
	fmt.Printf("  Started:  %s\n", sess.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("  Updated:  %s\n", models.RelativeTime(sess.UpdatedAt))

	fmt.Printf("\nBusiness context:\n")
	fmt.Printf("  Idea:     %s\n", sess.BusinessContext.BusinessIdea)
	fmt.Printf("  Customer: %s\n", orDash(sess.BusinessContext.TargetCustomer))
	fmt.Printf("  Problem:  %s\n", orDash(sess.BusinessContext.Problem))
	fmt.Printf("  Industry: %s\n", sess.BusinessContext.Industry)

	messages := sess.Messages
	if showMessages > 0 && len(messages) > showMessages {
		messages = messages[len(messages)-showMessages:]
	}

	width := terminalWidth() - 4

	fmt.Printf("\nConversation (%d messages):\n", sess.MessageCount)
	if len(messages) == 0 {
		fmt.Println("  (empty)")
	}
	for _, msg := range messages {
		speaker := speakerLabel(msg)
		fmt.Printf("\n  [%s] %s\n", speaker, msg.Timestamp.Format("15:04"))
		for _, line := range wrapText(msg.Content, width) {
			fmt.Printf("    %s\n", line)
		}
	}

	if len(sess.Questionnaire.PrimaryStakeholders)+len(sess.Questionnaire.SecondaryStakeholders) > 0 {
		fmt.Printf("\nStakeholders:\n")
		printStakeholders("Primary", sess.Questionnaire.PrimaryStakeholders)
		printStakeholders("Secondary", sess.Questionnaire.SecondaryStakeholders)
		if sess.Questionnaire.TimeEstimate != "" {
			fmt.Printf("  Time estimate: %s\n", sess.Questionnaire.TimeEstimate)
		}
	}

	if sess.Questionnaire.Generated {
		q := sess.Questionnaire.Questions
		fmt.Printf("\nQuestionnaire (%d questions):\n", q.Total())
		printQuestionGroup("Problem discovery", q.ProblemDiscovery)
		printQuestionGroup("Solution validation", q.SolutionValidation)
		printQuestionGroup("Follow up", q.FollowUp)
	}

	return nil
}

func storageLabel(isLocal bool) string {
	if isLocal {
		return "local only"
	}
	return "synced"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func speakerLabel(msg models.Message) string {
	if name, ok := msg.Metadata["speaker"].(string); ok && name != "" {
		return name
	}
	if msg.Role == models.RoleUser {
		return "interviewer"
	}
	return string(msg.Role)
}

func printQuestionGroup(heading string, questions []string) {
	if len(questions) == 0 {
		return
	}
	fmt.Printf("\n  %s:\n", heading)
	for _, q := range questions {
		fmt.Printf("    - %s\n", q)
	}
}

func printStakeholders(heading string, list []models.Stakeholder) {
	if len(list) == 0 {
		return
	}
	fmt.Printf("  %s:\n", heading)
	for _, sh := range list {
		if sh.Role != "" {
			fmt.Printf("    - %s (%s)\n", sh.Name, sh.Role)
		} else {
			fmt.Printf("    - %s\n", sh.Name)
		}
	}
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// wrapText wraps s to width at word boundaries, preserving existing line
// breaks.
func wrapText(s string, width int) []string {
	if width < 20 {
		width = 20
	}

	var out []string
	for _, line := range strings.Split(s, "\n") {
		for len(line) > width {
			cut := strings.LastIndex(line[:width+1], " ")
			if cut <= 0 {
				cut = width
			}
			out = append(out, strings.TrimRight(line[:cut], " "))
			line = strings.TrimLeft(line[cut:], " ")
		}
		out = append(out, line)
	}
	return out
}
