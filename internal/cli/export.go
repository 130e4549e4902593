package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
	"fieldwork/internal/parser"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export a session as a Markdown transcript",
	Long: `Export a session to a Markdown transcript with YAML frontmatter.

The output uses the same format 'fieldwork import' reads, so an
exported transcript round-trips. Without an argument the active
session is exported; without --output it goes to stdout.

Examples:
  fieldwork export
  fieldwork export -o carsharing-jane.md
  fieldwork export 2f1c9a4e-... -o backup.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
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

	rendered, err := parser.RenderTranscript(transcriptFrom(sess))
	if err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}

	if exportOutput == "" {
		fmt.Print(rendered)
		return nil
	}

	if err := os.WriteFile(exportOutput, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	fmt.Printf("Exported %d messages to %s\n", sess.MessageCount, exportOutput)
	return nil
}

// transcriptFrom builds the import format from a session, so exports
// round-trip through 'fieldwork import'.
func transcriptFrom(sess *models.Session) *parser.Transcript {
	fm := map[string]any{
		"session_id":    sess.SessionID,
		"business_idea": sess.BusinessContext.BusinessIdea,
		"industry":      sess.BusinessContext.Industry,
		"status":        string(sess.Status),
		"started_at":    sess.CreatedAt.Format(time.RFC3339),
	}
	if sess.BusinessContext.TargetCustomer != "" {
		fm["target_customer"] = sess.BusinessContext.TargetCustomer
	}
	if sess.BusinessContext.Problem != "" {
		fm["problem"] = sess.BusinessContext.Problem
	}
	if q := sess.Questionnaire; len(q.PrimaryStakeholders) > 0 {
		fm["primary_stakeholders"] = stakeholderMaps(q.PrimaryStakeholders)
	}
	if q := sess.Questionnaire; len(q.SecondaryStakeholders) > 0 {
		fm["secondary_stakeholders"] = stakeholderMaps(q.SecondaryStakeholders)
	}
	if sess.Questionnaire.TimeEstimate != "" {
		fm["time_estimate"] = sess.Questionnaire.TimeEstimate
	}

	turns := make([]parser.Turn, 0, len(sess.Messages))
	for _, msg := range sess.Messages {
		turns = append(turns, parser.Turn{
			Speaker: exportSpeaker(msg),
			Content: msg.Content,
		})
	}

	return &parser.Transcript{
		Frontmatter: fm,
		Title:       sess.Title(),
		Turns:       turns,
	}
}

func exportSpeaker(msg models.Message) string {
	if name, ok := msg.Metadata["speaker"].(string); ok && name != "" {
		return name
	}
	if msg.Role == models.RoleUser {
		return "Interviewer"
	}
	return "Participant"
}

// stakeholderMaps renders stakeholders as plain maps so the YAML field
// names match what stakeholdersFrom reads back.
func stakeholderMaps(list []models.Stakeholder) []map[string]string {
	out := make([]map[string]string, 0, len(list))
	for _, sh := range list {
		m := map[string]string{"name": sh.Name, "role": sh.Role}
		if sh.Description != "" {
			m["description"] = sh.Description
		}
		out = append(out, m)
	}
	return out
}
