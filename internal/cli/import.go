package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
	"fieldwork/internal/parser"
)

var importCmd = &cobra.Command{
	Use:   "import <file.md>",
	Short: "Import an interview transcript",
	Long: `Import a Markdown interview transcript as a new session.

YAML frontmatter carries the business context (business_idea,
target_customer, problem, industry, status, started_at). Speaker turns
are lines like '**Interviewer:** ...' or 'Interviewer: ...'; the
interviewer side becomes user messages, everyone else assistant
messages with the speaker kept in metadata.

The imported session becomes the active session and syncs like any
other.

Examples:
  fieldwork import interviews/carsharing-jane.md`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	tr, err := parser.ParseTranscript(string(data))
	if err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}

	sess := models.NewSession(models.BusinessContext{
		BusinessIdea:   tr.Field("business_idea"),
		TargetCustomer: tr.Field("target_customer"),
		Problem:        tr.Field("problem"),
		Industry:       tr.Field("industry"),
	})
	if sess.BusinessContext.BusinessIdea == "" && tr.Title != "" {
		sess.BusinessContext.BusinessIdea = tr.Title
	}
	if status := models.Status(tr.Field("status")); status.Valid() {
		sess.Status = status
	}
	if started := tr.Field("started_at"); started != "" {
		if ts, err := time.Parse(time.RFC3339, started); err == nil {
			sess.CreatedAt = ts.UTC()
		}
	}
	sess.Questionnaire.PrimaryStakeholders = stakeholdersFrom(tr.Frontmatter["primary_stakeholders"])
	sess.Questionnaire.SecondaryStakeholders = stakeholdersFrom(tr.Frontmatter["secondary_stakeholders"])
	if estimate, ok := tr.Frontmatter["time_estimate"].(string); ok {
		sess.Questionnaire.TimeEstimate = estimate
	}

	for _, turn := range tr.Turns {
		role := models.RoleAssistant
		if parser.IsInterviewer(turn.Speaker) {
			role = models.RoleUser
		}
		msg := models.NewMessage(role, turn.Content)
		msg.Metadata = map[string]any{"speaker": turn.Speaker}
		sess.Messages = append(sess.Messages, msg)
	}
	sess.Normalize()
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("invalid transcript session: %w", err)
	}

	if err := st.PutSession(ctx, sess, true); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if _, err := mgr.LoadSession(ctx, sess.SessionID); err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	if err := orch.SyncSession(ctx, sess.SessionID); err != nil {
		fmt.Printf("Warning: sync failed, will retry on next trigger: %v\n", err)
	}

	fmt.Printf("Imported %d messages into session %s\n", sess.MessageCount, sess.SessionID)
	fmt.Printf("  Idea:   %s\n", orDash(sess.BusinessContext.BusinessIdea))
	fmt.Printf("  Status: %s\n", sess.Status)

	rec, err := st.GetSession(ctx, sess.SessionID)
	if err == nil && !rec.NeedsSync() {
		fmt.Println("  Synced to backend.")
	} else {
		fmt.Println("  Stored locally; will sync when the backend is reachable.")
	}
	return nil
}

// stakeholdersFrom decodes a frontmatter stakeholder list. Entries without
// a name are dropped.
func stakeholdersFrom(v any) []models.Stakeholder {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []models.Stakeholder
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var sh models.Stakeholder
		if s, ok := fields["name"].(string); ok {
			sh.Name = s
		}
		if s, ok := fields["role"].(string); ok {
			sh.Role = s
		}
		if s, ok := fields["description"].(string); ok {
			sh.Description = s
		}
		if sh.Name != "" {
			out = append(out, sh)
		}
	}
	return out
}
