package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
)

var (
	searchStatus string
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored interview sessions",
	Long: `Search conversations and business contexts across all stored sessions.

Matching is case-insensitive and runs against the local store only,
so it works offline.

Examples:
  fieldwork search "insurance"
  fieldwork search "pay for" -n 5
  fieldwork search parking --status completed`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchStatus, "status", "s", "", "filter by status (active, completed, abandoned)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
}

type searchHit struct {
	session *models.Session
	message *models.Message
	field   string
	value   string
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.ToLower(args[0])

	sessions, err := mgr.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	var hits []searchHit
	for _, sess := range sessions {
		if searchStatus != "" && string(sess.Status) != searchStatus {
			continue
		}
		if field, value := matchBusinessContext(sess.BusinessContext, query); field != "" {
			hits = append(hits, searchHit{session: sess, field: field, value: value})
		}
		for i := range sess.Messages {
			if strings.Contains(strings.ToLower(sess.Messages[i].Content), query) {
				hits = append(hits, searchHit{session: sess, message: &sess.Messages[i]})
			}
		}
		if len(hits) >= searchLimit {
			hits = hits[:searchLimit]
			break
		}
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(hits))
	for i, hit := range hits {
		if hit.message != nil {
			fmt.Printf("%d. %s [%s]\n", i+1, hit.session.Title(), speakerLabel(*hit.message))
			fmt.Printf("   %s\n", snippet(hit.message.Content, query))
		} else {
			fmt.Printf("%d. %s [%s]\n", i+1, hit.session.Title(), hit.field)
			fmt.Printf("   %s\n", snippet(hit.value, query))
		}
		if verbose {
			fmt.Printf("   Session: %s\n", hit.session.SessionID)
		}
		fmt.Println()
	}

	return nil
}

func matchBusinessContext(bc models.BusinessContext, query string) (string, string) {
	switch {
	case strings.Contains(strings.ToLower(bc.BusinessIdea), query):
		return "idea", bc.BusinessIdea
	case strings.Contains(strings.ToLower(bc.TargetCustomer), query):
		return "customer", bc.TargetCustomer
	case strings.Contains(strings.ToLower(bc.Problem), query):
		return "problem", bc.Problem
	}
	return "", ""
}

// snippet extracts a short excerpt centered on the first occurrence of query.
func snippet(content, query string) string {
	const window = 80

	flat := strings.ReplaceAll(content, "\n", " ")
	idx := strings.Index(strings.ToLower(flat), query)
	if idx < 0 {
		return models.Truncate(flat, window)
	}

	start := idx - window/3
	if start < 0 {
		start = 0
	}
	excerpt := models.Truncate(flat[start:], window)
	if start > 0 {
		excerpt = "..." + excerpt
	}
	return excerpt
}
