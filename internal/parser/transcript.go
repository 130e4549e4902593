// Package parser provides Markdown transcript parsing and rendering.
package parser

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transcript represents a parsed interview transcript.
type Transcript struct {
	// Frontmatter metadata (from YAML)
	Frontmatter map[string]any

	// Title extracted from first h1 or frontmatter
	Title string

	// Turns in conversation order
	Turns []Turn
}

// Turn represents one speaker turn in the transcript.
type Turn struct {
	Speaker string // The speaker label as written
	Content string // The turn's text, trimmed
	Start   int    // Line number where the turn starts
}

var (
	// **Interviewer:** How often do you drive?
	boldSpeakerRegex = regexp.MustCompile(`^\*\*([^:*]+):\*\*\s*(.*)$`)

	// Interviewer: How often do you drive?
	plainSpeakerRegex = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 .'-]{0,40}):\s+(.+)$`)

	headingRegex = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
)

// ParseTranscript parses a Markdown interview transcript into structured
// form. Turns start at a bold or plain speaker label; unlabeled lines
// continue the current turn.
func ParseTranscript(content string) (*Transcript, error) {
	t := &Transcript{
		Frontmatter: make(map[string]any),
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")

	// Parse frontmatter if present
	remaining := content
	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx > 0 {
			frontmatterYAML := content[4 : 4+endIdx]
			remaining = strings.TrimPrefix(content[4+endIdx+4:], "\n")

			if err := yaml.Unmarshal([]byte(frontmatterYAML), &t.Frontmatter); err != nil {
				// Ignore YAML errors, just use empty frontmatter
				t.Frontmatter = make(map[string]any)
			}
		}
	}

	t.Title = extractTranscriptTitle(t.Frontmatter, remaining)
	t.Turns = parseTurns(remaining)

	if len(t.Turns) == 0 && len(t.Frontmatter) == 0 {
		return nil, fmt.Errorf("no speaker turns or frontmatter found")
	}
	return t, nil
}

// extractTranscriptTitle gets the title from frontmatter or the first h1.
func extractTranscriptTitle(fm map[string]any, content string) string {
	if title, ok := fm["title"].(string); ok && title != "" {
		return title
	}

	h1Regex := regexp.MustCompile(`(?m)^#\s+(.+)$`)
	if match := h1Regex.FindStringSubmatch(content); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}

	return ""
}

// parseTurns extracts speaker turns from transcript content.
func parseTurns(content string) []Turn {
	var turns []Turn

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	var current *Turn
	var contentBuilder strings.Builder

	flushTurn := func() {
		if current != nil {
			current.Content = strings.TrimSpace(contentBuilder.String())
			if current.Content != "" {
				turns = append(turns, *current)
			}
			contentBuilder.Reset()
			current = nil
		}
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if speaker, rest, ok := matchSpeaker(line); ok {
			flushTurn()
			current = &Turn{Speaker: speaker, Start: lineNum}
			if rest != "" {
				contentBuilder.WriteString(rest)
				contentBuilder.WriteString("\n")
			}
			continue
		}

		// Headings outside a turn carry the title, not conversation.
		if current == nil && headingRegex.MatchString(line) {
			continue
		}

		if current != nil {
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		}
	}
	flushTurn()

	return turns
}

// matchSpeaker reports whether the line opens a new speaker turn. The
// plain form is limited to short labels so prose with a colon does not
// start a turn.
func matchSpeaker(line string) (speaker, rest string, ok bool) {
	if match := boldSpeakerRegex.FindStringSubmatch(line); len(match) > 0 {
		return strings.TrimSpace(match[1]), strings.TrimSpace(match[2]), true
	}
	if match := plainSpeakerRegex.FindStringSubmatch(line); len(match) > 0 {
		label := strings.TrimSpace(match[1])
		if len(strings.Fields(label)) <= 3 {
			return label, strings.TrimSpace(match[2]), true
		}
	}
	return "", "", false
}

// interviewerLabels are speaker labels treated as the interviewer side of
// the conversation.
var interviewerLabels = map[string]bool{
	"interviewer": true,
	"me":          true,
	"i":           true,
	"user":        true,
	"q":           true,
}

// IsInterviewer reports whether the speaker label names the interviewer.
func IsInterviewer(speaker string) bool {
	return interviewerLabels[strings.ToLower(strings.TrimSpace(speaker))]
}

// Field extracts a string from frontmatter.
func (t *Transcript) Field(key string) string {
	if v, ok := t.Frontmatter[key].(string); ok {
		return v
	}
	return ""
}

// RenderTranscript renders the transcript back to Markdown with YAML
// frontmatter. Rendering then parsing yields the same turns.
func RenderTranscript(t *Transcript) (string, error) {
	var b strings.Builder

	if len(t.Frontmatter) > 0 {
		fm, err := yaml.Marshal(t.Frontmatter)
		if err != nil {
			return "", fmt.Errorf("marshal frontmatter: %w", err)
		}
		b.WriteString("---\n")
		b.Write(fm)
		b.WriteString("---\n\n")
	}

	if t.Title != "" {
		b.WriteString("# ")
		b.WriteString(t.Title)
		b.WriteString("\n\n")
	}

	for i, turn := range t.Turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("**")
		b.WriteString(turn.Speaker)
		b.WriteString(":** ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}

	return b.String(), nil
}
