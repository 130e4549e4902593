package parser

import (
	"strings"
	"testing"
)

const sampleTranscript = `---
business_idea: Neighborhood carsharing
target_customer: urban commuters
industry: mobility
status: completed
---

# Interview with a weekend driver

**Interviewer:** How often do you drive on weekdays?

**Participant:** Mostly weekends.
The car sits in the garage otherwise.

**Interviewer:** Would you lend it out for money?

**Participant:** Depends on the insurance story.
`

func TestParseTranscript_FullDocument(t *testing.T) {
	tr, err := ParseTranscript(sampleTranscript)
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}

	if got := tr.Field("business_idea"); got != "Neighborhood carsharing" {
		t.Errorf("Field(business_idea) = %q, want 'Neighborhood carsharing'", got)
	}
	if got := tr.Field("industry"); got != "mobility" {
		t.Errorf("Field(industry) = %q, want 'mobility'", got)
	}
	if got := tr.Field("missing"); got != "" {
		t.Errorf("Field(missing) = %q, want empty", got)
	}
	if tr.Title != "Interview with a weekend driver" {
		t.Errorf("Title = %q", tr.Title)
	}

	if len(tr.Turns) != 4 {
		t.Fatalf("got %d turns, want 4", len(tr.Turns))
	}

	wantSpeakers := []string{"Interviewer", "Participant", "Interviewer", "Participant"}
	for i, want := range wantSpeakers {
		if tr.Turns[i].Speaker != want {
			t.Errorf("turn[%d].Speaker = %q, want %q", i, tr.Turns[i].Speaker, want)
		}
	}

	if want := "Mostly weekends.\nThe car sits in the garage otherwise."; tr.Turns[1].Content != want {
		t.Errorf("turn[1].Content = %q, want %q", tr.Turns[1].Content, want)
	}
}

func TestParseTranscript_SpeakerForms(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantTurns   int
		wantSpeaker string
		wantContent string
	}{
		{
			name:        "bold label",
			content:     "**Interviewer:** How did you get here?",
			wantTurns:   1,
			wantSpeaker: "Interviewer",
			wantContent: "How did you get here?",
		},
		{
			name:        "plain label",
			content:     "Interviewer: How did you get here?",
			wantTurns:   1,
			wantSpeaker: "Interviewer",
			wantContent: "How did you get here?",
		},
		{
			name:        "plain label with full name",
			content:     "Dr. Sarah Chen: I bike to work.",
			wantTurns:   1,
			wantSpeaker: "Dr. Sarah Chen",
			wantContent: "I bike to work.",
		},
		{
			name:      "long prose with colon is not a turn",
			content:   "A note from the facilitator about scheduling and room changes: we moved twice.",
			wantTurns: 0,
		},
		{
			name:      "four-word label is not a turn",
			content:   "One two three four: not a speaker",
			wantTurns: 0,
		},
		{
			name:        "label with empty rest and continuation",
			content:     "**Participant:**\nIt depends on the season.",
			wantTurns:   1,
			wantSpeaker: "Participant",
			wantContent: "It depends on the season.",
		},
		{
			name:        "blank lines preserved inside a turn",
			content:     "**Participant:** First thought.\n\nSecond thought.",
			wantTurns:   1,
			wantSpeaker: "Participant",
			wantContent: "First thought.\n\nSecond thought.",
		},
		{
			name:      "url is not a speaker label",
			content:   "**Participant:** see https://example.com: nothing",
			wantTurns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := parseTurns(tt.content)

			if len(turns) != tt.wantTurns {
				t.Fatalf("got %d turns, want %d: %+v", len(turns), tt.wantTurns, turns)
			}
			if tt.wantTurns == 0 {
				return
			}
			if tt.wantSpeaker != "" && turns[0].Speaker != tt.wantSpeaker {
				t.Errorf("Speaker = %q, want %q", turns[0].Speaker, tt.wantSpeaker)
			}
			if tt.wantContent != "" && turns[0].Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", turns[0].Content, tt.wantContent)
			}
		})
	}
}

func TestParseTranscript_Errors(t *testing.T) {
	if _, err := ParseTranscript(""); err == nil {
		t.Error("empty input should fail")
	}
	if _, err := ParseTranscript("Just some prose.\nNo speakers anywhere.\n"); err == nil {
		t.Error("input without turns or frontmatter should fail")
	}

	// Frontmatter alone is a valid context-only transcript.
	tr, err := ParseTranscript("---\nbusiness_idea: something\n---\n")
	if err != nil {
		t.Fatalf("frontmatter-only input should parse: %v", err)
	}
	if len(tr.Turns) != 0 {
		t.Errorf("got %d turns, want 0", len(tr.Turns))
	}
}

func TestParseTranscript_BadYAMLIgnored(t *testing.T) {
	content := "---\n: : not yaml [\n---\n\n**Interviewer:** Still readable?\n"
	tr, err := ParseTranscript(content)
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}
	if len(tr.Frontmatter) != 0 {
		t.Errorf("bad YAML should leave frontmatter empty, got %v", tr.Frontmatter)
	}
	if len(tr.Turns) != 1 {
		t.Errorf("got %d turns, want 1", len(tr.Turns))
	}
}

func TestParseTranscript_CRLF(t *testing.T) {
	content := "---\r\nindustry: retail\r\n---\r\n\r\n**Interviewer:** Windows file?\r\n"
	tr, err := ParseTranscript(content)
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}
	if got := tr.Field("industry"); got != "retail" {
		t.Errorf("Field(industry) = %q, want 'retail'", got)
	}
	if len(tr.Turns) != 1 || tr.Turns[0].Content != "Windows file?" {
		t.Errorf("turns = %+v", tr.Turns)
	}
}

func TestIsInterviewer(t *testing.T) {
	tests := []struct {
		speaker string
		want    bool
	}{
		{"Interviewer", true},
		{"interviewer", true},
		{"  ME ", true},
		{"I", true},
		{"Q", true},
		{"user", true},
		{"Participant", false},
		{"Dr. Sarah Chen", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsInterviewer(tt.speaker); got != tt.want {
			t.Errorf("IsInterviewer(%q) = %v, want %v", tt.speaker, got, tt.want)
		}
	}
}

func TestRenderTranscript_RoundTrip(t *testing.T) {
	original := &Transcript{
		Frontmatter: map[string]any{
			"business_idea": "Tool lending library",
			"industry":      "community",
		},
		Title: "Interview with a hobbyist",
		Turns: []Turn{
			{Speaker: "Interviewer", Content: "What was the last tool you bought?"},
			{Speaker: "Participant", Content: "A tile saw.\nUsed it exactly once."},
		},
	}

	rendered, err := RenderTranscript(original)
	if err != nil {
		t.Fatalf("RenderTranscript() error = %v", err)
	}
	if !strings.HasPrefix(rendered, "---\n") {
		t.Errorf("rendered output should start with frontmatter, got:\n%s", rendered)
	}

	parsed, err := ParseTranscript(rendered)
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}

	if parsed.Title != original.Title {
		t.Errorf("Title = %q, want %q", parsed.Title, original.Title)
	}
	if got := parsed.Field("business_idea"); got != "Tool lending library" {
		t.Errorf("Field(business_idea) = %q", got)
	}
	if len(parsed.Turns) != len(original.Turns) {
		t.Fatalf("got %d turns, want %d", len(parsed.Turns), len(original.Turns))
	}
	for i := range original.Turns {
		if parsed.Turns[i].Speaker != original.Turns[i].Speaker {
			t.Errorf("turn[%d].Speaker = %q, want %q", i, parsed.Turns[i].Speaker, original.Turns[i].Speaker)
		}
		if parsed.Turns[i].Content != original.Turns[i].Content {
			t.Errorf("turn[%d].Content = %q, want %q", i, parsed.Turns[i].Content, original.Turns[i].Content)
		}
	}
}

func TestRenderTranscript_NoFrontmatter(t *testing.T) {
	tr := &Transcript{
		Frontmatter: map[string]any{},
		Turns: []Turn{
			{Speaker: "Interviewer", Content: "Anything else?"},
		},
	}

	rendered, err := RenderTranscript(tr)
	if err != nil {
		t.Fatalf("RenderTranscript() error = %v", err)
	}
	if strings.HasPrefix(rendered, "---") {
		t.Errorf("rendered output should not have frontmatter, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "**Interviewer:** Anything else?") {
		t.Errorf("rendered output missing turn, got:\n%s", rendered)
	}
}
