package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var slugStrip = regexp.MustCompile(`[^a-z0-9\-]`)

// Slugify normalizes a name for use in storage keys: lowercase, spaces and
// underscores become hyphens, everything else non-alphanumeric is dropped.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	return slugStrip.ReplaceAllString(s, "")
}

// Truncate shortens s to maxLen characters, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// RelativeTime formats t as a short human-readable age for list output.
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
