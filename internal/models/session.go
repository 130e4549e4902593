// Package models defines data structures for fieldwork research sessions.
package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultIndustry is used when no industry is provided.
const DefaultIndustry = "general"

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// BusinessContext holds the business framing of a research session.
type BusinessContext struct {
	BusinessIdea   string `json:"business_idea"`
	TargetCustomer string `json:"target_customer"`
	Problem        string `json:"problem"`
	Industry       string `json:"industry"`
}

// BusinessContextPatch is a partial update of a BusinessContext.
// Nil fields are left unchanged.
type BusinessContextPatch struct {
	BusinessIdea   *string
	TargetCustomer *string
	Problem        *string
	Industry       *string
}

// Merge returns the context with the patch's non-nil fields applied.
func (c BusinessContext) Merge(p BusinessContextPatch) BusinessContext {
	if p.BusinessIdea != nil {
		c.BusinessIdea = *p.BusinessIdea
	}
	if p.TargetCustomer != nil {
		c.TargetCustomer = *p.TargetCustomer
	}
	if p.Problem != nil {
		c.Problem = *p.Problem
	}
	if p.Industry != nil {
		c.Industry = *p.Industry
	}
	return c
}

// Stakeholder describes a person or group relevant to the research.
type Stakeholder struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

// QuestionSet holds generated interview questions grouped by purpose.
type QuestionSet struct {
	ProblemDiscovery   []string `json:"problem_discovery,omitempty"`
	SolutionValidation []string `json:"solution_validation,omitempty"`
	FollowUp           []string `json:"follow_up,omitempty"`
}

// Total returns the number of questions across all groups.
func (q QuestionSet) Total() int {
	return len(q.ProblemDiscovery) + len(q.SolutionValidation) + len(q.FollowUp)
}

// Questionnaire holds stakeholder analysis and generated questions for a session.
type Questionnaire struct {
	PrimaryStakeholders   []Stakeholder `json:"primary_stakeholders,omitempty"`
	SecondaryStakeholders []Stakeholder `json:"secondary_stakeholders,omitempty"`
	TimeEstimate          string        `json:"time_estimate,omitempty"`
	Questions             QuestionSet   `json:"questions"`
	Generated             bool          `json:"generated"`
	GeneratedAt           *time.Time    `json:"generated_at,omitempty"`
}

// Clone returns a deep copy of the questionnaire.
func (q Questionnaire) Clone() Questionnaire {
	q.PrimaryStakeholders = slices.Clone(q.PrimaryStakeholders)
	q.SecondaryStakeholders = slices.Clone(q.SecondaryStakeholders)
	q.Questions.ProblemDiscovery = slices.Clone(q.Questions.ProblemDiscovery)
	q.Questions.SolutionValidation = slices.Clone(q.Questions.SolutionValidation)
	q.Questions.FollowUp = slices.Clone(q.Questions.FollowUp)
	if q.GeneratedAt != nil {
		t := *q.GeneratedAt
		q.GeneratedAt = &t
	}
	return q
}

// Session is a persisted unit of a research conversation plus its derived
// business context and questionnaire data.
type Session struct {
	SessionID       string          `json:"session_id"`
	BusinessContext BusinessContext `json:"business_context"`
	Messages        []Message       `json:"messages"`
	Questionnaire   Questionnaire   `json:"questionnaire"`
	Status          Status          `json:"status"`
	IsLocal         bool            `json:"is_local"`
	MessageCount    int             `json:"message_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewSession creates a local session with a fresh ID and timestamps.
func NewSession(bc BusinessContext) *Session {
	if bc.Industry == "" {
		bc.Industry = DefaultIndustry
	}
	now := time.Now().UTC()
	return &Session{
		SessionID:       uuid.NewString(),
		BusinessContext: bc,
		Messages:        []Message{},
		Status:          StatusActive,
		IsLocal:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Touch bumps UpdatedAt. The new value is strictly greater than the old one
// even if the wall clock stepped backwards.
func (s *Session) Touch() {
	now := time.Now().UTC()
	if !now.After(s.UpdatedAt) {
		now = s.UpdatedAt.Add(time.Millisecond)
	}
	s.UpdatedAt = now
}

// Clone returns a deep copy. Mutating the clone's messages or questionnaire
// does not affect the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	for i := range c.Messages {
		c.Messages[i].Metadata = cloneMetadata(c.Messages[i].Metadata)
	}
	c.Questionnaire = s.Questionnaire.Clone()
	return &c
}

// Normalize repairs a session read from storage or the wire: fills defaults,
// recomputes the message count, and clamps timestamp damage. Call it at every
// deserialization boundary before the session is used.
func (s *Session) Normalize() {
	if s.BusinessContext.Industry == "" {
		s.BusinessContext.Industry = DefaultIndustry
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	s.MessageCount = len(s.Messages)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		s.UpdatedAt = s.CreatedAt
	}
}

// Validate reports hard violations that Normalize cannot repair.
func (s *Session) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session has no session_id")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid session status %q", s.Status)
	}
	for i, m := range s.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
	}
	return nil
}

// NewerThan reports whether this session's copy should win over other under
// last-write-wins by updated_at. A nil other never wins.
func (s *Session) NewerThan(other *Session) bool {
	if other == nil {
		return true
	}
	return s.UpdatedAt.After(other.UpdatedAt)
}

// Title derives a short display name from the business idea.
func (s *Session) Title() string {
	if s.BusinessContext.BusinessIdea != "" {
		return Truncate(s.BusinessContext.BusinessIdea, 50)
	}
	return "(untitled session)"
}
