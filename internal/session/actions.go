package session

import (
	"fieldwork/internal/models"
)

// Action is a request for a state transition. The interface is sealed; the
// complete set of transitions is the action types in this package, and
// Reduce handles every one of them.
type Action interface {
	// Name returns the action's wire-style name for logs.
	Name() string
	isAction()
}

// SetSessionLoading toggles the loading flag while a session load is in
// flight.
type SetSessionLoading struct {
	Loading bool
}

func (SetSessionLoading) Name() string { return "SET_SESSION_LOADING" }
func (SetSessionLoading) isAction()    {}

// SetSession replaces the loaded session. A nil payload clears it. Setting
// a session with the same id as the current one is a no-op; the loaded copy
// stays authoritative.
type SetSession struct {
	Session *models.Session
}

func (SetSession) Name() string { return "SET_SESSION" }
func (SetSession) isAction()    {}

// AddMessage appends one message to the loaded session's conversation.
type AddMessage struct {
	Message models.Message
}

func (AddMessage) Name() string { return "ADD_MESSAGE" }
func (AddMessage) isAction()    {}

// UpdateBusinessContext shallow-merges a patch into the loaded session's
// business context.
type UpdateBusinessContext struct {
	Patch models.BusinessContextPatch
}

func (UpdateBusinessContext) Name() string { return "UPDATE_BUSINESS_CONTEXT" }
func (UpdateBusinessContext) isAction()    {}

// SetQuestionnaire replaces the loaded session's questionnaire wholesale.
type SetQuestionnaire struct {
	Questionnaire models.Questionnaire
}

func (SetQuestionnaire) Name() string { return "SET_QUESTIONNAIRE" }
func (SetQuestionnaire) isAction()    {}

// SetSessionStatus moves the loaded session through its lifecycle.
type SetSessionStatus struct {
	Status models.Status
}

func (SetSessionStatus) Name() string { return "SET_SESSION_STATUS" }
func (SetSessionStatus) isAction()    {}

// UpdateSyncStatus shallow-merges a patch into the sync status.
type UpdateSyncStatus struct {
	Patch models.SyncStatusPatch
}

func (UpdateSyncStatus) Name() string { return "UPDATE_SYNC_STATUS" }
func (UpdateSyncStatus) isAction()    {}

// MarkSessionSynced clears the is_local flag on the loaded session after
// the backend accepted it. Sync bookkeeping does not touch updated_at.
type MarkSessionSynced struct {
	SessionID string
}

func (MarkSessionSynced) Name() string { return "MARK_SESSION_SYNCED" }
func (MarkSessionSynced) isAction()    {}

// ResetState drops everything back to the initial state.
type ResetState struct{}

func (ResetState) Name() string { return "RESET_STATE" }
func (ResetState) isAction()    {}
