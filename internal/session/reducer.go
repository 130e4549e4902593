package session

// Reduce applies an action to a state and returns the next state. It is a
// pure function: the input state is never mutated, and an action that
// changes nothing returns the input pointer unchanged, so callers detect
// no-ops by identity. Reduce cannot fail; an action that does not apply to
// the current state is a no-op.
func Reduce(s *State, action Action) *State {
	switch a := action.(type) {
	case SetSessionLoading:
		if s.SessionLoading == a.Loading {
			return s
		}
		next := *s
		next.SessionLoading = a.Loading
		return &next

	case SetSession:
		if a.Session != nil && s.Session != nil && a.Session.SessionID == s.Session.SessionID {
			return s
		}
		if a.Session == nil && s.Session == nil {
			return s
		}
		next := *s
		next.Session = a.Session
		next.SessionLoading = false
		return &next

	case AddMessage:
		if s.Session == nil {
			return s
		}
		next := *s
		sess := s.Session.Clone()
		sess.Messages = append(sess.Messages, a.Message)
		sess.MessageCount = len(sess.Messages)
		sess.Touch()
		next.Session = sess
		return &next

	case UpdateBusinessContext:
		if s.Session == nil {
			return s
		}
		merged := s.Session.BusinessContext.Merge(a.Patch)
		if merged == s.Session.BusinessContext {
			return s
		}
		next := *s
		sess := s.Session.Clone()
		sess.BusinessContext = merged
		sess.Touch()
		next.Session = sess
		return &next

	case SetQuestionnaire:
		if s.Session == nil {
			return s
		}
		next := *s
		sess := s.Session.Clone()
		sess.Questionnaire = a.Questionnaire.Clone()
		sess.Touch()
		next.Session = sess
		return &next

	case SetSessionStatus:
		if s.Session == nil || !a.Status.Valid() || s.Session.Status == a.Status {
			return s
		}
		next := *s
		sess := s.Session.Clone()
		sess.Status = a.Status
		sess.Touch()
		next.Session = sess
		return &next

	case UpdateSyncStatus:
		merged := s.Sync.Merge(a.Patch)
		if merged.Equal(s.Sync) {
			return s
		}
		next := *s
		next.Sync = merged
		return &next

	case MarkSessionSynced:
		if s.Session == nil || s.Session.SessionID != a.SessionID || !s.Session.IsLocal {
			return s
		}
		next := *s
		sess := s.Session.Clone()
		sess.IsLocal = false
		next.Session = sess
		return &next

	case ResetState:
		return NewState()
	}

	return s
}
