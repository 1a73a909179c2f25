package vault

import (
	"context"

	"github.com/ispacehq/ivault/pkg/audit"
	"github.com/ispacehq/ivault/pkg/session"
)

// Unlock runs the authentication challenge and records the outcome in
// the audit log. Concurrent calls coalesce onto one challenge.
func (s *Service) Unlock(ctx context.Context) error {
	err := s.session.RequestUnlock(ctx)
	if err != nil {
		s.auditError(audit.OpSessionUnlockFailed, "", "unlock", err)
		return err
	}
	s.auditSuccess(audit.OpSessionUnlock, "")
	return nil
}

// Lock relocks the session immediately.
func (s *Service) Lock() {
	s.session.Relock()
	s.auditSuccess(audit.OpSessionLock, "")
}

// SessionState returns the current lock state.
func (s *Service) SessionState() session.State {
	return s.session.State()
}
