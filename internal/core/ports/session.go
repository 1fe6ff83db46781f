package ports

import "github.com/formahub/session-core/internal/core/domain"

// Snapshot is the session state a route guard decides on. Loading is true
// only while the initial restoration attempt is still in flight.
type Snapshot struct {
	Identity *domain.Identity
	Loading  bool
}

// SessionReader exposes the current session state without allowing mutation.
type SessionReader interface {
	Snapshot() Snapshot
}

// SessionClearer drops the credential/identity pair as one atomic logical
// unit, in memory and in the vault. Implementations never fail; a clear that
// cannot reach the vault still empties the in-memory state.
type SessionClearer interface {
	ClearSession()
}

// Navigator receives the forced navigation triggered by an invalid session.
// Injecting it keeps the HTTP wrapper testable without a real navigation
// environment.
type Navigator interface {
	// ToLogin navigates to the login view, replacing history so back
	// navigation does not return to the guarded route.
	ToLogin()
}

// LogoutNotifier accepts a best-effort server notification. Enqueue never
// blocks and the outcome is never reported back.
type LogoutNotifier interface {
	Enqueue(credential string)
}
