package ports

import (
	"context"

	"github.com/formahub/session-core/internal/core/domain"
)

// StoredSession is the durable credential/identity pair. The two halves are
// written together and cleared together; a vault must never persist one
// without the other.
type StoredSession struct {
	Credential string
	Identity   *domain.Identity
}

// SessionVault persists the session pair across process restarts. It is the
// Go analog of the browser's durable key-value storage.
//
// Load and Credential return domain.ErrNoSession when nothing is persisted.
type SessionVault interface {
	Load(ctx context.Context) (StoredSession, error)
	Store(ctx context.Context, session StoredSession) error
	// StoreIdentity refreshes the persisted identity snapshot while keeping
	// the stored credential. Fails with domain.ErrNoSession when no session
	// exists to refresh.
	StoreIdentity(ctx context.Context, identity *domain.Identity) error
	// Credential is the fast path used on every outgoing request.
	Credential(ctx context.Context) (string, error)
	// Clear removes the pair. Clearing an empty vault is not an error.
	Clear(ctx context.Context) error
}
