package vault

import (
	"context"
	"sync"

	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
)

// MemoryVault keeps the session pair in process memory. Nothing survives a
// restart, which is exactly what tests and ephemeral sessions want.
type MemoryVault struct {
	mu      sync.RWMutex
	session *ports.StoredSession
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{}
}

func (v *MemoryVault) Load(_ context.Context) (ports.StoredSession, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.session == nil {
		return ports.StoredSession{}, domain.ErrNoSession
	}
	return ports.StoredSession{
		Credential: v.session.Credential,
		Identity:   v.session.Identity.Clone(),
	}, nil
}

func (v *MemoryVault) Store(_ context.Context, session ports.StoredSession) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.session = &ports.StoredSession{
		Credential: session.Credential,
		Identity:   session.Identity.Clone(),
	}
	return nil
}

func (v *MemoryVault) StoreIdentity(_ context.Context, identity *domain.Identity) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil {
		return domain.ErrNoSession
	}
	v.session.Identity = identity.Clone()
	return nil
}

func (v *MemoryVault) Credential(_ context.Context) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.session == nil {
		return "", domain.ErrNoSession
	}
	return v.session.Credential, nil
}

func (v *MemoryVault) Clear(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.session = nil
	return nil
}
