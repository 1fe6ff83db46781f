// Package vault provides durable session storage backends. Each backend
// persists the credential/identity pair as one unit: a reader can never
// observe a credential without its identity snapshot or vice versa.
//
// Backends:
//   - MemoryVault: process-local, for tests and throwaway sessions.
//   - FileVault:   encrypted at rest on the local filesystem (the
//     localStorage analog for desktop and CLI-embedded consumers).
//   - RedisVault:  shared storage for headless or multi-process consumers.
//   - MongoVault:  document storage for deployments already running MongoDB.
package vault

import (
	"encoding/json"
	"fmt"

	"github.com/formahub/session-core/internal/core/domain"
)

// Identity snapshots serialize through JSON in every backend so the
// persisted shape matches the wire shape, including the closed role/step
// decoding.
func encodeIdentity(identity *domain.Identity) (string, error) {
	if identity == nil {
		return "", fmt.Errorf("identity must not be nil")
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("encode identity: %w", err)
	}
	return string(raw), nil
}

func decodeIdentity(raw string) (*domain.Identity, error) {
	var identity domain.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, fmt.Errorf("decode stored identity: %w", err)
	}
	return &identity, nil
}
