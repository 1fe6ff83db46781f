package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
)

const (
	saltSize = 16
	keySize  = chacha20poly1305.KeySize

	// scrypt parameters: interactive-login strength, derived once per
	// vault open, not per request.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// FileVault persists the session pair in a single encrypted file. A bearer
// token on disk is a credential at rest, so the payload is sealed with
// ChaCha20-Poly1305 under a key derived from the passphrase with scrypt.
//
// File layout: salt (16 bytes) || nonce || ciphertext. Writes go through a
// temporary file plus rename, so the pair changes atomically and a crashed
// write can never leave half a session behind.
type FileVault struct {
	path       string
	passphrase []byte

	mu sync.Mutex
}

// NewFileVault stores the session at path, sealed under passphrase. The
// parent directory is created on first use.
func NewFileVault(path, passphrase string) (*FileVault, error) {
	if path == "" {
		return nil, fmt.Errorf("vault path must not be empty")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("vault passphrase must not be empty")
	}
	return &FileVault{path: path, passphrase: []byte(passphrase)}, nil
}

// filePayload is the cleartext content before sealing.
type filePayload struct {
	Credential string          `json:"credential"`
	Identity   json.RawMessage `json:"identity"`
}

func (v *FileVault) Load(_ context.Context) (ports.StoredSession, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	payload, err := v.read()
	if err != nil {
		return ports.StoredSession{}, err
	}
	identity, err := decodeIdentity(string(payload.Identity))
	if err != nil {
		return ports.StoredSession{}, err
	}
	return ports.StoredSession{Credential: payload.Credential, Identity: identity}, nil
}

func (v *FileVault) Store(_ context.Context, session ports.StoredSession) error {
	encoded, err := encodeIdentity(session.Identity)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.write(filePayload{
		Credential: session.Credential,
		Identity:   json.RawMessage(encoded),
	})
}

func (v *FileVault) StoreIdentity(_ context.Context, identity *domain.Identity) error {
	encoded, err := encodeIdentity(identity)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	payload, err := v.read()
	if err != nil {
		return err
	}
	payload.Identity = json.RawMessage(encoded)
	return v.write(payload)
}

func (v *FileVault) Credential(_ context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	payload, err := v.read()
	if err != nil {
		return "", err
	}
	return payload.Credential, nil
}

func (v *FileVault) Clear(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.Remove(v.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove vault file: %w", err)
	}
	return nil
}

func (v *FileVault) read() (filePayload, error) {
	raw, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return filePayload{}, domain.ErrNoSession
	}
	if err != nil {
		return filePayload{}, fmt.Errorf("read vault file: %w", err)
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSize {
		return filePayload{}, fmt.Errorf("vault file truncated")
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSize]
	ciphertext := raw[saltSize+chacha20poly1305.NonceSize:]

	aead, err := v.aead(salt)
	if err != nil {
		return filePayload{}, err
	}
	cleartext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return filePayload{}, fmt.Errorf("unseal vault file: %w", err)
	}

	var payload filePayload
	if err := json.Unmarshal(cleartext, &payload); err != nil {
		return filePayload{}, fmt.Errorf("decode vault payload: %w", err)
	}
	return payload, nil
}

func (v *FileVault) write(payload filePayload) error {
	cleartext, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode vault payload: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	aead, err := v.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := make([]byte, 0, saltSize+len(nonce)+len(cleartext)+aead.Overhead())
	sealed = append(sealed, salt...)
	sealed = append(sealed, nonce...)
	sealed = aead.Seal(sealed, nonce, cleartext, nil)

	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(v.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp vault file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write vault file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close vault file: %w", err)
	}
	if err := os.Rename(tmpName, v.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace vault file: %w", err)
	}
	return nil
}

func (v *FileVault) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(v.passphrase, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("initialise cipher: %w", err)
	}
	return aead, nil
}
