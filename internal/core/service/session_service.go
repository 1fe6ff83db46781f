package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/formahub/session-core/internal/api/metrics"
	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
	"github.com/formahub/session-core/pkg/token"
)

// clearTimeout bounds vault writes on paths that cannot surface an error
// (logout, forced clear).
const clearTimeout = 5 * time.Second

// SessionService is the single source of truth for "who is logged in".
// It owns the in-memory session state and keeps it in lockstep with the
// durable vault: the credential and identity always move as a pair.
type SessionService struct {
	vault    ports.SessionVault
	gateway  ports.AuthGateway
	notifier ports.LogoutNotifier
	validate *validator.Validate
	log      zerolog.Logger

	mu         sync.RWMutex
	credential string
	identity   *domain.Identity
	loading    bool
}

// NewSessionService builds a session store. The notifier carries best-effort
// logout notifications; pass nil to send them inline on a short-lived
// goroutine instead.
//
// The store starts in the loading state; call Initialize exactly once at
// startup to resolve it.
func NewSessionService(vault ports.SessionVault, gateway ports.AuthGateway, notifier ports.LogoutNotifier, log zerolog.Logger) *SessionService {
	return &SessionService{
		vault:    vault,
		gateway:  gateway,
		notifier: notifier,
		validate: validator.New(),
		log:      log,
		loading:  true,
	}
}

// Initialize attempts to restore a previous session from the vault. With no
// persisted credential it resolves to logged-out without any network call.
// With one, the identity is re-fetched; any failure clears the pair so a
// stale credential never survives a failed restoration.
//
// Initialize never returns an error: every failure is logged and normalized
// to "logged out". It always ends with the loading flag lowered.
func (s *SessionService) Initialize(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	stored, err := s.vault.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoSession) {
			s.log.Warn().Err(err).Msg("session restore: vault unreadable, starting logged out")
			s.clearVault("restore_failed")
		}
		return
	}

	identity, err := s.gateway.FetchIdentity(ctx)
	if err != nil {
		s.log.Info().Err(err).Msg("session restore: identity fetch failed, clearing stored session")
		s.clearVault("restore_failed")
		return
	}

	s.mu.Lock()
	s.credential = stored.Credential
	s.identity = identity
	s.mu.Unlock()

	// Refresh the persisted snapshot so the vault mirrors what the server
	// just reported.
	if err := s.vault.StoreIdentity(ctx, identity); err != nil {
		s.log.Warn().Err(err).Msg("session restore: could not refresh persisted identity")
	}

	metrics.SessionsRestoredTotal.Inc()
}

// loginInput is checked for presence only. The identifier's format is the
// server's call: it is an email address today, but nothing here should break
// if the backend starts accepting usernames.
type loginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// Login establishes a session. On success the credential/identity pair is
// persisted, the in-memory state updated, and the identity returned so the
// caller can decide where to navigate (role, onboarding). On any failure the
// session state is left untouched and the error propagates:
//
//   - *domain.EmailUnverifiedError when verification is pending,
//   - *domain.ValidationError when the input is malformed,
//   - *domain.AuthError or the transport error otherwise.
//
// Overlapping Login calls are not serialized; the last response to resolve
// wins.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	if err := s.validate.Struct(loginInput{Email: email, Password: password}); err != nil {
		return nil, invalidInput(err)
	}

	result, err := s.gateway.Login(ctx, email, password)
	if err != nil {
		var unverified *domain.EmailUnverifiedError
		if errors.As(err, &unverified) {
			metrics.LoginsTotal.WithLabelValues("unverified").Inc()
		} else {
			metrics.LoginsTotal.WithLabelValues("failure").Inc()
		}
		return nil, err
	}

	// A failed persist does not fail the login: the server session exists and
	// the in-memory state carries this run. The session just will not survive
	// a restart, same as a cleared vault.
	if err := s.vault.Store(ctx, ports.StoredSession{Credential: result.Token, Identity: result.Identity}); err != nil {
		s.log.Error().Err(err).Msg("login: session could not be persisted")
	}

	s.mu.Lock()
	s.credential = result.Token
	s.identity = result.Identity
	s.mu.Unlock()

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return result.Identity.Clone(), nil
}

// Register creates an account without establishing a session; the raw server
// payload is returned for the caller to display. Server-side field errors
// propagate as *domain.ValidationError.
func (s *SessionService) Register(ctx context.Context, input ports.RegisterInput) (json.RawMessage, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, invalidInput(err)
	}
	return s.gateway.Register(ctx, input)
}

// Logout clears the session. Local cleanup is synchronous and unconditional;
// the server-side invalidation is dispatched best-effort afterwards and its
// outcome is ignored. Logout never fails.
func (s *SessionService) Logout(ctx context.Context) {
	s.mu.Lock()
	credential := s.credential
	s.credential = ""
	s.identity = nil
	s.mu.Unlock()

	s.clearVault("logout")

	if credential == "" {
		return
	}
	if s.notifier != nil {
		s.notifier.Enqueue(credential)
		return
	}
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
		defer cancel()
		if err := s.gateway.NotifyLogout(notifyCtx, credential); err != nil {
			s.log.Debug().Err(err).Msg("logout: server notification failed")
		}
	}()
}

// FetchUser re-fetches the identity with the current credential and updates
// both the in-memory state and the persisted snapshot. Used after profile
// mutations elsewhere in the application. Failures are logged, not returned.
func (s *SessionService) FetchUser(ctx context.Context) {
	s.mu.RLock()
	active := s.credential != ""
	s.mu.RUnlock()
	if !active {
		return
	}

	identity, err := s.gateway.FetchIdentity(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("identity refresh failed")
		return
	}
	s.UpdateUser(identity)
}

// UpdateUser replaces the in-memory and persisted identity with one a caller
// already obtained from another response. No network call is made and the
// credential is untouched.
func (s *SessionService) UpdateUser(identity *domain.Identity) {
	if identity == nil {
		return
	}
	s.mu.Lock()
	s.identity = identity.Clone()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()
	if err := s.vault.StoreIdentity(ctx, identity); err != nil {
		s.log.Warn().Err(err).Msg("persisted identity could not be updated")
	}
}

// Snapshot returns the current session state for guard decisions.
func (s *SessionService) Snapshot() ports.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ports.Snapshot{Identity: s.identity.Clone(), Loading: s.loading}
}

// ClearSession drops the credential/identity pair in memory and in the
// vault. It is the atomic clear unit shared with the HTTP wrapper's 401
// path and never fails.
func (s *SessionService) ClearSession() {
	s.mu.Lock()
	s.credential = ""
	s.identity = nil
	s.mu.Unlock()

	s.clearVault("unauthorized")
}

// CredentialExpiresAt reports the expiry embedded in the bearer credential,
// if any. The token is inspected locally without signature verification, so
// this is advisory (UI affordances) and never gates an operation.
func (s *SessionService) CredentialExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	credential := s.credential
	s.mu.RUnlock()
	if credential == "" {
		return time.Time{}, false
	}

	claims, err := token.Inspect(credential)
	if err != nil || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

func (s *SessionService) clearVault(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()
	if err := s.vault.Clear(ctx); err != nil {
		s.log.Error().Err(err).Str("reason", reason).Msg("vault clear failed")
	}
	metrics.SessionClearsTotal.WithLabelValues(reason).Inc()
}

// invalidInput converts validator failures into the domain's per-field
// validation error so callers see one shape for local and server errors.
func invalidInput(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string][]string, len(ve))
	for _, fe := range ve {
		name := fieldName(fe)
		fields[name] = append(fields[name], fieldMessage(fe))
	}
	return &domain.ValidationError{Message: "invalid input", Fields: fields}
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "PasswordConfirmation":
		return "password_confirmation"
	default:
		return toSnake(fe.Field())
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "eqfield":
		return "does not match"
	default:
		return "is invalid"
	}
}

func toSnake(s string) string {
	out := make([]rune, 0, len(s)+4)
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
