package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
	"github.com/formahub/session-core/pkg/logger"
)

// stubVault is an in-memory ports.SessionVault that records call counts.
type stubVault struct {
	session  *ports.StoredSession
	storeErr error

	storeCalls int
	clearCalls int
}

func (v *stubVault) Load(_ context.Context) (ports.StoredSession, error) {
	if v.session == nil {
		return ports.StoredSession{}, domain.ErrNoSession
	}
	return *v.session, nil
}

func (v *stubVault) Store(_ context.Context, session ports.StoredSession) error {
	v.storeCalls++
	if v.storeErr != nil {
		return v.storeErr
	}
	v.session = &session
	return nil
}

func (v *stubVault) StoreIdentity(_ context.Context, identity *domain.Identity) error {
	if v.session == nil {
		return domain.ErrNoSession
	}
	v.session.Identity = identity.Clone()
	return nil
}

func (v *stubVault) Credential(_ context.Context) (string, error) {
	if v.session == nil {
		return "", domain.ErrNoSession
	}
	return v.session.Credential, nil
}

func (v *stubVault) Clear(_ context.Context) error {
	v.clearCalls++
	v.session = nil
	return nil
}

// stubGateway is a programmable ports.AuthGateway.
type stubGateway struct {
	fetchFn  func(ctx context.Context) (*domain.Identity, error)
	loginFn  func(ctx context.Context, email, password string) (*ports.LoginResult, error)
	regFn    func(ctx context.Context, input ports.RegisterInput) (json.RawMessage, error)
	logoutFn func(ctx context.Context, credential string) error

	fetchCalls int
}

func (g *stubGateway) FetchIdentity(ctx context.Context) (*domain.Identity, error) {
	g.fetchCalls++
	return g.fetchFn(ctx)
}

func (g *stubGateway) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	return g.loginFn(ctx, email, password)
}

func (g *stubGateway) Register(ctx context.Context, input ports.RegisterInput) (json.RawMessage, error) {
	return g.regFn(ctx, input)
}

func (g *stubGateway) NotifyLogout(ctx context.Context, credential string) error {
	return g.logoutFn(ctx, credential)
}

// stubNotifier records enqueued credentials.
type stubNotifier struct {
	enqueued []string
}

func (n *stubNotifier) Enqueue(credential string) {
	n.enqueued = append(n.enqueued, credential)
}

func learner() *domain.Identity {
	return &domain.Identity{
		ID:    1,
		Name:  "Amina",
		Email: "amina@example.com",
		Role:  domain.RoleLearner,
	}
}

func newService(vault *stubVault, gw *stubGateway, notifier ports.LogoutNotifier) *SessionService {
	return NewSessionService(vault, gw, notifier, logger.Silent())
}

func TestInitialize_NoStoredCredential(t *testing.T) {
	vault := &stubVault{}
	gw := &stubGateway{
		fetchFn: func(ctx context.Context) (*domain.Identity, error) {
			return nil, errors.New("should not be called")
		},
	}
	svc := newService(vault, gw, nil)

	svc.Initialize(context.Background())

	snap := svc.Snapshot()
	if snap.Loading {
		t.Fatalf("loading should be false after Initialize")
	}
	if snap.Identity != nil {
		t.Fatalf("expected no identity, got %+v", snap.Identity)
	}
	if gw.fetchCalls != 0 {
		t.Fatalf("no network call expected without a stored credential, got %d", gw.fetchCalls)
	}
}

func TestInitialize_StaleCredentialCleared(t *testing.T) {
	vault := &stubVault{session: &ports.StoredSession{Credential: "tok-stale", Identity: learner()}}
	gw := &stubGateway{
		fetchFn: func(ctx context.Context) (*domain.Identity, error) {
			return nil, errors.New("401 unauthorized")
		},
	}
	svc := newService(vault, gw, nil)

	svc.Initialize(context.Background())

	snap := svc.Snapshot()
	if snap.Loading {
		t.Fatalf("loading should be false")
	}
	if snap.Identity != nil {
		t.Fatalf("expected no identity after failed restore")
	}
	if vault.session != nil {
		t.Fatalf("stale credential must not survive a failed restore")
	}
}

func TestInitialize_RestoresSession(t *testing.T) {
	vault := &stubVault{session: &ports.StoredSession{Credential: "tok-A", Identity: learner()}}
	fresh := learner()
	fresh.Name = "Amina B."
	gw := &stubGateway{
		fetchFn: func(ctx context.Context) (*domain.Identity, error) {
			return fresh, nil
		},
	}
	svc := newService(vault, gw, nil)

	svc.Initialize(context.Background())

	snap := svc.Snapshot()
	if snap.Loading {
		t.Fatalf("loading should be false")
	}
	if snap.Identity == nil || snap.Identity.Role != domain.RoleLearner {
		t.Fatalf("unexpected identity: %+v", snap.Identity)
	}
	if vault.session == nil || vault.session.Credential != "tok-A" {
		t.Fatalf("credential should be kept after successful restore")
	}
	if vault.session.Identity.Name != "Amina B." {
		t.Fatalf("persisted identity snapshot should be refreshed")
	}
}

func TestLogin_Success(t *testing.T) {
	vault := &stubVault{}
	trainer := &domain.Identity{
		ID:              2,
		Email:           "t@example.com",
		Role:            domain.RoleTrainer,
		NeedsOnboarding: true,
		OnboardingStep:  domain.StepRole,
	}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			if email != "t@example.com" || password != "pw123456" {
				t.Fatalf("unexpected credentials: %s", email)
			}
			return &ports.LoginResult{Token: "tok-B", Identity: trainer}, nil
		},
	}
	svc := newService(vault, gw, nil)

	identity, err := svc.Login(context.Background(), "t@example.com", "pw123456")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if identity.Role != domain.RoleTrainer || !identity.NeedsOnboarding {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if vault.session == nil || vault.session.Credential != "tok-B" {
		t.Fatalf("credential not persisted")
	}
	if vault.session.Identity == nil || vault.session.Identity.ID != 2 {
		t.Fatalf("identity not persisted alongside credential")
	}
}

func TestLogin_PersistFailureKeepsInMemorySession(t *testing.T) {
	vault := &stubVault{storeErr: errors.New("disk full")}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{Token: "tok-B", Identity: learner()}, nil
		},
	}
	svc := newService(vault, gw, nil)

	identity, err := svc.Login(context.Background(), "amina@example.com", "pw123456")
	if err != nil {
		t.Fatalf("login must not fail on a persist error: %v", err)
	}
	if identity == nil {
		t.Fatalf("expected an identity")
	}

	// The session carries this run in memory; it just will not survive a
	// restart.
	if svc.Snapshot().Identity == nil {
		t.Fatalf("in-memory session must be established")
	}
	if vault.session != nil {
		t.Fatalf("nothing should be persisted when the store fails")
	}
}

func TestLogin_EmailUnverified(t *testing.T) {
	vault := &stubVault{}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return nil, &domain.EmailUnverifiedError{Email: email, Message: "verify first"}
		},
	}
	svc := newService(vault, gw, nil)

	_, err := svc.Login(context.Background(), "a@b.com", "pw123456")

	var unverified *domain.EmailUnverifiedError
	if !errors.As(err, &unverified) {
		t.Fatalf("expected EmailUnverifiedError, got %v", err)
	}
	if unverified.Email != "a@b.com" {
		t.Fatalf("error should carry the email, got %q", unverified.Email)
	}
	if vault.session != nil || vault.storeCalls != 0 {
		t.Fatalf("session state must not be mutated on unverified login")
	}
	if svc.Snapshot().Identity != nil {
		t.Fatalf("in-memory identity must stay nil")
	}
}

func TestLogin_FailurePropagatesUnchanged(t *testing.T) {
	vault := &stubVault{}
	authErr := &domain.AuthError{StatusCode: 401, Message: "invalid credentials"}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return nil, authErr
		},
	}
	svc := newService(vault, gw, nil)

	_, err := svc.Login(context.Background(), "a@b.com", "wrongpass")
	if !errors.Is(err, authErr) {
		t.Fatalf("expected the gateway error unchanged, got %v", err)
	}
	if vault.session != nil {
		t.Fatalf("session state must not be mutated on failed login")
	}
}

func TestLogin_RejectsMissingInputLocally(t *testing.T) {
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			t.Fatalf("gateway must not be reached for missing input")
			return nil, nil
		},
	}
	svc := newService(&stubVault{}, gw, nil)

	_, err := svc.Login(context.Background(), "", "pw123456")

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.FieldErrors("email")) == 0 {
		t.Fatalf("expected an email field error, got %+v", ve.Fields)
	}
}

func TestLogin_IdentifierFormatLeftToServer(t *testing.T) {
	// Only presence is checked locally; whether "karim42" is a valid
	// identifier is the backend's decision.
	reached := false
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			reached = true
			return &ports.LoginResult{Token: "tok-B", Identity: learner()}, nil
		},
	}
	svc := newService(&stubVault{}, gw, nil)

	if _, err := svc.Login(context.Background(), "karim42", "pw123456"); err != nil {
		t.Fatalf("non-email identifier must pass through: %v", err)
	}
	if !reached {
		t.Fatalf("gateway should have been reached")
	}
}

func TestRegister_NoSessionEstablished(t *testing.T) {
	vault := &stubVault{}
	gw := &stubGateway{
		regFn: func(ctx context.Context, input ports.RegisterInput) (json.RawMessage, error) {
			return json.RawMessage(`{"message":"check your inbox"}`), nil
		},
	}
	svc := newService(vault, gw, nil)

	payload, err := svc.Register(context.Background(), ports.RegisterInput{
		Name:                 "Karim",
		Email:                "karim@example.com",
		Password:             "pw123456",
		PasswordConfirmation: "pw123456",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if string(payload) != `{"message":"check your inbox"}` {
		t.Fatalf("raw payload should pass through, got %s", payload)
	}
	if vault.session != nil || svc.Snapshot().Identity != nil {
		t.Fatalf("registration must not establish a session")
	}
}

func TestRegister_PasswordConfirmationMismatch(t *testing.T) {
	svc := newService(&stubVault{}, &stubGateway{}, nil)

	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Name:                 "Karim",
		Email:                "karim@example.com",
		Password:             "pw123456",
		PasswordConfirmation: "different",
	})

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.FieldErrors("password_confirmation")) == 0 {
		t.Fatalf("expected password_confirmation error, got %+v", ve.Fields)
	}
}

func TestLogout_ClearsEverythingAndNotifies(t *testing.T) {
	vault := &stubVault{}
	notifier := &stubNotifier{}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{Token: "tok-C", Identity: learner()}, nil
		},
	}
	svc := newService(vault, gw, notifier)

	if _, err := svc.Login(context.Background(), "amina@example.com", "pw123456"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	svc.Logout(context.Background())

	if vault.session != nil {
		t.Fatalf("persisted credential and identity must be absent after logout")
	}
	if svc.Snapshot().Identity != nil {
		t.Fatalf("in-memory identity must be nil after logout")
	}
	if len(notifier.enqueued) != 1 || notifier.enqueued[0] != "tok-C" {
		t.Fatalf("logout notification should carry the old credential, got %v", notifier.enqueued)
	}
}

func TestLogout_WithoutSessionIsSilent(t *testing.T) {
	vault := &stubVault{}
	notifier := &stubNotifier{}
	svc := newService(vault, &stubGateway{}, notifier)

	svc.Logout(context.Background())

	if len(notifier.enqueued) != 0 {
		t.Fatalf("no notification expected without a credential")
	}
	if vault.clearCalls == 0 {
		t.Fatalf("vault should still be cleared")
	}
}

func TestFetchUser_UpdatesStateAndVault(t *testing.T) {
	vault := &stubVault{}
	renamed := learner()
	renamed.Name = "Amina Renamed"
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{Token: "tok-D", Identity: learner()}, nil
		},
		fetchFn: func(ctx context.Context) (*domain.Identity, error) {
			return renamed, nil
		},
	}
	svc := newService(vault, gw, nil)

	if _, err := svc.Login(context.Background(), "amina@example.com", "pw123456"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	svc.FetchUser(context.Background())

	if got := svc.Snapshot().Identity.Name; got != "Amina Renamed" {
		t.Fatalf("in-memory identity not refreshed: %q", got)
	}
	if vault.session.Identity.Name != "Amina Renamed" {
		t.Fatalf("persisted identity not refreshed")
	}
	if vault.session.Credential != "tok-D" {
		t.Fatalf("credential must be untouched by an identity refresh")
	}
}

func TestFetchUser_FailureLeavesStateUntouched(t *testing.T) {
	vault := &stubVault{}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{Token: "tok-E", Identity: learner()}, nil
		},
		fetchFn: func(ctx context.Context) (*domain.Identity, error) {
			return nil, errors.New("boom")
		},
	}
	svc := newService(vault, gw, nil)

	if _, err := svc.Login(context.Background(), "amina@example.com", "pw123456"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	svc.FetchUser(context.Background())

	if svc.Snapshot().Identity == nil {
		t.Fatalf("failed refresh must not drop the session")
	}
	if vault.session == nil || vault.session.Credential != "tok-E" {
		t.Fatalf("failed refresh must not touch the vault")
	}
}

func TestUpdateUser_LocalReplacement(t *testing.T) {
	vault := &stubVault{}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{Token: "tok-F", Identity: learner()}, nil
		},
		fetchFn: func(ctx context.Context) (*domain.Identity, error) {
			t.Fatalf("UpdateUser must not hit the network")
			return nil, nil
		},
	}
	svc := newService(vault, gw, nil)

	if _, err := svc.Login(context.Background(), "amina@example.com", "pw123456"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	fresh := learner()
	fresh.NeedsOnboarding = true
	fresh.OnboardingStep = domain.StepPrivacyPolicy
	svc.UpdateUser(fresh)

	snap := svc.Snapshot()
	if !snap.Identity.NeedsOnboarding || snap.Identity.OnboardingStep != domain.StepPrivacyPolicy {
		t.Fatalf("identity not replaced: %+v", snap.Identity)
	}
	if vault.session.Identity.OnboardingStep != domain.StepPrivacyPolicy {
		t.Fatalf("persisted identity not replaced")
	}
}

func TestClearSession_AtomicPair(t *testing.T) {
	vault := &stubVault{}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{Token: "tok-G", Identity: learner()}, nil
		},
	}
	svc := newService(vault, gw, nil)

	if _, err := svc.Login(context.Background(), "amina@example.com", "pw123456"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	svc.ClearSession()

	if vault.session != nil {
		t.Fatalf("vault must hold neither credential nor identity")
	}
	if svc.Snapshot().Identity != nil {
		t.Fatalf("in-memory identity must be nil")
	}
}

func TestCredentialExpiresAt(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": expiry.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	vault := &stubVault{}
	gw := &stubGateway{
		loginFn: func(ctx context.Context, email, password string) (*ports.LoginResult, error) {
			return &ports.LoginResult{Token: signed, Identity: learner()}, nil
		},
	}
	svc := newService(vault, gw, nil)

	if _, ok := svc.CredentialExpiresAt(); ok {
		t.Fatalf("no expiry expected before login")
	}

	if _, err := svc.Login(context.Background(), "amina@example.com", "pw123456"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	got, ok := svc.CredentialExpiresAt()
	if !ok {
		t.Fatalf("expected an expiry")
	}
	if !got.Equal(expiry) {
		t.Fatalf("expected %v, got %v", expiry, got)
	}
}
