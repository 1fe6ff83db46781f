package ports

import (
	"context"
	"encoding/json"

	"github.com/formahub/session-core/internal/core/domain"
)

// LoginResult is a successfully established server session.
type LoginResult struct {
	Token    string
	Identity *domain.Identity
}

// RegisterInput is the payload for account creation. Registration never
// establishes a session; the user must verify their email first.
type RegisterInput struct {
	Name                 string `json:"name" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// AuthGateway is the session core's entire network surface: exactly four
// operations against the Formahub REST backend.
type AuthGateway interface {
	// FetchIdentity validates the current credential and returns the
	// identity it belongs to.
	FetchIdentity(ctx context.Context) (*domain.Identity, error)
	// Login exchanges credentials for a bearer token. An account with a
	// pending email verification fails with *domain.EmailUnverifiedError.
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	// Register creates an account and returns the raw server payload.
	// Field errors surface as *domain.ValidationError.
	Register(ctx context.Context, input RegisterInput) (json.RawMessage, error)
	// NotifyLogout tells the server to invalidate the given credential.
	// The credential is passed explicitly because local cleanup has usually
	// already emptied the vault by the time this runs.
	NotifyLogout(ctx context.Context, credential string) error
}
