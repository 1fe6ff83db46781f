package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
)

// maxErrorBody caps how much of an error response is read when decoding the
// server's error envelope.
const maxErrorBody = 1 << 20

// RESTGateway implements ports.AuthGateway against the Formahub REST
// backend. All requests go through the session-aware *http.Client so bearer
// attachment and 401 handling stay centralized.
type RESTGateway struct {
	baseURL string
	client  *http.Client
}

// NewRESTGateway builds a gateway rooted at baseURL (e.g.
// "https://api.formahub.com/api").
func NewRESTGateway(baseURL string, client *http.Client) *RESTGateway {
	return &RESTGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// errorEnvelope is the backend's error shape: a message plus optional
// per-field validation errors.
type errorEnvelope struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// FetchIdentity validates the current credential by fetching the identity it
// belongs to.
func (g *RESTGateway) FetchIdentity(ctx context.Context) (*domain.Identity, error) {
	resp, err := g.do(ctx, http.MethodGet, "/user", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, g.decodeError(resp)
	}

	var payload struct {
		User *domain.Identity `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if payload.User == nil {
		return nil, fmt.Errorf("identity response missing user")
	}
	return payload.User, nil
}

// loginResponse mirrors the login endpoint. EmailVerified is a pointer so
// "absent" (older backends) and "false" stay distinguishable.
type loginResponse struct {
	Token         string           `json:"token"`
	User          *domain.Identity `json:"user"`
	EmailVerified *bool            `json:"email_verified"`
	Message       string           `json:"message"`
}

// Login exchanges credentials for a bearer token and identity. A response
// flagging the email as unverified fails with *domain.EmailUnverifiedError
// and must not be treated as a session.
func (g *RESTGateway) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	// Credential-exempt: a 401 here is a rejected login, and attaching a
	// stored bearer would let it read as a terminated session.
	resp, err := g.do(WithoutCredential(ctx), http.MethodPost, "/login", body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("read login response: %w", err)
	}

	var payload loginResponse
	// Decode the body regardless of status: the unverified-email rejection
	// may arrive on a non-2xx status but still carries the flag.
	decodeErr := json.Unmarshal(raw, &payload)

	if decodeErr == nil && payload.EmailVerified != nil && !*payload.EmailVerified {
		message := payload.Message
		if message == "" {
			message = "email address not verified"
		}
		return nil, &domain.EmailUnverifiedError{Email: email, Message: message}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, g.envelopeError(resp.StatusCode, raw)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode login response: %w", decodeErr)
	}
	if payload.Token == "" || payload.User == nil {
		return nil, fmt.Errorf("login response missing token or user")
	}

	return &ports.LoginResult{Token: payload.Token, Identity: payload.User}, nil
}

// Register creates an account. No session is established; the raw payload is
// handed back for the caller to present. A 422 becomes a per-field
// *domain.ValidationError.
func (g *RESTGateway) Register(ctx context.Context, input ports.RegisterInput) (json.RawMessage, error) {
	resp, err := g.do(WithoutCredential(ctx), http.MethodPost, "/register", input, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("read register response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, g.envelopeError(resp.StatusCode, raw)
	}
	return json.RawMessage(raw), nil
}

// NotifyLogout asks the server to invalidate the credential. The credential
// travels explicitly because the vault is already empty when this runs.
func (g *RESTGateway) NotifyLogout(ctx context.Context, credential string) error {
	resp, err := g.do(ctx, http.MethodPost, "/logout", nil, credential)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout notification rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (g *RESTGateway) do(ctx context.Context, method, path string, body any, credential string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		// Pre-set headers win over the transport's vault lookup.
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	return g.client.Do(req)
}

func (g *RESTGateway) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return g.envelopeError(resp.StatusCode, raw)
}

// envelopeError maps a non-2xx response to the domain taxonomy: a 422 with
// field errors becomes a ValidationError, other 4xx an AuthError, and 5xx or
// unparseable bodies a plain error the caller sees unchanged.
func (g *RESTGateway) envelopeError(status int, raw []byte) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(raw, &envelope)

	if status == http.StatusUnprocessableEntity && len(envelope.Errors) > 0 {
		message := envelope.Message
		if message == "" {
			message = "validation failed"
		}
		return &domain.ValidationError{Message: message, Fields: envelope.Errors}
	}

	if status >= 400 && status < 500 {
		return &domain.AuthError{StatusCode: status, Message: envelope.Message}
	}

	if envelope.Message != "" {
		return fmt.Errorf("server error (status %d): %s", status, envelope.Message)
	}
	return fmt.Errorf("server error (status %d)", status)
}
