// Package transport implements the session core's HTTP boundary: a client
// wrapper that attaches the bearer credential to every outgoing request and
// terminates the session on a 401, and the REST gateway for the four auth
// operations.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/formahub/session-core/internal/api/metrics"
	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
)

const defaultTimeout = 30 * time.Second

// Options configure a Client. All fields are optional except Vault.
type Options struct {
	// Vault supplies the bearer credential for outgoing requests.
	Vault ports.SessionVault
	// Navigator receives the forced navigation after a 401. Nil disables
	// navigation (useful in tests and headless consumers).
	Navigator ports.Navigator
	// Base is the underlying RoundTripper. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper
	// Timeout applies to the derived *http.Client. Defaults to 30s.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client wraps an http.RoundTripper with the session contract:
//
//   - request phase: attach "Authorization: Bearer <credential>" when a
//     credential is persisted, the request carries none of its own, and the
//     request is not credential-exempt (see WithoutCredential);
//   - response phase: a 401 on a request that carried the session credential
//     clears the session and navigates to login, exactly once per response;
//     every other status and every transport error passes through untouched.
//
// The 401 path is the only place outside an explicit logout that terminates
// a session. It is deliberately narrow: 403 means an authorization-scope
// problem and 5xx a server problem, neither invalidates the credential.
// The client never retries.
type Client struct {
	vault     ports.SessionVault
	navigator ports.Navigator
	base      http.RoundTripper
	timeout   time.Duration
	log       zerolog.Logger

	clearer ports.SessionClearer
}

// credentialExemptKey marks a request that must go out unauthenticated even
// while a credential is persisted.
type credentialExemptKey struct{}

// WithoutCredential returns a context whose request bypasses the vault
// lookup. Login and register use it: they carry their own proof, and a 401
// on them means bad input, not a dead session. Without the exemption a
// failed re-login while already logged in would wipe the valid session.
func WithoutCredential(ctx context.Context) context.Context {
	return context.WithValue(ctx, credentialExemptKey{}, true)
}

// NewClient builds the wrapper. Bind the session store with
// BindSessionClearer once it exists; until then a 401 clears the vault
// directly.
func NewClient(opts Options) *Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		vault:     opts.Vault,
		navigator: opts.Navigator,
		base:      base,
		timeout:   timeout,
		log:       opts.Logger,
	}
}

// BindSessionClearer injects the shared "clear credential + identity" unit.
// The wrapper decides when a session dies; the store decides how it is
// cleared.
func (c *Client) BindSessionClearer(clearer ports.SessionClearer) {
	c.clearer = clearer
}

// HTTPClient returns an *http.Client whose transport enforces the session
// contract. Every network call the application makes should go through it.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c, Timeout: c.timeout}
}

// RoundTrip implements http.RoundTripper.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	attached := false
	exempt, _ := req.Context().Value(credentialExemptKey{}).(bool)
	if !exempt && req.Header.Get("Authorization") == "" {
		credential, err := c.vault.Credential(req.Context())
		switch {
		case err == nil && credential != "":
			// Clone before mutating: RoundTrippers must not modify the
			// caller's request.
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+credential)
			attached = true
		case err != nil && !errors.Is(err, domain.ErrNoSession):
			c.log.Warn().Err(err).Msg("credential lookup failed, sending request unauthenticated")
		}
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Only a 401 on a call that actually carried the session credential
	// proves the session is dead. A 401 on an unauthenticated call (a failed
	// login) is the caller's problem.
	if resp.StatusCode == http.StatusUnauthorized && attached {
		c.expireSession(req)
	}

	return resp, nil
}

// expireSession clears the persisted pair and forces navigation to login.
// The failing caller still receives its 401 unchanged; from its point of
// view this is a fire-and-forget side effect.
func (c *Client) expireSession(req *http.Request) {
	c.log.Info().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Msg("session rejected by server, clearing and redirecting to login")

	if c.clearer != nil {
		c.clearer.ClearSession()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.vault.Clear(ctx); err != nil {
			c.log.Error().Err(err).Msg("vault clear failed after 401")
		}
	}

	metrics.UnauthorizedResponsesTotal.Inc()

	if c.navigator != nil {
		c.navigator.ToLogin()
	}
}
