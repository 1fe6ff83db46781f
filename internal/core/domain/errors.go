package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoSession is returned by vault implementations when no session pair is
// persisted. It is the only "failure" Initialize treats as a normal outcome.
var ErrNoSession = errors.New("no stored session")

// AuthError is any login/authentication rejection that is not a verification
// problem: bad credentials, locked account, unexpected server state. The
// session is never mutated when one of these surfaces.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
}

// EmailUnverifiedError rejects a login because the account's email address is
// still pending verification. Callers use Email to offer a resend action.
type EmailUnverifiedError struct {
	Email   string
	Message string
}

func (e *EmailUnverifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("email %s is not verified", e.Email)
}

// ValidationError carries per-field registration errors exactly as the
// server reported them, for form display.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s (fields: %s)", e.Message, strings.Join(names, ", "))
}

// FieldErrors returns the messages recorded for a single field.
func (e *ValidationError) FieldErrors(field string) []string {
	return e.Fields[field]
}
