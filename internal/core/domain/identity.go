package domain

import (
	"encoding/json"
	"fmt"
)

// Role is the closed set of account roles issued by the Formahub backend.
// Unknown wire values are a decode error rather than a silent fall-through.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleTrainer    Role = "formateur"
	RoleLearner    Role = "apprenant"
)

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSuperAdmin, RoleTrainer, RoleLearner:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// UnmarshalJSON rejects roles outside the closed set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// OnboardingStep identifies where an incomplete profile resumes the
// onboarding wizard. The zero value means "unset"; callers gating on it
// must fall back to StepRole, the first step.
type OnboardingStep string

const (
	StepRole          OnboardingStep = "role"
	StepProfile       OnboardingStep = "profile"
	StepPrivacyPolicy OnboardingStep = "privacy_policy"
)

// ParseOnboardingStep converts a wire value into an OnboardingStep.
// The empty string is accepted as "unset".
func ParseOnboardingStep(s string) (OnboardingStep, error) {
	switch OnboardingStep(s) {
	case "", StepRole, StepProfile, StepPrivacyPolicy:
		return OnboardingStep(s), nil
	}
	return "", fmt.Errorf("unknown onboarding step %q", s)
}

func (s OnboardingStep) String() string { return string(s) }

// OrDefault resolves an unset step to the first wizard step.
func (s OnboardingStep) OrDefault() OnboardingStep {
	if s == "" {
		return StepRole
	}
	return s
}

func (s *OnboardingStep) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseOnboardingStep(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Identity is the authenticated user record as the backend reports it.
// The role is immutable for the lifetime of a session; a role change on the
// server requires re-authentication to become visible here.
type Identity struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Role            Role           `json:"role"`
	NeedsOnboarding bool           `json:"needs_onboarding"`
	OnboardingStep  OnboardingStep `json:"onboarding_step,omitempty"`
}

// Clone returns a copy so callers can hand identities across goroutines
// without sharing the underlying struct.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}
