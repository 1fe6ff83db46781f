package service

import (
	"github.com/formahub/session-core/internal/api/metrics"
	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
)

// GuardOutcome is the decision a guard reaches for one navigation attempt.
type GuardOutcome int

const (
	// OutcomeChecking: the initial session restoration has not resolved yet;
	// render a neutral loading affordance, decide nothing.
	OutcomeChecking GuardOutcome = iota
	// OutcomeRedirectLogin: no authenticated identity; go to the login view.
	OutcomeRedirectLogin
	// OutcomeRedirectOnboarding: authenticated but the profile is incomplete
	// and this route requires a complete one; resume the wizard.
	OutcomeRedirectOnboarding
	// OutcomeDenied: authenticated, but the identity's role is outside the
	// route's allow-list.
	OutcomeDenied
	// OutcomeAllow: render the requested view unmodified.
	OutcomeAllow
)

func (o GuardOutcome) String() string {
	switch o {
	case OutcomeChecking:
		return "checking"
	case OutcomeRedirectLogin:
		return "redirect_login"
	case OutcomeRedirectOnboarding:
		return "redirect_onboarding"
	case OutcomeDenied:
		return "denied"
	case OutcomeAllow:
		return "allow"
	}
	return "unknown"
}

// GuardDecision is the full routing verdict. Location is set only for the
// redirect outcomes. ReplaceHistory asks the navigation layer to replace the
// current history entry so back-navigation cannot return to the guarded
// route.
type GuardDecision struct {
	Outcome        GuardOutcome
	Location       string
	ReplaceHistory bool
}

// GuardOptions configure a single guarded route.
type GuardOptions struct {
	// RequireOnboarded redirects identities with an unfinished onboarding
	// wizard. The onboarding pages themselves must leave this false or no
	// incomplete profile could ever reach them.
	RequireOnboarded bool
	// AllowedRoles restricts the route to a closed set of roles. Empty
	// admits any authenticated role.
	AllowedRoles []domain.Role
}

// RouteGuard decides, per navigation attempt, whether a protected view is
// rendered, delayed, or redirected. It reads the session store and performs
// no network calls, so evaluation cannot fail.
type RouteGuard struct {
	sessions       ports.SessionReader
	loginPath      string
	onboardingBase string
}

// NewRouteGuard builds a guard over the given session store. loginPath and
// onboardingBase are the navigation targets for the two redirect outcomes,
// e.g. "/login" and "/onboarding".
func NewRouteGuard(sessions ports.SessionReader, loginPath, onboardingBase string) *RouteGuard {
	return &RouteGuard{
		sessions:       sessions,
		loginPath:      loginPath,
		onboardingBase: onboardingBase,
	}
}

// Evaluate runs the guard state machine against the current session
// snapshot.
func (g *RouteGuard) Evaluate(opts GuardOptions) GuardDecision {
	decision := g.evaluate(opts)
	metrics.GuardDecisionsTotal.WithLabelValues(decision.Outcome.String()).Inc()
	return decision
}

func (g *RouteGuard) evaluate(opts GuardOptions) GuardDecision {
	snap := g.sessions.Snapshot()

	if snap.Loading {
		return GuardDecision{Outcome: OutcomeChecking}
	}

	if snap.Identity == nil {
		return GuardDecision{
			Outcome:        OutcomeRedirectLogin,
			Location:       g.loginPath,
			ReplaceHistory: true,
		}
	}

	if opts.RequireOnboarded && snap.Identity.NeedsOnboarding {
		step := snap.Identity.OnboardingStep.OrDefault()
		return GuardDecision{
			Outcome:        OutcomeRedirectOnboarding,
			Location:       g.onboardingBase + "/" + step.String(),
			ReplaceHistory: true,
		}
	}

	if len(opts.AllowedRoles) > 0 && !roleAllowed(snap.Identity.Role, opts.AllowedRoles) {
		return GuardDecision{Outcome: OutcomeDenied}
	}

	return GuardDecision{Outcome: OutcomeAllow}
}

func roleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
