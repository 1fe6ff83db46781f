// Package metrics defines and registers all custom Prometheus metrics for
// the session core. It is the single source of truth for metric names,
// labels, and help strings; metrics register with the default registry at
// package init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "session"

// ── Session lifecycle ─────────────────────────────────────────────────────────

// LoginsTotal counts login attempts by result.
// Label:
//   - result: "success", "unverified" (email verification pending), "failure"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// SessionsRestoredTotal counts sessions successfully restored from the vault
// at startup.
var SessionsRestoredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "restored_total",
		Help:      "Total number of sessions restored from durable storage.",
	},
)

// SessionClearsTotal counts atomic credential+identity clears.
// Label:
//   - reason: "logout", "unauthorized", "restore_failed"
var SessionClearsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clears_total",
		Help:      "Total number of session clears, by trigger.",
	},
	[]string{"reason"},
)

// ── Transport ─────────────────────────────────────────────────────────────────

// UnauthorizedResponsesTotal counts 401 responses on authenticated calls;
// each one forces a session clear and a navigation to login.
var UnauthorizedResponsesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unauthorized_responses_total",
		Help:      "Total number of 401 responses that terminated the session.",
	},
)

// ── Route guard ───────────────────────────────────────────────────────────────

// GuardDecisionsTotal counts route guard verdicts.
// Label:
//   - outcome: "checking", "redirect_login", "redirect_onboarding",
//     "denied", "allow"
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions, by outcome.",
	},
	[]string{"outcome"},
)

// ── Logout notifier ───────────────────────────────────────────────────────────

// LogoutNotificationsTotal counts best-effort logout notifications.
// Label:
//   - result: "sent", "failed", "dropped" (queue saturated)
var LogoutNotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logout_notifications_total",
		Help:      "Total number of server logout notifications, by result.",
	},
	[]string{"result"},
)
