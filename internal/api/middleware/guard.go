package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/formahub/session-core/internal/core/service"
)

// Guard adapts the route guard to echo for server-embedded front ends.
// Outcomes map to HTTP as follows:
//
//   - Checking:           503 + Retry-After, the session store has not
//     finished its initial restoration
//   - RedirectLogin:      303 see-other to the login view
//   - RedirectOnboarding: 303 see-other to the pending onboarding step
//   - Denied:             403 JSON envelope
//   - Allow:              next handler runs untouched
//
// Redirects carry Cache-Control: no-store; a cached guard redirect would
// outlive the session state that produced it.
func Guard(guard *service.RouteGuard, opts service.GuardOptions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := guard.Evaluate(opts)

			switch decision.Outcome {
			case service.OutcomeChecking:
				c.Response().Header().Set("Retry-After", "1")
				return c.NoContent(http.StatusServiceUnavailable)

			case service.OutcomeRedirectLogin, service.OutcomeRedirectOnboarding:
				c.Response().Header().Set("Cache-Control", "no-store")
				return c.Redirect(http.StatusSeeOther, decision.Location)

			case service.OutcomeDenied:
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}

			return next(c)
		}
	}
}
