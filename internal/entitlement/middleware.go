// AngelaMos | 2026
// middleware.go

package entitlement

import (
	"context"
	"net/http"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
)

type contextKey string

const decisionKey contextKey = "entitlement_decision"

// RequireTier gates a route on a fixed tier.
func (s *Service) RequireTier(tier Tier) func(http.Handler) http.Handler {
	return s.gate(func(*http.Request) (Tier, error) {
		return tier, nil
	})
}

// RequireQueryTier gates a route on the tier named by the requiredTier query
// parameter. A missing parameter means free.
func (s *Service) RequireQueryTier(next http.Handler) http.Handler {
	return s.gate(func(r *http.Request) (Tier, error) {
		q := r.URL.Query()
		raw := q.Get("requiredTier")
		if raw == "" {
			raw = q.Get("required_tier")
		}
		if raw == "" {
			return TierFree, nil
		}
		return ParseTier(raw)
	})(next)
}

func (s *Service) gate(
	resolve func(*http.Request) (Tier, error),
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := middleware.GetUserID(r.Context())
			if accountID == "" {
				core.Unauthorized(w, "")
				return
			}

			required, err := resolve(r)
			if err != nil {
				core.BadRequest(w, "requiredTier must be one of: free, weekly, monthly")
				return
			}

			decision, err := s.Authorize(r.Context(), accountID, required)
			if err != nil {
				core.JSONError(w, err)
				return
			}

			if !decision.Allowed {
				core.JSONError(w, decision.Err())
				return
			}

			ctx := context.WithValue(r.Context(), decisionKey, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DecisionFromContext returns the decision recorded by RequireTier or
// RequireQueryTier.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey).(Decision)
	return d, ok
}
