// AngelaMos | 2026
// subscription.go

package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
)

const (
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
	eventCheckoutCompleted   = "checkout.session.completed"
)

const (
	metadataAccountID = "account_id"
	metadataTier      = "tier"
)

// subscriptionObject holds the fields read from a subscription payload.
// Newer API versions moved current_period_end onto the items, so both
// locations are read.
type subscriptionObject struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type checkoutObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// Change is the entitlement update derived from one webhook event.
type Change struct {
	AccountID string
	Tier      entitlement.Tier
	Expiry    *time.Time
}

func decodeSubscription(raw json.RawMessage) (*subscriptionObject, error) {
	var sub subscriptionObject
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return &sub, nil
}

// lapsed statuses grant nothing even though the subscription still exists.
func (s *subscriptionObject) lapsed() bool {
	switch s.Status {
	case "canceled", "unpaid", "incomplete_expired":
		return true
	}
	return false
}

func (s *subscriptionObject) periodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	if end == 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}

// tier prefers the configured price mapping over metadata.
func (s *subscriptionObject) tier(prices map[string]entitlement.Tier) (entitlement.Tier, error) {
	for _, item := range s.Items.Data {
		if t, ok := prices[item.Price.ID]; ok {
			return t, nil
		}
	}

	if raw := s.Metadata[metadataTier]; raw != "" {
		return entitlement.ParseTier(raw)
	}

	return "", fmt.Errorf("subscription %s has no recognised price or tier metadata", s.ID)
}

func decodeInto(evt stripe.Event, dst any) error {
	if err := json.Unmarshal(evt.Data.Raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", evt.Type, err)
	}
	return nil
}
