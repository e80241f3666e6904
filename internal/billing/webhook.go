// AngelaMos | 2026
// webhook.go

// Package billing applies Stripe subscription webhooks to account
// entitlements.
package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/carterperez-dev/rti-cashflowops/internal/config"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
)

const (
	signatureHeader = "Stripe-Signature"
	maxPayloadSize  = 65536
)

type SubscriptionStore interface {
	SetSubscription(
		ctx context.Context,
		accountID string,
		tier entitlement.Tier,
		expiry *time.Time,
	) error
}

type Handler struct {
	store  SubscriptionStore
	secret string
	prices map[string]entitlement.Tier
	now    func() time.Time
}

func NewHandler(store SubscriptionStore, cfg config.BillingConfig) (*Handler, error) {
	prices := make(map[string]entitlement.Tier, len(cfg.PriceTiers))
	for priceID, raw := range cfg.PriceTiers {
		tier, err := entitlement.ParseTier(raw)
		if err != nil {
			return nil, fmt.Errorf("billing price %s: %w", priceID, err)
		}
		prices[priceID] = tier
	}

	return &Handler{
		store:  store,
		secret: cfg.WebhookSecret,
		prices: prices,
		now:    time.Now,
	}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/webhook", h.Webhook)
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err != nil {
		core.BadRequest(w, "payload too large")
		return
	}

	evt, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get(signatureHeader),
		h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		slog.WarnContext(r.Context(), "stripe webhook rejected", "error", err)
		core.BadRequest(w, "invalid webhook signature")
		return
	}

	change, err := h.changeFor(evt)
	if err != nil {
		slog.WarnContext(r.Context(), "stripe webhook ignored",
			"event_id", evt.ID,
			"type", evt.Type,
			"error", err,
		)
		core.OK(w, map[string]bool{"received": true})
		return
	}

	if change != nil {
		if err := h.apply(r.Context(), change); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				slog.WarnContext(r.Context(), "stripe webhook for unknown account",
					"event_id", evt.ID,
					"account_id", change.AccountID,
				)
				core.OK(w, map[string]bool{"received": true})
				return
			}
			core.InternalServerError(w, err)
			return
		}

		slog.InfoContext(r.Context(), "subscription updated from billing",
			"event_id", evt.ID,
			"type", evt.Type,
			"account_id", change.AccountID,
			"tier", change.Tier.String(),
		)
	}

	core.OK(w, map[string]bool{"received": true})
}

// changeFor returns nil for events that carry nothing to apply.
func (h *Handler) changeFor(evt stripe.Event) (*Change, error) {
	if evt.Data == nil {
		return nil, nil
	}

	switch string(evt.Type) {
	case eventSubscriptionCreated, eventSubscriptionUpdated:
		sub, err := decodeSubscription(evt.Data.Raw)
		if err != nil {
			return nil, err
		}
		accountID := sub.Metadata[metadataAccountID]
		if accountID == "" {
			return nil, fmt.Errorf("subscription %s has no %s metadata", sub.ID, metadataAccountID)
		}
		if sub.lapsed() {
			return h.cancellation(accountID), nil
		}
		tier, err := sub.tier(h.prices)
		if err != nil {
			return nil, err
		}
		return &Change{AccountID: accountID, Tier: tier, Expiry: sub.periodEnd()}, nil

	case eventSubscriptionDeleted:
		sub, err := decodeSubscription(evt.Data.Raw)
		if err != nil {
			return nil, err
		}
		accountID := sub.Metadata[metadataAccountID]
		if accountID == "" {
			return nil, fmt.Errorf("subscription %s has no %s metadata", sub.ID, metadataAccountID)
		}
		return h.cancellation(accountID), nil

	case eventCheckoutCompleted:
		return h.checkoutChange(evt)
	}

	return nil, nil
}

// checkoutChange only acts when the session itself carries a tier. The
// subscription events that follow a checkout are authoritative otherwise.
func (h *Handler) checkoutChange(evt stripe.Event) (*Change, error) {
	var session checkoutObject
	if err := decodeInto(evt, &session); err != nil {
		return nil, err
	}

	raw := session.Metadata[metadataTier]
	if raw == "" {
		return nil, nil
	}

	accountID := session.Metadata[metadataAccountID]
	if accountID == "" {
		accountID = session.ClientReferenceID
	}
	if accountID == "" {
		return nil, fmt.Errorf("checkout %s has no account reference", session.ID)
	}

	tier, err := entitlement.ParseTier(raw)
	if err != nil {
		return nil, err
	}

	return &Change{AccountID: accountID, Tier: tier, Expiry: h.defaultExpiry(tier)}, nil
}

func (h *Handler) cancellation(accountID string) *Change {
	now := h.now().UTC()
	return &Change{AccountID: accountID, Tier: entitlement.TierFree, Expiry: &now}
}

// defaultExpiry covers checkouts that arrive before any subscription event.
func (h *Handler) defaultExpiry(tier entitlement.Tier) *time.Time {
	var d time.Duration
	switch tier {
	case entitlement.TierWeekly:
		d = 7 * 24 * time.Hour
	case entitlement.TierMonthly:
		d = 30 * 24 * time.Hour
	default:
		return nil
	}
	t := h.now().UTC().Add(d)
	return &t
}

func (h *Handler) apply(ctx context.Context, c *Change) error {
	return h.store.SetSubscription(ctx, c.AccountID, c.Tier, c.Expiry)
}
