// AngelaMos | 2026
// entitlement.go

// Package entitlement decides whether an account may use a tier-gated
// capability and shapes listings for accounts on the free tier.
package entitlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierWeekly  Tier = "weekly"
	TierMonthly Tier = "monthly"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q: %w", s, core.ErrInvalidInput)
	}
	return t, nil
}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierWeekly, TierMonthly:
		return true
	}
	return false
}

func (t Tier) String() string {
	return string(t)
}

type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonSubscriptionRequired Reason = "SubscriptionRequired"
	ReasonSubscriptionExpired  Reason = "SubscriptionExpired"
)

// Subject is the slice of an account the entitlement rules look at.
type Subject struct {
	AccountID          string
	Role               string
	Tier               Tier
	SubscriptionExpiry *time.Time
}

func (s Subject) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Expired reports whether the subscription end has been reached.
func (s Subject) Expired(now time.Time) bool {
	return s.SubscriptionExpiry != nil && !now.Before(*s.SubscriptionExpiry)
}

// EffectiveTier is the tier the account is entitled to at now, regardless of
// whether a pending downgrade has been persisted yet.
func (s Subject) EffectiveTier(now time.Time) Tier {
	if s.Tier != TierFree && s.Expired(now) {
		return TierFree
	}
	if !s.Tier.Valid() {
		return TierFree
	}
	return s.Tier
}

type Decision struct {
	Allowed      bool
	Reason       Reason
	RequiredTier Tier
	CurrentTier  Tier
	// Downgrade is set when the caller must persist tier=free.
	Downgrade bool
	Subject   Subject
}

func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}

	reason := core.ErrSubscriptionRequired
	if d.Reason == ReasonSubscriptionExpired {
		reason = core.ErrSubscriptionExpired
	}

	return core.EntitlementError(reason, d.RequiredTier.String(), d.CurrentTier.String())
}

// Check is a pure function of the subject, the required tier and now. An
// expired paid subscription yields SubscriptionExpired exactly once; the
// returned Subject already carries tier=free, so evaluating it again yields
// SubscriptionRequired.
func Check(s Subject, required Tier, now time.Time) Decision {
	d := Decision{
		RequiredTier: required,
		CurrentTier:  s.Tier,
		Subject:      s,
	}

	if s.IsAdmin() {
		d.Allowed = true
		return d
	}

	if required == TierFree {
		d.Allowed = true
		return d
	}

	if s.Tier != TierFree && s.Expired(now) {
		d.Subject.Tier = TierFree
		d.CurrentTier = TierFree
		d.Downgrade = true
		d.Reason = ReasonSubscriptionExpired
		return d
	}

	if s.Tier == TierFree || !s.Tier.Valid() {
		d.CurrentTier = TierFree
		d.Reason = ReasonSubscriptionRequired
		return d
	}

	d.Allowed = true
	return d
}

// Truncate returns the prefix of items a free, non-admin subject may see.
// Ordering is left untouched. A negative limit disables truncation.
func Truncate[T any](items []T, s Subject, limit int, now time.Time) []T {
	if limit < 0 || s.IsAdmin() || s.EffectiveTier(now) != TierFree {
		return items
	}
	if len(items) <= limit {
		return items
	}
	return items[:limit]
}
