// AngelaMos | 2026
// service.go

package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

type Store interface {
	GetSubject(ctx context.Context, accountID string) (Subject, error)
	DowngradeToFree(ctx context.Context, accountID string) error
}

type Service struct {
	store  Store
	now    func() time.Time
	tracer trace.Tracer
}

func NewService(store Store) *Service {
	return NewServiceWithClock(store, time.Now)
}

func NewServiceWithClock(store Store, now func() time.Time) *Service {
	return &Service{
		store:  store,
		now:    now,
		tracer: otel.Tracer("cashflowops/entitlement"),
	}
}

func (s *Service) Now() time.Time {
	return s.now()
}

// Authorize evaluates the stored account against required on every call.
// When the subscription has lapsed the downgrade is persisted before the
// decision is returned, even though the decision is a Deny.
func (s *Service) Authorize(
	ctx context.Context,
	accountID string,
	required Tier,
) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "entitlement.Authorize",
		trace.WithAttributes(attribute.String("required_tier", required.String())),
	)
	defer span.End()

	subject, err := s.store.GetSubject(ctx, accountID)
	if err != nil {
		core.SetSpanError(ctx, err)
		return Decision{}, fmt.Errorf("load subject: %w", err)
	}

	decision := Check(subject, required, s.now())

	if decision.Downgrade {
		if err := s.store.DowngradeToFree(ctx, accountID); err != nil {
			core.SetSpanError(ctx, err)
			return Decision{}, fmt.Errorf("downgrade expired subscription: %w", err)
		}
		slog.InfoContext(ctx, "subscription expired, account downgraded",
			"account_id", accountID,
		)
	}

	core.AddSpanEvent(ctx, "entitlement.decision",
		attribute.Bool("allowed", decision.Allowed),
		attribute.String("reason", string(decision.Reason)),
		attribute.String("current_tier", decision.CurrentTier.String()),
	)

	return decision, nil
}
