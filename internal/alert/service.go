// AngelaMos | 2026
// service.go

package alert

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/carterperez-dev/rti-cashflowops/internal/event"
)

// Service persists alerts and announces changes on the bus. The database is
// the source of truth; bus delivery failures are logged only.
type Service struct {
	repo Repository
	bus  event.Bus
}

func NewService(repo Repository, bus event.Bus) *Service {
	return &Service{repo: repo, bus: bus}
}

func (s *Service) Create(
	ctx context.Context,
	authorID string,
	req CreateRequest,
) (*Alert, error) {
	a := &Alert{
		ID:       uuid.New().String(),
		Title:    strings.TrimSpace(req.Title),
		Body:     req.Body,
		Category: strings.ToLower(strings.TrimSpace(req.Category)),
		Priority: req.Priority,
		Premium:  req.Premium,
		AuthorID: authorID,
	}
	if a.Category == "" {
		a.Category = DefaultCategory
	}
	if a.Priority == "" {
		a.Priority = PriorityNormal
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeAlertCreated, authorID, announcement(a)))

	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, event.New(event.TypeAlertDeleted, actorID, map[string]string{"id": id}))

	return nil
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		slog.WarnContext(ctx, "publish event failed",
			"type", e.Type,
			"error", err,
		)
	}
}
