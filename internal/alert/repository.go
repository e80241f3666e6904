// AngelaMos | 2026
// repository.go

package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id string) (*Alert, error)
	// List returns alerts newest first.
	List(ctx context.Context, filter ListFilter) ([]Alert, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO alerts (id, title, body, category, priority, premium, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &a.CreatedAt, query,
		a.ID,
		a.Title,
		a.Body,
		a.Category,
		a.Priority,
		a.Premium,
		a.AuthorID,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Alert, error) {
	query := `
		SELECT id, title, body, category, priority, premium, author_id, created_at
		FROM alerts
		WHERE id = $1`

	var a Alert
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, fmt.Errorf("get alert: %w", core.LookupError(err))
	}

	return &a, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	query := `
		SELECT id, title, body, category, priority, premium, author_id, created_at
		FROM alerts
		WHERE premium = $1 AND ($2::text = '' OR category = $2)
		ORDER BY created_at DESC, id DESC`

	alerts := []Alert{}
	if err := r.db.SelectContext(ctx, &alerts, query, filter.Premium, filter.Category); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	return alerts, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", core.LookupError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete alert: %w", core.ErrNotFound)
	}

	return nil
}

type MemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]Alert
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		alerts: make(map[string]Alert),
		now:    time.Now,
	}
}

func (m *MemoryRepository) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	m.alerts[a.ID] = *a
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("get alert: %w", core.ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryRepository) List(_ context.Context, filter ListFilter) ([]Alert, error) {
	m.mu.RLock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if a.Premium != filter.Premium {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		out = append(out, a)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[id]; !ok {
		return fmt.Errorf("delete alert: %w", core.ErrNotFound)
	}
	delete(m.alerts, id)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
