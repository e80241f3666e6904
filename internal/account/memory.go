// AngelaMos | 2026
// memory.go

package account

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
)

// MemoryRepository keeps accounts in a map keyed by id. It applies the same
// uniqueness rules as the accounts table.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]Account),
		now:      time.Now,
	}
}

func (m *MemoryRepository) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dup := m.conflict(a); dup != "" {
		return fmt.Errorf("create account: %w", core.DuplicateError(dup))
	}

	now := m.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.LastActiveAt.IsZero() {
		a.LastActiveAt = now
	}

	m.accounts[a.ID] = *a
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryRepository) GetByUsername(
	_ context.Context,
	username string,
) (*Account, error) {
	return m.find("get account by username", func(a *Account) bool {
		return a.Username == username
	})
}

func (m *MemoryRepository) GetByEmail(
	_ context.Context,
	email string,
) (*Account, error) {
	return m.find("get account by email", func(a *Account) bool {
		return strings.EqualFold(a.Email, email)
	})
}

func (m *MemoryRepository) Update(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.accounts[a.ID]
	if !ok {
		return fmt.Errorf("update account: %w", core.ErrNotFound)
	}

	if dup := m.conflict(a); dup != "" {
		return fmt.Errorf("update account: %w", core.DuplicateError(dup))
	}

	stored.Username = a.Username
	stored.Email = a.Email
	stored.DisplayName = a.DisplayName
	stored.AvatarKey = a.AvatarKey
	stored.Role = a.Role
	stored.UpdatedAt = m.now()
	a.UpdatedAt = stored.UpdatedAt

	m.accounts[a.ID] = stored
	return nil
}

func (m *MemoryRepository) UpdatePassword(
	_ context.Context,
	id, passwordHash string,
) error {
	return m.mutate("update password", id, func(a *Account) {
		a.PasswordHash = passwordHash
		a.UpdatedAt = m.now()
	})
}

func (m *MemoryRepository) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.accounts[id]; ok && a.LastActiveAt.Before(at) {
		a.LastActiveAt = at
		m.accounts[id] = a
	}
	return nil
}

func (m *MemoryRepository) SetSubscription(
	_ context.Context,
	id string,
	tier entitlement.Tier,
	expiry *time.Time,
) error {
	return m.mutate("set subscription", id, func(a *Account) {
		a.Tier = tier
		a.SubscriptionExpiry = copyTime(expiry)
		a.UpdatedAt = m.now()
	})
}

func (m *MemoryRepository) DowngradeToFree(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.accounts[id]; ok && a.Tier != entitlement.TierFree {
		a.Tier = entitlement.TierFree
		a.UpdatedAt = m.now()
		m.accounts[id] = a
	}
	return nil
}

func (m *MemoryRepository) CountByTier(_ context.Context) (map[entitlement.Tier]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[entitlement.Tier]int)
	for _, a := range m.accounts {
		counts[a.Tier]++
	}
	return counts, nil
}

func (m *MemoryRepository) DowngradeExpired(
	_ context.Context,
	now time.Time,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, a := range m.accounts {
		if a.Tier == entitlement.TierFree || a.IsAdmin() {
			continue
		}
		if a.SubscriptionExpiry == nil || now.Before(*a.SubscriptionExpiry) {
			continue
		}
		a.Tier = entitlement.TierFree
		a.UpdatedAt = m.now()
		m.accounts[id] = a
		n++
	}
	return n, nil
}

func (m *MemoryRepository) ListActive(
	_ context.Context,
	since time.Time,
) ([]Account, error) {
	m.mu.RLock()
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if !a.LastActiveAt.Before(since) {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActiveAt.Equal(out[j].LastActiveAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	return out, nil
}

func (m *MemoryRepository) List(
	_ context.Context,
	params ListParams,
) ([]Account, int, error) {
	params.Normalize()
	search := strings.ToLower(params.Search)

	m.mu.RLock()
	matched := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if params.Role != "" && a.Role != params.Role {
			continue
		}
		if params.Tier != "" && string(a.Tier) != params.Tier {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.Email), search) &&
			!strings.Contains(strings.ToLower(a.Username), search) &&
			!strings.Contains(strings.ToLower(a.DisplayName), search) {
			continue
		}
		matched = append(matched, a)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := min(start+params.PageSize, total)

	return matched[start:end], total, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("delete account: %w", core.ErrNotFound)
	}
	delete(m.accounts, id)
	return nil
}

func (m *MemoryRepository) find(
	op string,
	match func(*Account) bool,
) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if match(&a) {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
}

func (m *MemoryRepository) mutate(op, id string, fn func(*Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	fn(&a)
	m.accounts[id] = a
	return nil
}

// conflict must be called with mu held.
func (m *MemoryRepository) conflict(a *Account) string {
	for id, other := range m.accounts {
		if id == a.ID {
			continue
		}
		if other.Username == a.Username {
			return "username"
		}
		if strings.EqualFold(other.Email, a.Email) {
			return "email"
		}
	}
	return ""
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ Repository = (*MemoryRepository)(nil)
