// AngelaMos | 2026
// service_test.go

package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
)

type fakeStore struct {
	mu           sync.Mutex
	subjects     map[string]Subject
	downgrades   int
	downgradeErr error
	swept        int64
	sweepErr     error
	sweptAt      time.Time
}

func newFakeStore(subjects ...Subject) *fakeStore {
	s := &fakeStore{subjects: make(map[string]Subject)}
	for _, sub := range subjects {
		s.subjects[sub.AccountID] = sub
	}
	return s
}

func (f *fakeStore) GetSubject(_ context.Context, id string) (Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.subjects[id]
	if !ok {
		return Subject{}, core.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) DowngradeToFree(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.downgradeErr != nil {
		return f.downgradeErr
	}
	s := f.subjects[id]
	s.Tier = TierFree
	f.subjects[id] = s
	f.downgrades++
	return nil
}

func (f *fakeStore) DowngradeExpired(_ context.Context, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sweptAt = at
	return f.swept, f.sweepErr
}

func TestAuthorizePersistsDowngradeOnce(t *testing.T) {
	store := newFakeStore(Subject{
		AccountID:          "acc-1",
		Role:               RoleUser,
		Tier:               TierMonthly,
		SubscriptionExpiry: at(now.Add(-24 * time.Hour)),
	})
	svc := NewServiceWithClock(store, func() time.Time { return now })
	ctx := context.Background()

	first, err := svc.Authorize(ctx, "acc-1", TierWeekly)
	require.NoError(t, err)
	assert.False(t, first.Allowed)
	assert.Equal(t, ReasonSubscriptionExpired, first.Reason)

	stored, err := store.GetSubject(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, TierFree, stored.Tier)

	second, err := svc.Authorize(ctx, "acc-1", TierWeekly)
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Equal(t, ReasonSubscriptionRequired, second.Reason)
	assert.Equal(t, 1, store.downgrades)
}

func TestAuthorizeErrors(t *testing.T) {
	store := newFakeStore(Subject{
		AccountID:          "acc-1",
		Role:               RoleUser,
		Tier:               TierWeekly,
		SubscriptionExpiry: at(now.Add(-time.Minute)),
	})
	store.downgradeErr = errors.New("db down")
	svc := NewServiceWithClock(store, func() time.Time { return now })

	_, err := svc.Authorize(context.Background(), "acc-1", TierWeekly)
	assert.Error(t, err)

	_, err = svc.Authorize(context.Background(), "missing", TierWeekly)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func serveGate(t *testing.T, svc *Service, gate func(http.Handler) http.Handler, accountID, url string) *httptest.ResponseRecorder {
	t.Helper()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := DecisionFromContext(r.Context())
		require.True(t, ok)
		core.OK(w, map[string]string{"tier": d.CurrentTier.String()})
	})

	req := httptest.NewRequest(http.MethodGet, url, nil)
	if accountID != "" {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), &middleware.Principal{AccountID: accountID}))
	}
	rec := httptest.NewRecorder()
	gate(next).ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *core.AppError {
	t.Helper()

	var body struct {
		Success bool           `json:"success"`
		Error   *core.AppError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	return body.Error
}

func TestRequireTierMiddleware(t *testing.T) {
	store := newFakeStore(
		Subject{AccountID: "free", Role: RoleUser, Tier: TierFree},
		Subject{AccountID: "paid", Role: RoleUser, Tier: TierWeekly, SubscriptionExpiry: at(now.Add(time.Hour))},
		Subject{AccountID: "lapsed", Role: RoleUser, Tier: TierWeekly, SubscriptionExpiry: at(now.Add(-time.Hour))},
	)
	svc := NewServiceWithClock(store, func() time.Time { return now })
	gate := svc.RequireTier(TierWeekly)

	rec := serveGate(t, svc, gate, "paid", "/")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveGate(t, svc, gate, "free", "/")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	appErr := decodeError(t, rec)
	assert.Equal(t, core.KindEntitlement, appErr.Kind)
	assert.Equal(t, "SubscriptionRequired", appErr.Code)
	assert.Equal(t, "weekly", appErr.Details["requiredTier"])
	assert.Equal(t, "free", appErr.Details["currentTier"])

	rec = serveGate(t, svc, gate, "lapsed", "/")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "SubscriptionExpired", decodeError(t, rec).Code)

	rec = serveGate(t, svc, gate, "lapsed", "/")
	assert.Equal(t, "SubscriptionRequired", decodeError(t, rec).Code)

	rec = serveGate(t, svc, gate, "", "/")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireQueryTierMiddleware(t *testing.T) {
	store := newFakeStore(Subject{AccountID: "free", Role: RoleUser, Tier: TierFree})
	svc := NewServiceWithClock(store, func() time.Time { return now })

	tests := []struct {
		url    string
		status int
	}{
		{"/", http.StatusOK},
		{"/?requiredTier=free", http.StatusOK},
		{"/?requiredTier=weekly", http.StatusPaymentRequired},
		{"/?required_tier=monthly", http.StatusPaymentRequired},
		{"/?requiredTier=gold", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rec := serveGate(t, svc, svc.RequireQueryTier, "free", tt.url)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSweeper(t *testing.T) {
	store := newFakeStore()
	store.swept = 4
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewSweeper(store, time.Minute, logger)
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, now, store.sweptAt)

	store.sweepErr = errors.New("db down")
	_, err = s.SweepOnce(context.Background())
	assert.Error(t, err)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	s := NewSweeper(store, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return !store.sweptAt.IsZero()
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
