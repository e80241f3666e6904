// AngelaMos | 2026
// webhook_test.go

package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/rti-cashflowops/internal/config"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
)

const testSecret = "whsec_test_secret"

type recordingStore struct {
	calls []Change
	err   error
}

func (s *recordingStore) SetSubscription(
	_ context.Context,
	accountID string,
	tier entitlement.Tier,
	expiry *time.Time,
) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, Change{AccountID: accountID, Tier: tier, Expiry: expiry})
	return nil
}

func newTestHandler(t *testing.T, store SubscriptionStore) (chi.Router, *Handler) {
	t.Helper()

	h, err := NewHandler(store, config.BillingConfig{
		WebhookSecret: testSecret,
		PriceTiers: map[string]string{
			"price_weekly":  "weekly",
			"price_monthly": "monthly",
		},
	})
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, h
}

func signatureFor(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(t *testing.T, typ string, object map[string]any) []byte {
	t.Helper()

	b, err := json.Marshal(map[string]any{
		"id":          "evt_123",
		"object":      "event",
		"type":        typ,
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func post(r http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set(signatureHeader, signature)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubscriptionUpdatedFromPrice(t *testing.T) {
	store := &recordingStore{}
	r, _ := newTestHandler(t, store)

	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	payload := eventPayload(t, eventSubscriptionUpdated, map[string]any{
		"id":                 "sub_1",
		"status":             "active",
		"current_period_end": end.Unix(),
		"metadata":           map[string]string{"account_id": "acc-1"},
		"items": map[string]any{"data": []map[string]any{
			{"price": map[string]string{"id": "price_monthly"}},
		}},
	})

	rec := post(r, payload, signatureFor(payload, testSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.calls, 1)
	assert.Equal(t, "acc-1", store.calls[0].AccountID)
	assert.Equal(t, entitlement.TierMonthly, store.calls[0].Tier)
	require.NotNil(t, store.calls[0].Expiry)
	assert.True(t, end.Equal(*store.calls[0].Expiry))
}

func TestSubscriptionCreatedFromMetadataAndItemPeriod(t *testing.T) {
	store := &recordingStore{}
	r, _ := newTestHandler(t, store)

	end := time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)
	payload := eventPayload(t, eventSubscriptionCreated, map[string]any{
		"id":       "sub_2",
		"status":   "active",
		"metadata": map[string]string{"account_id": "acc-2", "tier": "weekly"},
		"items": map[string]any{"data": []map[string]any{
			{"price": map[string]string{"id": "price_unknown"}, "current_period_end": end.Unix()},
		}},
	})

	rec := post(r, payload, signatureFor(payload, testSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.calls, 1)
	assert.Equal(t, entitlement.TierWeekly, store.calls[0].Tier)
	assert.True(t, end.Equal(*store.calls[0].Expiry))
}

func TestSubscriptionDeletedDowngrades(t *testing.T) {
	store := &recordingStore{}
	r, h := newTestHandler(t, store)

	payload := eventPayload(t, eventSubscriptionDeleted, map[string]any{
		"id":       "sub_3",
		"status":   "canceled",
		"metadata": map[string]string{"account_id": "acc-3"},
	})

	rec := post(r, payload, signatureFor(payload, testSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.calls, 1)
	assert.Equal(t, entitlement.TierFree, store.calls[0].Tier)
	assert.True(t, h.now().Equal(*store.calls[0].Expiry))
}

func TestCanceledStatusOnUpdateDowngrades(t *testing.T) {
	store := &recordingStore{}
	r, _ := newTestHandler(t, store)

	payload := eventPayload(t, eventSubscriptionUpdated, map[string]any{
		"id":       "sub_4",
		"status":   "unpaid",
		"metadata": map[string]string{"account_id": "acc-4", "tier": "monthly"},
	})

	post(r, payload, signatureFor(payload, testSecret, time.Now()))
	require.Len(t, store.calls, 1)
	assert.Equal(t, entitlement.TierFree, store.calls[0].Tier)
}

func TestCheckoutCompleted(t *testing.T) {
	store := &recordingStore{}
	r, h := newTestHandler(t, store)

	bare := eventPayload(t, eventCheckoutCompleted, map[string]any{"id": "cs_1"})
	rec := post(r, bare, signatureFor(bare, testSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.calls)

	tagged := eventPayload(t, eventCheckoutCompleted, map[string]any{
		"id":                  "cs_2",
		"client_reference_id": "acc-5",
		"metadata":            map[string]string{"tier": "weekly"},
	})
	rec = post(r, tagged, signatureFor(tagged, testSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.calls, 1)
	assert.Equal(t, "acc-5", store.calls[0].AccountID)
	assert.True(t, h.now().Add(7*24*time.Hour).Equal(*store.calls[0].Expiry))
}

func TestUnknownAndUnusableEventsAreAcknowledged(t *testing.T) {
	store := &recordingStore{}
	r, _ := newTestHandler(t, store)

	unknown := eventPayload(t, "invoice.paid", map[string]any{"id": "in_1"})
	assert.Equal(t, http.StatusOK, post(r, unknown, signatureFor(unknown, testSecret, time.Now())).Code)

	noAccount := eventPayload(t, eventSubscriptionUpdated, map[string]any{
		"id": "sub_5", "status": "active", "metadata": map[string]string{"tier": "weekly"},
	})
	assert.Equal(t, http.StatusOK, post(r, noAccount, signatureFor(noAccount, testSecret, time.Now())).Code)

	noTier := eventPayload(t, eventSubscriptionUpdated, map[string]any{
		"id": "sub_6", "status": "active", "metadata": map[string]string{"account_id": "acc-6"},
	})
	assert.Equal(t, http.StatusOK, post(r, noTier, signatureFor(noTier, testSecret, time.Now())).Code)

	assert.Empty(t, store.calls)
}

func TestBadSignatureRejected(t *testing.T) {
	store := &recordingStore{}
	r, _ := newTestHandler(t, store)

	payload := eventPayload(t, eventSubscriptionDeleted, map[string]any{
		"id": "sub_7", "metadata": map[string]string{"account_id": "acc-7"},
	})

	assert.Equal(t, http.StatusBadRequest, post(r, payload, signatureFor(payload, "whsec_other", time.Now())).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, payload, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		post(r, payload, signatureFor(payload, testSecret, time.Now().Add(-time.Hour))).Code,
		"stale timestamps fall outside the tolerance")
	assert.Empty(t, store.calls)
}

func TestStoreErrors(t *testing.T) {
	payload := eventPayload(t, eventSubscriptionDeleted, map[string]any{
		"id": "sub_8", "metadata": map[string]string{"account_id": "gone"},
	})

	r, _ := newTestHandler(t, &recordingStore{err: fmt.Errorf("set: %w", core.ErrNotFound)})
	assert.Equal(t, http.StatusOK, post(r, payload, signatureFor(payload, testSecret, time.Now())).Code)

	malformed := core.LookupError(&pgconn.PgError{Code: "22P02"})
	r, _ = newTestHandler(t, &recordingStore{err: fmt.Errorf("set subscription: %w", malformed)})
	assert.Equal(t, http.StatusOK, post(r, payload, signatureFor(payload, testSecret, time.Now())).Code)

	r, _ = newTestHandler(t, &recordingStore{err: errors.New("db down")})
	assert.Equal(t, http.StatusInternalServerError, post(r, payload, signatureFor(payload, testSecret, time.Now())).Code)
}

func TestNewHandlerRejectsUnknownPriceTier(t *testing.T) {
	_, err := NewHandler(&recordingStore{}, config.BillingConfig{
		PriceTiers: map[string]string{"price_x": "lifetime"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
