// AngelaMos | 2026
// errors_test.go

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAppError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("op: %w", ErrInvalidInput), http.StatusBadRequest, KindValidation},
		{fmt.Errorf("op: %w", ErrDuplicateKey), http.StatusConflict, KindConflict},
		{fmt.Errorf("op: %w", ErrTokenExpired), http.StatusUnauthorized, KindAuthentication},
		{fmt.Errorf("op: %w", ErrTokenInvalid), http.StatusUnauthorized, KindAuthentication},
		{fmt.Errorf("op: %w", ErrNotFound), http.StatusNotFound, KindNotFound},
		{fmt.Errorf("op: %w", ErrForbidden), http.StatusForbidden, KindForbidden},
		{fmt.Errorf("op: %w", ErrSubscriptionExpired), http.StatusPaymentRequired, KindEntitlement},
		{errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			appErr := ToAppError(tt.err)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Equal(t, tt.kind, appErr.Kind)
		})
	}
}

func TestTokenErrors_Indistinguishable(t *testing.T) {
	expired := TokenExpiredError()
	invalid := TokenInvalidError()
	revoked := TokenRevokedError()

	assert.Equal(t, expired.Code, invalid.Code)
	assert.Equal(t, expired.Message, revoked.Message)
	assert.True(t, errors.Is(expired, ErrTokenExpired))
	assert.True(t, errors.Is(invalid, ErrTokenInvalid))
}

func TestJSONError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Kind string `json:"kind"`
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, KindInternal, body.Error.Kind)
}

func TestEntitlementError_Details(t *testing.T) {
	appErr := EntitlementError(ErrSubscriptionRequired, "weekly", "free")

	assert.Equal(t, http.StatusPaymentRequired, appErr.Status)
	assert.Equal(t, "SubscriptionRequired", appErr.Code)
	assert.Equal(t, "weekly", appErr.Details["requiredTier"])
	assert.Equal(t, "free", appErr.Details["currentTier"])

	expired := EntitlementError(ErrSubscriptionExpired, "weekly", "free")
	assert.Equal(t, "SubscriptionExpired", expired.Code)
}

func TestPaginated_Meta(t *testing.T) {
	rec := httptest.NewRecorder()
	Paginated(rec, []int{1, 2}, 2, 10, 25)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Meta)
	assert.Equal(t, 3, body.Meta.TotalPages)
}

func TestJSONError_EntitlementBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, EntitlementError(ErrSubscriptionExpired, "weekly", "free"))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.JSONEq(t, `{
		"success": false,
		"error": {
			"kind": "EntitlementError",
			"code": "SubscriptionExpired",
			"message": "your subscription has expired",
			"details": {"requiredTier": "weekly", "currentTier": "free"}
		},
		"requiredTier": "weekly",
		"currentTier": "free"
	}`, rec.Body.String())
}

func TestJSONError_NonEntitlementOmitsTiers(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, NotFoundError("alert"))

	assert.NotContains(t, rec.Body.String(), "requiredTier")
	assert.NotContains(t, rec.Body.String(), "currentTier")
}
