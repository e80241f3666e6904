// AngelaMos | 2026
// jwt_test.go

package auth_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/rti-cashflowops/internal/auth"
	"github.com/carterperez-dev/rti-cashflowops/internal/config"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessTokenExpire: time.Hour,
		Issuer:            "cashflowops-test",
		Audience:          "cashflowops-api",
	}
}

func newManager(t *testing.T, now func() time.Time) *auth.JWTManager {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	m, err := auth.NewJWTManagerFromKey(key, jwtConfig(), now)
	require.NoError(t, err)
	return m
}

func TestJWTRoundTrip(t *testing.T) {
	m := newManager(t, nil)

	issued, err := m.CreateAccessToken("acc-1")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.TokenID)
	assert.Equal(t, time.Hour, issued.ExpiresAt.Sub(issued.IssuedAt))

	claims, err := m.VerifyAccessToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, issued.TokenID, claims.TokenID)
	assert.True(t, claims.ExpiresAt.Equal(issued.ExpiresAt))
}

func TestJWTFreshTokenIDs(t *testing.T) {
	m := newManager(t, nil)

	a, err := m.CreateAccessToken("acc-1")
	require.NoError(t, err)
	b, err := m.CreateAccessToken("acc-1")
	require.NoError(t, err)

	assert.NotEqual(t, a.TokenID, b.TokenID)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestJWTExpiredTokenRejected(t *testing.T) {
	clock := time.Now().Add(-2 * time.Hour)
	m := newManager(t, func() time.Time { return clock })

	issued, err := m.CreateAccessToken("acc-1")
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(issued.Token)
	require.NoError(t, err, "valid at issue time")

	clock = issued.ExpiresAt.Add(time.Second)

	_, err = m.VerifyAccessToken(issued.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.NotErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWTTamperedTokenRejected(t *testing.T) {
	m := newManager(t, nil)

	issued, err := m.CreateAccessToken("acc-1")
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)

	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = m.VerifyAccessToken(tampered)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
	assert.NotErrorIs(t, err, core.ErrTokenExpired)
}

func TestJWTWrongKeyRejected(t *testing.T) {
	issued, err := newManager(t, nil).CreateAccessToken("acc-1")
	require.NoError(t, err)

	_, err = newManager(t, nil).VerifyAccessToken(issued.Token)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWTGarbageRejected(t *testing.T) {
	_, err := newManager(t, nil).VerifyAccessToken("not.a.jwt")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWKSHandler(t *testing.T) {
	m := newManager(t, nil)

	rec := httptest.NewRecorder()
	m.GetJWKSHandler()(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 1)
	assert.Equal(t, m.GetKeyID(), body.Keys[0]["kid"])
	assert.Equal(t, "EC", body.Keys[0]["kty"])
	assert.NotContains(t, body.Keys[0], "d", "private component must not be published")
}

func TestJWTKeyIDStableForSameKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	a, err := auth.NewJWTManagerFromKey(key, jwtConfig(), nil)
	require.NoError(t, err)
	b, err := auth.NewJWTManagerFromKey(key, jwtConfig(), nil)
	require.NoError(t, err)

	assert.Len(t, a.GetKeyID(), 16)
	assert.Equal(t, a.GetKeyID(), b.GetKeyID())

	issued, err := a.CreateAccessToken("acc-1")
	require.NoError(t, err)
	_, err = b.VerifyAccessToken(issued.Token)
	assert.NoError(t, err, "instances sharing a key accept each other's tokens")
}

func TestGenerateKeyPairLoads(t *testing.T) {
	dir := t.TempDir()
	cfg := jwtConfig()
	cfg.PrivateKeyPath = filepath.Join(dir, "private.pem")
	cfg.PublicKeyPath = filepath.Join(dir, "public.pem")

	require.NoError(t, auth.GenerateKeyPair(cfg.PrivateKeyPath, cfg.PublicKeyPath))

	info, err := os.Stat(cfg.PrivateKeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	m, err := auth.NewJWTManager(cfg)
	require.NoError(t, err)

	issued, err := m.CreateAccessToken("acc-9")
	require.NoError(t, err)
	claims, err := m.VerifyAccessToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "acc-9", claims.AccountID)
}

func TestNewJWTManagerMissingKey(t *testing.T) {
	cfg := jwtConfig()
	cfg.PrivateKeyPath = filepath.Join(t.TempDir(), "absent.pem")

	_, err := auth.NewJWTManager(cfg)
	assert.ErrorContains(t, err, "read private key")
}
