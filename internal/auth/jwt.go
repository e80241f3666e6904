// AngelaMos | 2026
// jwt.go

package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/rti-cashflowops/internal/config"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

const (
	tokenTypeAccess = "access"
	claimType       = "type"
	keyIDLength     = 16
)

// JWTManager signs and verifies ES256 session tokens and publishes the
// verification key as a JWKS.
type JWTManager struct {
	signingKey jwk.Key
	verifyKey  jwk.Key
	jwks       jwk.Set
	keyID      string
	config     config.JWTConfig
	now        func() time.Time
}

func NewJWTManager(cfg config.JWTConfig) (*JWTManager, error) {
	pemBytes, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	key, err := jwk.ParseKey(pemBytes, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return newJWTManager(key, cfg, time.Now)
}

// NewJWTManagerFromKey builds a manager around an in-memory key. now may be
// nil, in which case the wall clock is used.
func NewJWTManagerFromKey(
	key *ecdsa.PrivateKey,
	cfg config.JWTConfig,
	now func() time.Time,
) (*JWTManager, error) {
	imported, err := jwk.Import(key)
	if err != nil {
		return nil, fmt.Errorf("import private key: %w", err)
	}

	if now == nil {
		now = time.Now
	}
	return newJWTManager(imported, cfg, now)
}

func newJWTManager(
	signingKey jwk.Key,
	cfg config.JWTConfig,
	now func() time.Time,
) (*JWTManager, error) {
	verifyKey, err := signingKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	keyID, err := thumbprintKeyID(verifyKey)
	if err != nil {
		return nil, err
	}

	for _, k := range []jwk.Key{signingKey, verifyKey} {
		if err := k.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
			return nil, fmt.Errorf("set algorithm: %w", err)
		}
		if err := k.Set(jwk.KeyIDKey, keyID); err != nil {
			return nil, fmt.Errorf("set key id: %w", err)
		}
	}
	if err := verifyKey.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("set key usage: %w", err)
	}

	jwks := jwk.NewSet()
	if err := jwks.AddKey(verifyKey); err != nil {
		return nil, fmt.Errorf("add key to set: %w", err)
	}

	return &JWTManager{
		signingKey: signingKey,
		verifyKey:  verifyKey,
		jwks:       jwks,
		keyID:      keyID,
		config:     cfg,
		now:        now,
	}, nil
}

// thumbprintKeyID derives the kid from the RFC 7638 thumbprint, so every
// instance loading the same key advertises the same id.
func thumbprintKeyID(public jwk.Key) (string, error) {
	sum, err := public.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum)[:keyIDLength], nil
}

// GenerateKeyPair writes a fresh P-256 key pair as PEM.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	private, err := jwk.Import(raw)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}
	public, err := private.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	if err := writePEM(privateKeyPath, private, 0o600); err != nil {
		return fmt.Errorf("private key: %w", err)
	}
	//nolint:gosec // G306: public key is world-readable
	if err := writePEM(publicKeyPath, public, 0o644); err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	return nil
}

func writePEM(path string, key jwk.Key, perm os.FileMode) error {
	encoded, err := jwk.Pem(key)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := os.WriteFile(path, encoded, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// IssuedToken is a signed access token plus the registered claims a caller
// needs without re-parsing it.
type IssuedToken struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenClaims struct {
	AccountID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CreateAccessToken issues a token with a fresh jti on every call.
func (m *JWTManager) CreateAccessToken(accountID string) (*IssuedToken, error) {
	issued := &IssuedToken{
		TokenID:  uuid.NewString(),
		IssuedAt: m.now().Truncate(time.Second),
	}
	issued.ExpiresAt = issued.IssuedAt.Add(m.config.AccessTokenExpire)

	token, err := jwt.NewBuilder().
		JwtID(issued.TokenID).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(accountID).
		IssuedAt(issued.IssuedAt).
		NotBefore(issued.IssuedAt).
		Expiration(issued.ExpiresAt).
		Claim(claimType, tokenTypeAccess).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.signingKey))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	issued.Token = string(signed)
	return issued, nil
}

// VerifyAccessToken checks signature, issuer, audience, type and lifetime.
// Expiry is reported as core.ErrTokenExpired, every other failure as
// core.ErrTokenInvalid.
func (m *JWTManager) VerifyAccessToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.verifyKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		if isExpired(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	claims, err := claimsFrom(token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w: %w", err, core.ErrTokenInvalid)
	}
	return claims, nil
}

func claimsFrom(token jwt.Token) (*TokenClaims, error) {
	var tokenType string
	if err := token.Get(claimType, &tokenType); err != nil || tokenType != tokenTypeAccess {
		return nil, fmt.Errorf("token type %q", tokenType)
	}

	claims := &TokenClaims{}

	var ok bool
	if claims.AccountID, ok = token.Subject(); !ok || claims.AccountID == "" {
		return nil, fmt.Errorf("missing subject")
	}
	if claims.TokenID, ok = token.JwtID(); !ok || claims.TokenID == "" {
		return nil, fmt.Errorf("missing jti")
	}
	claims.IssuedAt, _ = token.IssuedAt()
	claims.ExpiresAt, _ = token.Expiration()

	return claims, nil
}

// isExpired matches the exp validation failure, which jwx reports as
// `"exp" not satisfied`.
func isExpired(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "exp") && strings.Contains(msg, "not satisfied")
}

func (m *JWTManager) GetJWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body, err := json.Marshal(m.jwks)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(body) //nolint:errcheck // client went away
	}
}

func (m *JWTManager) GetKeyID() string {
	return m.keyID
}
