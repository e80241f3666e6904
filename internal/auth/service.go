// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
)

const denylistPrefix = "denylist:"

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserInfo is the view of an account the identity flow works with.
type UserInfo struct {
	ID                 string
	Username           string
	Email              string
	DisplayName        string
	AvatarURL          string
	PasswordHash       string
	Role               string
	Tier               string
	SubscriptionExpiry *time.Time
	LastActiveAt       *time.Time
	CreatedAt          time.Time
}

type UserProvider interface {
	Create(
		ctx context.Context,
		username, email, passwordHash string,
	) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	GetByLogin(ctx context.Context, usernameOrEmail string) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	Touch(ctx context.Context, userID string, at time.Time) error
}

type Session struct {
	Account *UserInfo
	Token   *IssuedToken
}

type Service struct {
	jwt               *JWTManager
	userProvider      UserProvider
	redis             *redis.Client
	minPasswordLength int
	now               func() time.Time
}

func NewService(
	jwt *JWTManager,
	userProvider UserProvider,
	redisClient *redis.Client,
	minPasswordLength int,
) *Service {
	return &Service{
		jwt:               jwt,
		userProvider:      userProvider,
		redis:             redisClient,
		minPasswordLength: minPasswordLength,
		now:               jwt.now,
	}
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
) (*Session, error) {
	if len(req.Password) < s.minPasswordLength {
		return nil, core.ValidationError(fmt.Sprintf(
			"password must be at least %d characters", s.minPasswordLength,
		)).WithDetail("field", "password")
	}

	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.userProvider.Create(ctx, req.Username, req.Email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	return s.issue(user)
}

// Login resolves the identifier as username or email. Unknown accounts and
// wrong passwords return the same error after comparable work.
func (s *Service) Login(
	ctx context.Context,
	usernameOrEmail, password string,
) (*Session, error) {
	user, err := s.userProvider.GetByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = core.VerifyPasswordTimingSafe(password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	valid, newHash, err := core.VerifyPasswordTimingSafe(
		password,
		&user.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		if err := s.userProvider.UpdatePassword(ctx, user.ID, newHash); err != nil {
			slog.WarnContext(ctx, "password rehash failed",
				"account_id", user.ID,
				"error", err,
			)
		}
	}

	s.touch(ctx, user)

	return s.issue(user)
}

// VerifyToken returns the account currently stored for a valid, unrevoked
// token together with its claims.
func (s *Service) VerifyToken(
	ctx context.Context,
	token string,
) (*UserInfo, *TokenClaims, error) {
	claims, err := s.jwt.VerifyAccessToken(token)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := s.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	user, err := s.userProvider.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil, fmt.Errorf(
				"verify token: account gone: %w",
				core.ErrTokenInvalid,
			)
		}
		return nil, nil, fmt.Errorf("get account: %w", err)
	}

	s.touch(ctx, user)

	return user, claims, nil
}

// Authenticate satisfies middleware.TokenVerifier.
func (s *Service) Authenticate(
	ctx context.Context,
	token string,
) (*middleware.Principal, error) {
	user, claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	return &middleware.Principal{
		AccountID: user.ID,
		Username:  user.Username,
		Role:      user.Role,
		Tier:      user.Tier,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func (s *Service) RefreshToken(
	ctx context.Context,
	accountID string,
) (*Session, error) {
	user, err := s.userProvider.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	return s.issue(user)
}

// Logout denylists the token id until the token would have expired anyway.
func (s *Service) Logout(
	ctx context.Context,
	tokenID string,
	expiresAt time.Time,
) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, denylistPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("denylist token: %w", err)
	}

	return nil
}

func (s *Service) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	exists, err := s.redis.Exists(ctx, denylistPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check denylist: %w", err)
	}

	return exists > 0, nil
}

func (s *Service) GetProfile(
	ctx context.Context,
	accountID string,
) (*UserInfo, error) {
	return s.userProvider.GetByID(ctx, accountID)
}

func (s *Service) issue(user *UserInfo) (*Session, error) {
	token, err := s.jwt.CreateAccessToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	return &Session{Account: user, Token: token}, nil
}

func (s *Service) touch(ctx context.Context, user *UserInfo) {
	now := s.now()
	if err := s.userProvider.Touch(ctx, user.ID, now); err != nil {
		slog.WarnContext(ctx, "touch last_active_at failed",
			"account_id", user.ID,
			"error", err,
		)
		return
	}
	user.LastActiveAt = &now
}
