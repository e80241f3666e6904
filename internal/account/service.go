// AngelaMos | 2026
// service.go

package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/rti-cashflowops/internal/auth"
	"github.com/carterperez-dev/rti-cashflowops/internal/avatar"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
)

// ActiveWindow bounds how long ago an account must have been seen to be
// listed as active.
const ActiveWindow = 15 * time.Minute

type Service struct {
	repo              Repository
	avatars           avatar.Storage
	minPasswordLength int
	now               func() time.Time
}

func NewService(
	repo Repository,
	avatars avatar.Storage,
	minPasswordLength int,
) *Service {
	return &Service{
		repo:              repo,
		avatars:           avatars,
		minPasswordLength: minPasswordLength,
		now:               time.Now,
	}
}

func (s *Service) Create(
	ctx context.Context,
	username, email, passwordHash string,
) (*auth.UserInfo, error) {
	a := &Account{
		ID:           uuid.New().String(),
		Username:     strings.TrimSpace(username),
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(username),
		Role:         entitlement.RoleUser,
		Tier:         entitlement.TierFree,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	return s.toUserInfo(a), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*auth.UserInfo, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toUserInfo(a), nil
}

// GetByLogin tries the identifier as a username first, then as an email.
func (s *Service) GetByLogin(
	ctx context.Context,
	usernameOrEmail string,
) (*auth.UserInfo, error) {
	identifier := strings.TrimSpace(usernameOrEmail)

	a, err := s.repo.GetByUsername(ctx, identifier)
	if errors.Is(err, core.ErrNotFound) && strings.Contains(identifier, "@") {
		a, err = s.repo.GetByEmail(ctx, normalizeEmail(identifier))
	}
	if err != nil {
		return nil, err
	}

	return s.toUserInfo(a), nil
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) Touch(ctx context.Context, userID string, at time.Time) error {
	return s.repo.Touch(ctx, userID, at)
}

func (s *Service) GetSubject(
	ctx context.Context,
	accountID string,
) (entitlement.Subject, error) {
	a, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return entitlement.Subject{}, err
	}
	return a.Subject(), nil
}

func (s *Service) DowngradeToFree(ctx context.Context, accountID string) error {
	return s.repo.DowngradeToFree(ctx, accountID)
}

func (s *Service) DowngradeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DowngradeExpired(ctx, now)
}

func (s *Service) SetSubscription(
	ctx context.Context,
	accountID string,
	tier entitlement.Tier,
	expiry *time.Time,
) error {
	if !tier.Valid() {
		return fmt.Errorf("set subscription: invalid tier %q: %w", tier, core.ErrInvalidInput)
	}
	return s.repo.SetSubscription(ctx, accountID, tier, expiry)
}

func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(
	ctx context.Context,
	id string,
	req UpdateProfileRequest,
) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Username != nil {
		a.Username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		a.Email = normalizeEmail(*req.Email)
	}
	if req.DisplayName != nil {
		a.DisplayName = strings.TrimSpace(*req.DisplayName)
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	id, currentPassword, newPassword string,
) error {
	if len(newPassword) < s.minPasswordLength {
		return core.ValidationError(fmt.Sprintf(
			"new_password must be at least %d characters", s.minPasswordLength,
		)).WithDetail("field", "new_password")
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	valid, _, err := core.VerifyPasswordWithRehash(currentPassword, a.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return core.UnauthorizedError("current password is incorrect")
	}

	hash, err := core.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.repo.UpdatePassword(ctx, id, hash)
}

// UploadAvatar normalises the image, stores it under a fresh key and points
// the account at it. The previous object is removed on a best-effort basis.
func (s *Service) UploadAvatar(
	ctx context.Context,
	id string,
	r io.Reader,
) (*Account, error) {
	if s.avatars == nil {
		return nil, core.InternalError(errors.New("avatar storage not configured"))
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := avatar.Process(r)
	if err != nil {
		return nil, err
	}

	key := avatar.NewKey(a.ID)
	if err := s.avatars.Put(ctx, key, data, avatar.ContentType); err != nil {
		return nil, fmt.Errorf("store avatar: %w", err)
	}

	previous := a.AvatarKey
	a.AvatarKey = key

	if err := s.repo.Update(ctx, a); err != nil {
		//nolint:errcheck // orphan cleanup
		_ = s.avatars.Delete(ctx, key)
		return nil, err
	}

	if previous != "" {
		if err := s.avatars.Delete(ctx, previous); err != nil {
			slog.WarnContext(ctx, "delete previous avatar failed",
				"account_id", a.ID,
				"key", previous,
				"error", err,
			)
		}
	}

	return a, nil
}

// ListActive returns accounts seen within ActiveWindow, most recently active
// first.
func (s *Service) ListActive(ctx context.Context) ([]Account, error) {
	return s.repo.ListActive(ctx, s.now().Add(-ActiveWindow))
}

func (s *Service) CountByTier(ctx context.Context) (map[entitlement.Tier]int, error) {
	return s.repo.CountByTier(ctx)
}

func (s *Service) ListAccounts(
	ctx context.Context,
	params ListParams,
) ([]Account, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) UpdateRole(ctx context.Context, id, role string) (*Account, error) {
	if role != entitlement.RoleUser && role != entitlement.RoleAdmin {
		return nil, fmt.Errorf("update role: invalid role %q: %w", role, core.ErrInvalidInput)
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a.Role = role
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Service) UpdateSubscription(
	ctx context.Context,
	id string,
	req UpdateSubscriptionRequest,
) (*Account, error) {
	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		return nil, err
	}

	if err := s.SetSubscription(ctx, id, tier, req.SubscriptionExpiry); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, id)
}

func (s *Service) CanDelete(ctx context.Context, requesterID, targetID string) error {
	if requesterID == targetID {
		return fmt.Errorf("cannot delete own account here: %w", core.ErrForbidden)
	}

	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	if target.IsAdmin() {
		return fmt.Errorf("cannot delete admin accounts: %w", core.ErrForbidden)
	}

	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if a.AvatarKey != "" && s.avatars != nil {
		//nolint:errcheck // best-effort cleanup
		_ = s.avatars.Delete(ctx, a.AvatarKey)
	}

	return nil
}

func (s *Service) avatarURL(a *Account) string {
	if s.avatars == nil || a.AvatarKey == "" {
		return ""
	}
	return s.avatars.URL(a.AvatarKey)
}

func (s *Service) toUserInfo(a *Account) *auth.UserInfo {
	lastActive := a.LastActiveAt
	return &auth.UserInfo{
		ID:                 a.ID,
		Username:           a.Username,
		Email:              a.Email,
		DisplayName:        a.DisplayName,
		AvatarURL:          s.avatarURL(a),
		PasswordHash:       a.PasswordHash,
		Role:               a.Role,
		Tier:               a.Tier.String(),
		SubscriptionExpiry: a.SubscriptionExpiry,
		LastActiveAt:       &lastActive,
		CreatedAt:          a.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	_ auth.UserProvider        = (*Service)(nil)
	_ entitlement.Store        = (*Service)(nil)
	_ entitlement.ExpiredStore = (*Service)(nil)
)
