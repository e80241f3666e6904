// AngelaMos | 2026
// dto.go

package account

import (
	"time"

	"github.com/carterperez-dev/rti-cashflowops/internal/auth"
)

type UpdateProfileRequest struct {
	Username    *string `json:"username,omitempty"     validate:"omitempty,min=3,max=32,excludes=@"`
	Email       *string `json:"email,omitempty"        validate:"omitempty,email,max=255"`
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,max=100"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,max=128"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// UpdateSubscriptionRequest sets tier and expiry together. A nil expiry
// clears it.
type UpdateSubscriptionRequest struct {
	Tier               string     `json:"tier"                          validate:"required,oneof=free weekly monthly"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"`
}

type PublicAccountResponse struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type ActiveAccountsResponse struct {
	Accounts  []PublicAccountResponse `json:"accounts"`
	Total     int                     `json:"total"`
	Truncated bool                    `json:"truncated"`
}

type ListParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search"`
	Role     string `json:"role"`
	Tier     string `json:"tier"`
}

func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (s *Service) toResponse(a *Account) auth.AccountResponse {
	return auth.ToAccountResponse(s.toUserInfo(a))
}

func (s *Service) toResponseList(accounts []Account) []auth.AccountResponse {
	out := make([]auth.AccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, s.toResponse(&accounts[i]))
	}
	return out
}

func (s *Service) toPublic(a *Account) PublicAccountResponse {
	return PublicAccountResponse{
		ID:           a.ID,
		Username:     a.Username,
		DisplayName:  a.DisplayName,
		AvatarURL:    s.avatarURL(a),
		LastActiveAt: a.LastActiveAt,
	}
}
