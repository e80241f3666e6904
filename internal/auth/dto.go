// AngelaMos | 2026
// dto.go

package auth

import (
	"strings"
	"time"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,excludes=@"`
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginRequest takes the identifier as usernameOrEmail. username_or_email and
// plain username / email are accepted for older clients.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	LegacyLogin     string `json:"username_or_email,omitempty"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email,omitempty"`
	Password        string `json:"password"                    validate:"required,max=128"`
}

func (r *LoginRequest) Identifier() string {
	for _, v := range []string{r.UsernameOrEmail, r.LegacyLogin, r.Username, r.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresIn int       `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AccountResponse struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	DisplayName        string     `json:"display_name"`
	AvatarURL          string     `json:"avatar_url,omitempty"`
	Role               string     `json:"role"`
	Tier               string     `json:"tier"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry"`
	LastActiveAt       *time.Time `json:"last_active_at"`
	CreatedAt          time.Time  `json:"created_at"`
}

type AuthResponse struct {
	Account AccountResponse `json:"account"`
	TokenResponse
}

type ProfileResponse struct {
	Account AccountResponse `json:"account"`
}

func ToAccountResponse(u *UserInfo) AccountResponse {
	return AccountResponse{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		AvatarURL:          u.AvatarURL,
		Role:               u.Role,
		Tier:               u.Tier,
		SubscriptionExpiry: u.SubscriptionExpiry,
		LastActiveAt:       u.LastActiveAt,
		CreatedAt:          u.CreatedAt,
	}
}
