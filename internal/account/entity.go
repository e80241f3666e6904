// AngelaMos | 2026
// entity.go

package account

import (
	"time"

	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
)

type Account struct {
	ID                 string           `db:"id"`
	Username           string           `db:"username"`
	Email              string           `db:"email"`
	PasswordHash       string           `db:"password_hash"`
	DisplayName        string           `db:"display_name"`
	AvatarKey          string           `db:"avatar_key"`
	Role               string           `db:"role"`
	Tier               entitlement.Tier `db:"tier"`
	SubscriptionExpiry *time.Time       `db:"subscription_expiry"`
	LastActiveAt       time.Time        `db:"last_active_at"`
	CreatedAt          time.Time        `db:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at"`
}

func (a *Account) IsAdmin() bool {
	return a.Role == entitlement.RoleAdmin
}

func (a *Account) Subject() entitlement.Subject {
	return entitlement.Subject{
		AccountID:          a.ID,
		Role:               a.Role,
		Tier:               a.Tier,
		SubscriptionExpiry: a.SubscriptionExpiry,
	}
}
