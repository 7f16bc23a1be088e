package domain

import "time"

const (
	MaxFailedLoginAttempts = 5
	AccountLockDuration    = 15 * time.Minute
)

type User struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Name                string     `json:"name"`
	Email               string     `json:"email" gorm:"uniqueIndex;size:255"`
	Phone               string     `json:"phone,omitempty" gorm:"size:32"`
	PasswordHash        string     `json:"-"`
	IsAdmin             bool       `json:"is_admin"`
	IsActive            bool       `json:"is_active" gorm:"default:true"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsLocked reports whether the account is inside a lockout window.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
