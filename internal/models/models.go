package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleStudent    = "STUDENT"
	RoleTeacher    = "TEACHER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

type User struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"   json:"id"`
	Username            string     `gorm:"uniqueIndex;not null"   json:"username"`
	Email               string     `gorm:"uniqueIndex;not null"   json:"email"`
	PasswordHash        string     `gorm:"not null"               json:"-"`
	FullName            string     `gorm:"not null"               json:"full_name"`
	Phone               *string    `json:"phone,omitempty"`
	Role                string     `gorm:"not null"               json:"role"`
	IsActive            bool       `gorm:"default:true"           json:"is_active"`
	FailedLoginAttempts int        `gorm:"not null;default:0"     json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type RefreshToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"           json:"id"`
	Token     string     `gorm:"type:text;uniqueIndex;not null" json:"token"`
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null"       json:"user_id"`
	ExpiresAt time.Time  `gorm:"index;not null"                 json:"expires_at"`
	Revoked   bool       `gorm:"not null;default:false"         json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (t *RefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
