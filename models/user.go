package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleNone     UserRole = ""
	RoleCommon   UserRole = "common"
	RoleProvider UserRole = "provider"
)

// ErrImmutableRecord is returned by hooks on write-once tables.
var ErrImmutableRecord = errors.New("record is immutable")

type User struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Email           string     `json:"email" gorm:"size:254;uniqueIndex;not null"`
	Username        string     `json:"username" gorm:"size:150;not null"`
	FirstName       string     `json:"first_name" gorm:"size:150;not null"`
	LastName        string     `json:"last_name" gorm:"size:150;not null"`
	PasswordHash    string     `json:"-" gorm:"size:255;not null"` // Hidden from JSON
	Role            UserRole   `json:"role" gorm:"type:varchar(10);not null;default:'';check:role IN ('','common','provider')"`
	ProfileComplete bool       `json:"profile_complete" gorm:"not null;default:false"`
	IsStaff         bool       `json:"is_staff" gorm:"not null;default:false"`
	IsSuperuser     bool       `json:"is_superuser" gorm:"not null;default:false"`
	IsActive        bool       `json:"is_active" gorm:"not null"`
	LastLoginAt     *time.Time `json:"last_login_at"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsProvider checks if the user currently holds the provider role
func (u *User) IsProvider() bool {
	return u.Role == RoleProvider
}

// OwnedBy reports whether the account belongs to userID
func (u *User) OwnedBy(userID uint) bool {
	return u.ID == userID
}

// ParseAssignableRole accepts the roles an admin may assign.
func ParseAssignableRole(s string) (UserRole, bool) {
	switch UserRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCommon:
		return RoleCommon, true
	case RoleProvider:
		return RoleProvider, true
	default:
		return RoleNone, false
	}
}

// UserRoleChangeLog is the append-only history of role transitions.
type UserRoleChangeLog struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"user_id" gorm:"not null;index"`
	User         *User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	PreviousRole UserRole  `json:"previous_role" gorm:"type:varchar(10);not null"`
	NewRole      UserRole  `json:"new_role" gorm:"type:varchar(10);not null"`
	Reason       string    `json:"reason" gorm:"type:text;not null"`
	ChangedByID  *uint     `json:"changed_by_id" gorm:"index"`
	ChangedBy    *User     `json:"changed_by,omitempty" gorm:"foreignKey:ChangedByID"`
	ChangedAt    time.Time `json:"changed_at" gorm:"autoCreateTime;index"`
}

func (UserRoleChangeLog) TableName() string {
	return "user_role_change_logs"
}

// BeforeUpdate rejects any attempt to rewrite an audit entry
func (l *UserRoleChangeLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableRecord
}

// BeforeDelete rejects any attempt to remove an audit entry
func (l *UserRoleChangeLog) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableRecord
}
