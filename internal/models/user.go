package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account that drafts, submits or approves valve records
type User struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Username           string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	PasswordHash       string     `gorm:"column:password_hash;size:200;not null" json:"-"`
	Role               string     `gorm:"size:20;default:employee;not null" json:"role"`
	RealName           string     `gorm:"size:50" json:"real_name"`
	Dept               string     `gorm:"size:50" json:"dept"`
	Status             string     `gorm:"size:20;default:active" json:"status"`
	MustChangePassword bool       `gorm:"default:false" json:"must_change_password"`
	LastLoginAt        *time.Time `json:"last_login_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook for setting defaults
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleEmployee
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	return nil
}

// IsAdmin returns true if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsPrivileged returns true for roles allowed to approve or reject records
func (u *User) IsPrivileged() bool {
	return IsPrivilegedRole(u.Role)
}

// IsActive returns true if user status is active
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// DisplayName prefers the real name over the login name
func (u *User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Username
}

// Role constants
const (
	RoleAdmin    = "admin"
	RoleLeader   = "leader"
	RoleEmployee = "employee"
)

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// IsPrivilegedRole reports whether role may approve/reject
func IsPrivilegedRole(role string) bool {
	return role == RoleLeader || role == RoleAdmin
}

// ValidRoles lists every assignable role
func ValidRoles() []string {
	return []string{RoleEmployee, RoleLeader, RoleAdmin}
}

// UserResponse is the JSON response format for users
type UserResponse struct {
	ID                 uint       `json:"id"`
	Username           string     `json:"username"`
	RealName           string     `json:"real_name"`
	Dept               string     `json:"dept"`
	Role               string     `json:"role"`
	Status             string     `json:"status"`
	MustChangePassword bool       `json:"must_change_password"`
	LastLoginAt        *time.Time `json:"last_login_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Username:           u.Username,
		RealName:           u.RealName,
		Dept:               u.Dept,
		Role:               u.Role,
		Status:             u.Status,
		MustChangePassword: u.MustChangePassword,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}
