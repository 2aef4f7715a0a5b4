package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleTenant    = "tenant"
	RoleCaretaker = "caretaker"
	RoleAdmin     = "admin"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string         `gorm:"size:255;not null" json:"name"`
	Phone        string         `gorm:"size:15" json:"phone"` // canonical 2547XXXXXXXX / 2541XXXXXXXX
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;default:'tenant';index" json:"role"` // tenant, caretaker, admin
	PropertyID   *uint          `gorm:"index" json:"property_id"`                   // staff assignment; nil for admins of all properties
	IsActive     bool           `gorm:"default:true" json:"is_active"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// IsStaff reports whether the user manages a property rather than renting in it.
func (u User) IsStaff() bool {
	return u.Role == RoleCaretaker || u.Role == RoleAdmin
}
