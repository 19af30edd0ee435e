// Package domain holds the account directory records consulted by billing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is the authorization role carried by an account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	default:
		return false
	}
}

// Account is an identity owned by the upstream identity service.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Email     string       `gorm:"type:varchar(320);not null;uniqueIndex:ux_accounts_email"`
	Role      Role         `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }
