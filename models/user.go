// Package models contains the GORM entities persisted by the deposit service
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeeTier determines the deposit fee percentage applied to a user's orders
type FeeTier string

const (
	FeeTierStandard FeeTier = "standard"
	FeeTierSilver   FeeTier = "silver"
	FeeTierGold     FeeTier = "gold"
	FeeTierVIP      FeeTier = "vip"
)

// User represents an account that can deposit funds and hold a balance
type User struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	FirstName    string `gorm:"type:varchar(100)" json:"first_name"`
	LastName     string `gorm:"type:varchar(100)" json:"last_name"`

	// FeeTier fixes the fee percentage read at order-creation time
	FeeTier FeeTier `gorm:"type:varchar(20);not null;default:'standard'" json:"fee_tier"`

	IsActive *bool `gorm:"not null;default:true" json:"is_active"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Wallet        *Wallet        `gorm:"foreignKey:UserID" json:"wallet,omitempty"`
	DepositOrders []DepositOrder `gorm:"foreignKey:UserID" json:"deposit_orders,omitempty"`
}

// BeforeCreate ensures UUID is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	return nil
}

// UserFilter represents filter criteria for user queries
type UserFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	Email         *string    `json:"email,omitempty"`
	FeeTier       *FeeTier   `json:"fee_tier,omitempty"`
	IsActive      *bool      `json:"is_active,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
