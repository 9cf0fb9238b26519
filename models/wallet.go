package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wallet holds a user's current fiat balance. The balance column is only
// ever mutated by the ledger service, under a row-level lock, together
// with an appended LedgerEntry describing the change.
type Wallet struct {
	ID     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	UserID uint      `gorm:"not null;uniqueIndex" json:"user_id"`

	// BalanceCents is the spendable balance in cents
	BalanceCents int64  `gorm:"not null;default:0" json:"balance_cents"`
	Currency     string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User          User          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	LedgerEntries []LedgerEntry `gorm:"foreignKey:WalletID" json:"ledger_entries,omitempty"`
}

// BeforeCreate ensures UUID is set
func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	return nil
}

// WalletFilter represents filter criteria for wallet queries
type WalletFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	UserID        *uint      `json:"user_id,omitempty"`
	Currency      *string    `json:"currency,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
