package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerEntryType represents the business reason for a balance change
type LedgerEntryType string

const (
	LedgerEntryTypeDeposit    LedgerEntryType = "deposit"    // Net deposit credit
	LedgerEntryTypeFee        LedgerEntryType = "fee"        // Fee deducted from a deposit
	LedgerEntryTypeDebit      LedgerEntryType = "debit"      // Spend from balance
	LedgerEntryTypeAdjustment LedgerEntryType = "adjustment" // Manual correction
)

// LedgerReferenceType names the entity a ledger entry points back at
type LedgerReferenceType string

const (
	LedgerReferenceTypeOrder       LedgerReferenceType = "deposit_order"
	LedgerReferenceTypeTransaction LedgerReferenceType = "crypto_transaction"
)

// LedgerEntry is an immutable record of a single balance change. Rows are
// append-only and always satisfy
// BalanceAfterCents - BalanceBeforeCents == AmountCents.
type LedgerEntry struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	UserID   uint `gorm:"not null;index" json:"user_id"`
	WalletID uint `gorm:"not null;index" json:"wallet_id"`

	// Signed change in cents; negative for debits and fees
	AmountCents        int64 `gorm:"not null" json:"amount_cents"`
	BalanceBeforeCents int64 `gorm:"not null" json:"balance_before_cents"`
	BalanceAfterCents  int64 `gorm:"not null" json:"balance_after_cents"`

	Type          LedgerEntryType     `gorm:"type:varchar(20);not null;index" json:"type"`
	ReferenceType LedgerReferenceType `gorm:"type:varchar(30);not null" json:"reference_type"`
	ReferenceID   uint                `gorm:"not null;index" json:"reference_id"`

	Description string `gorm:"type:text" json:"description"`

	// Audit fields (no UpdatedAt: entries are never updated)
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Wallet Wallet `gorm:"foreignKey:WalletID;constraint:OnDelete:CASCADE" json:"wallet,omitempty"`
}

// BeforeCreate ensures UUID and CorrelationID are set
func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	if e.CorrelationID == uuid.Nil {
		e.CorrelationID = uuid.New()
	}
	return nil
}

// Balanced reports whether the entry's before/after amounts are consistent
// with its signed amount.
func (e *LedgerEntry) Balanced() bool {
	return e.BalanceAfterCents-e.BalanceBeforeCents == e.AmountCents
}

// LedgerEntryFilter represents filter criteria for ledger entry queries
type LedgerEntryFilter struct {
	ID            *uint                `json:"id,omitempty"`
	UUID          *uuid.UUID           `json:"uuid,omitempty"`
	CorrelationID *uuid.UUID           `json:"correlation_id,omitempty"`
	UserID        *uint                `json:"user_id,omitempty"`
	WalletID      *uint                `json:"wallet_id,omitempty"`
	Type          *LedgerEntryType     `json:"type,omitempty"`
	ReferenceType *LedgerReferenceType `json:"reference_type,omitempty"`
	ReferenceID   *uint                `json:"reference_id,omitempty"`
	CreatedAfter  *time.Time           `json:"created_after,omitempty"`
	CreatedBefore *time.Time           `json:"created_before,omitempty"`
}
