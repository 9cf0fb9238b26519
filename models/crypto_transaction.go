package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CryptoTransactionStatus represents the status of a crypto transaction
type CryptoTransactionStatus string

const (
	CryptoTransactionStatusPending    CryptoTransactionStatus = "pending"
	CryptoTransactionStatusConfirming CryptoTransactionStatus = "confirming"
	CryptoTransactionStatusCompleted  CryptoTransactionStatus = "completed"
	CryptoTransactionStatusFailed     CryptoTransactionStatus = "failed"
)

// CryptoTransaction records the on-chain payment that settled a deposit
// order. At most one completed transaction exists per order; it is written
// in the same webhook handling pass that credits the wallet.
type CryptoTransaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	OrderID uint `gorm:"not null;index" json:"order_id"`
	UserID  uint `gorm:"not null;index" json:"user_id"`

	// Crypto leg as reported by the gateway (strings preserved verbatim)
	CryptoCurrency string `gorm:"type:varchar(10);not null" json:"crypto_currency"`
	CryptoAmount   string `gorm:"type:varchar(64);not null" json:"crypto_amount"`
	ExchangeRate   string `gorm:"type:varchar(64)" json:"exchange_rate"`

	// Fiat leg copied from the order at crediting time (cents)
	FiatCurrency string `gorm:"type:varchar(3);not null;default:'USD'" json:"fiat_currency"`
	FiatCents    int64  `gorm:"not null" json:"fiat_cents"`
	FeeCents     int64  `gorm:"not null" json:"fee_cents"`

	// Blockchain references, display-only
	TxHash        string `gorm:"type:varchar(255);index" json:"tx_hash"`
	Confirmations int    `gorm:"not null;default:0" json:"confirmations"`

	Status CryptoTransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Order DepositOrder `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"order,omitempty"`
	User  User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// BeforeCreate ensures UUID and CorrelationID are set
func (t *CryptoTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	return nil
}

// IsCompleted returns true if the transaction settled
func (t *CryptoTransaction) IsCompleted() bool {
	return t.Status == CryptoTransactionStatusCompleted
}

// CryptoTransactionFilter represents filter criteria for transaction queries
type CryptoTransactionFilter struct {
	ID             *uint                    `json:"id,omitempty"`
	UUID           *uuid.UUID               `json:"uuid,omitempty"`
	CorrelationID  *uuid.UUID               `json:"correlation_id,omitempty"`
	OrderID        *uint                    `json:"order_id,omitempty"`
	UserID         *uint                    `json:"user_id,omitempty"`
	TxHash         *string                  `json:"tx_hash,omitempty"`
	CryptoCurrency *string                  `json:"crypto_currency,omitempty"`
	Status         *CryptoTransactionStatus `json:"status,omitempty"`
	CreatedAfter   *time.Time               `json:"created_after,omitempty"`
	CreatedBefore  *time.Time               `json:"created_before,omitempty"`
}
