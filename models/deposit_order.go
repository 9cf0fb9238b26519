package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DepositOrderStatus represents the status of a deposit order
type DepositOrderStatus string

const (
	DepositOrderStatusPending   DepositOrderStatus = "pending"   // Order created, awaiting gateway payment
	DepositOrderStatusPaid      DepositOrderStatus = "paid"      // Payment received and credited
	DepositOrderStatusExpired   DepositOrderStatus = "expired"   // TTL elapsed with no payment detected
	DepositOrderStatusCancelled DepositOrderStatus = "cancelled" // Gateway reported explicit cancellation
)

// DepositOrder represents a fiat deposit order placed against the xMoney
// gateway. Status only moves forward along pending -> paid/expired/cancelled;
// the three terminal states are absorbing. The fee breakdown is fixed at
// creation and never recomputed from webhook data.
type DepositOrder struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"` // Links related records

	UserID   uint `gorm:"not null;index" json:"user_id"`
	WalletID uint `gorm:"not null;index" json:"wallet_id"`

	// Reference is the client-visible correlation key webhooks resolve by
	Reference string `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference"`

	// Gross amount requested by the user, in cents
	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`

	// Fee breakdown computed once at creation (cents); FeeCents + NetCents == AmountCents
	FeeCents   int64   `gorm:"not null" json:"fee_cents"`
	NetCents   int64   `gorm:"not null" json:"net_cents"`
	FeePercent float64 `gorm:"not null" json:"fee_percent"`

	// Gateway response data, set once the remote order is created
	GatewayOrderID string `gorm:"type:varchar(255);index" json:"gateway_order_id"`
	RedirectURL    string `gorm:"type:text" json:"redirect_url"`

	// Payment snapshot captured from webhook notifications (display-only)
	CryptoCurrency string `gorm:"type:varchar(10)" json:"crypto_currency"`
	CryptoAmount   string `gorm:"type:varchar(64)" json:"crypto_amount"`
	TxHash         string `gorm:"type:varchar(255)" json:"tx_hash"`

	// Status tracking
	Status       DepositOrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StatusReason string             `gorm:"type:text" json:"status_reason"`

	// Lifecycle timestamps
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User         User                `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Wallet       Wallet              `gorm:"foreignKey:WalletID;constraint:OnDelete:CASCADE" json:"wallet,omitempty"`
	Transactions []CryptoTransaction `gorm:"foreignKey:OrderID" json:"transactions,omitempty"`
}

// BeforeCreate ensures UUID and CorrelationID are set
func (o *DepositOrder) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == uuid.Nil {
		o.UUID = uuid.New()
	}
	if o.CorrelationID == uuid.Nil {
		o.CorrelationID = uuid.New()
	}
	return nil
}

// IsFinal returns true if the order is in a terminal state
func (o *DepositOrder) IsFinal() bool {
	return o.Status == DepositOrderStatusPaid ||
		o.Status == DepositOrderStatusExpired ||
		o.Status == DepositOrderStatusCancelled
}

// IsPending returns true if the order still awaits payment
func (o *DepositOrder) IsPending() bool {
	return o.Status == DepositOrderStatusPending
}

// IsExpired returns true if the order's payment window has elapsed
func (o *DepositOrder) IsExpired() bool {
	if o.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*o.ExpiresAt)
}

// CanTransitionTo reports whether the state machine allows moving from the
// order's current status to the target status.
func (o *DepositOrder) CanTransitionTo(target DepositOrderStatus) bool {
	if o.Status != DepositOrderStatusPending {
		return false
	}
	switch target {
	case DepositOrderStatusPaid, DepositOrderStatusExpired, DepositOrderStatusCancelled:
		return true
	default:
		return false
	}
}

// DepositOrderFilter represents filter criteria for deposit order queries
type DepositOrderFilter struct {
	ID             *uint               `json:"id,omitempty"`
	UUID           *uuid.UUID          `json:"uuid,omitempty"`
	CorrelationID  *uuid.UUID          `json:"correlation_id,omitempty"`
	UserID         *uint               `json:"user_id,omitempty"`
	WalletID       *uint               `json:"wallet_id,omitempty"`
	Reference      *string             `json:"reference,omitempty"`
	GatewayOrderID *string             `json:"gateway_order_id,omitempty"`
	Status         *DepositOrderStatus `json:"status,omitempty"`
	Currency       *string             `json:"currency,omitempty"`
	CreatedAfter   *time.Time          `json:"created_after,omitempty"`
	CreatedBefore  *time.Time          `json:"created_before,omitempty"`
	ExpiresAfter   *time.Time          `json:"expires_after,omitempty"`
	ExpiresBefore  *time.Time          `json:"expires_before,omitempty"`
}
