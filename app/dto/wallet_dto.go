package dto

import (
	"time"

	"github.com/meridianpay/meridian/models"
)

// WalletResponse is the client view of a wallet
type WalletResponse struct {
	BalanceCents int64  `json:"balance_cents"`
	Currency     string `json:"currency"`
	UpdatedAt    string `json:"updated_at"`
}

// LedgerEntryResponse is the client view of a ledger entry
type LedgerEntryResponse struct {
	AmountCents        int64  `json:"amount_cents"`
	BalanceBeforeCents int64  `json:"balance_before_cents"`
	BalanceAfterCents  int64  `json:"balance_after_cents"`
	Type               string `json:"type"`
	ReferenceType      string `json:"reference_type"`
	Description        string `json:"description,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func NewWalletResponse(wallet *models.Wallet) WalletResponse {
	return WalletResponse{
		BalanceCents: wallet.BalanceCents,
		Currency:     wallet.Currency,
		UpdatedAt:    wallet.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewLedgerEntryResponse(entry *models.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		AmountCents:        entry.AmountCents,
		BalanceBeforeCents: entry.BalanceBeforeCents,
		BalanceAfterCents:  entry.BalanceAfterCents,
		Type:               string(entry.Type),
		ReferenceType:      string(entry.ReferenceType),
		Description:        entry.Description,
		CreatedAt:          entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}
