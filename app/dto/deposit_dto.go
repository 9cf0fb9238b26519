package dto

import (
	"time"

	"github.com/meridianpay/meridian/models"
)

// CreateDepositRequest represents a request to open a deposit order
type CreateDepositRequest struct {
	UserID      uint   `json:"-"` // injected from auth
	AmountCents int64  `json:"amount_cents" validate:"required,min=1"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	ReturnURL   string `json:"return_url" validate:"omitempty,url"`
}

// DepositOrderResponse is the client view of a deposit order
type DepositOrderResponse struct {
	Reference      string  `json:"reference"`
	Status         string  `json:"status"`
	StatusReason   string  `json:"status_reason,omitempty"`
	AmountCents    int64   `json:"amount_cents"`
	FeeCents       int64   `json:"fee_cents"`
	NetCents       int64   `json:"net_cents"`
	FeePercent     float64 `json:"fee_percent"`
	Currency       string  `json:"currency"`
	RedirectURL    string  `json:"redirect_url,omitempty"`
	CryptoCurrency string  `json:"crypto_currency,omitempty"`
	CryptoAmount   string  `json:"crypto_amount,omitempty"`
	TxHash         string  `json:"tx_hash,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ExpiresAt      *string `json:"expires_at,omitempty"`
	PaidAt         *string `json:"paid_at,omitempty"`

	Transactions []CryptoTransactionResponse `json:"transactions,omitempty"`
}

// CryptoTransactionResponse is the client view of a crypto transaction
type CryptoTransactionResponse struct {
	UUID           string `json:"uuid"`
	CryptoCurrency string `json:"crypto_currency"`
	CryptoAmount   string `json:"crypto_amount"`
	ExchangeRate   string `json:"exchange_rate,omitempty"`
	FiatCurrency   string `json:"fiat_currency"`
	FiatCents      int64  `json:"fiat_cents"`
	FeeCents       int64  `json:"fee_cents"`
	TxHash         string `json:"tx_hash,omitempty"`
	Confirmations  int    `json:"confirmations"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

// DepositHistoryRequest filters the paginated deposit listing
type DepositHistoryRequest struct {
	UserID   uint   `json:"-"`
	Status   string `json:"status" validate:"omitempty,oneof=pending paid expired cancelled"`
	From     string `json:"from" validate:"omitempty"`
	To       string `json:"to" validate:"omitempty"`
	Page     int    `json:"page" validate:"omitempty,min=1"`
	PageSize int    `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// DepositHistoryResponse is the paginated deposit listing
type DepositHistoryResponse struct {
	Items    []DepositOrderResponse `json:"items"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// NewDepositOrderResponse maps a deposit order model to its client view
func NewDepositOrderResponse(order *models.DepositOrder) DepositOrderResponse {
	resp := DepositOrderResponse{
		Reference:      order.Reference,
		Status:         string(order.Status),
		StatusReason:   order.StatusReason,
		AmountCents:    order.AmountCents,
		FeeCents:       order.FeeCents,
		NetCents:       order.NetCents,
		FeePercent:     order.FeePercent,
		Currency:       order.Currency,
		RedirectURL:    order.RedirectURL,
		CryptoCurrency: order.CryptoCurrency,
		CryptoAmount:   order.CryptoAmount,
		TxHash:         order.TxHash,
		CreatedAt:      order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if order.ExpiresAt != nil {
		s := order.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	if order.PaidAt != nil {
		s := order.PaidAt.UTC().Format(time.RFC3339)
		resp.PaidAt = &s
	}
	for _, tx := range order.Transactions {
		resp.Transactions = append(resp.Transactions, CryptoTransactionResponse{
			UUID:           tx.UUID.String(),
			CryptoCurrency: tx.CryptoCurrency,
			CryptoAmount:   tx.CryptoAmount,
			ExchangeRate:   tx.ExchangeRate,
			FiatCurrency:   tx.FiatCurrency,
			FiatCents:      tx.FiatCents,
			FeeCents:       tx.FeeCents,
			TxHash:         tx.TxHash,
			Confirmations:  tx.Confirmations,
			Status:         string(tx.Status),
			CreatedAt:      tx.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}
