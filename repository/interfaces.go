// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/meridianpay/meridian/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// UserRepository defines operations for users
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByUUID(ctx context.Context, uuid string) (*models.User, error)
}

// WalletRepository defines operations for wallets
type WalletRepository interface {
	Repository[models.Wallet, models.WalletFilter]
	ByUserID(ctx context.Context, userID uint) (*models.Wallet, error)
	// LockByID loads the wallet row under FOR UPDATE; must be called
	// inside WithTransaction so the lock is held until commit.
	LockByID(ctx context.Context, id uint) (*models.Wallet, error)
	UpdateBalance(ctx context.Context, id uint, balanceCents int64) error
}

// TransitionResult reports the outcome of a conditional status update
type TransitionResult struct {
	Applied bool
	Order   *models.DepositOrder
}

// DepositOrderRepository defines operations for deposit orders
type DepositOrderRepository interface {
	Repository[models.DepositOrder, models.DepositOrderFilter]
	ByReference(ctx context.Context, reference string) (*models.DepositOrder, error)
	ByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.DepositOrder, error)
	Update(ctx context.Context, order *models.DepositOrder) error
	// Transition performs the conditional status update "set status = to
	// where id and status = from" and reports whether any row was
	// affected. Applied=false means another handler already moved the
	// order; callers treat that as a no-op, never an error.
	Transition(ctx context.Context, id uint, from, to models.DepositOrderStatus, patch map[string]any) (*TransitionResult, error)
	// StalePending returns pending orders whose payment window elapsed
	// at or before the cutoff.
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.DepositOrder, error)
	// PaidUncredited returns paid orders with no completed transaction,
	// i.e. the reconciliation gap between the paid transition and the
	// ledger credit.
	PaidUncredited(ctx context.Context, limit int) ([]*models.DepositOrder, error)
}

// CryptoTransactionRepository defines operations for crypto transactions
type CryptoTransactionRepository interface {
	Repository[models.CryptoTransaction, models.CryptoTransactionFilter]
	ByOrderID(ctx context.Context, orderID uint) ([]*models.CryptoTransaction, error)
	ByTxHash(ctx context.Context, txHash string) (*models.CryptoTransaction, error)
	CompletedForOrder(ctx context.Context, orderID uint) (*models.CryptoTransaction, error)
}

// LedgerEntryRepository defines operations for ledger entries
type LedgerEntryRepository interface {
	Repository[models.LedgerEntry, models.LedgerEntryFilter]
	ByWalletID(ctx context.Context, walletID uint, limit, offset int) ([]*models.LedgerEntry, error)
	ByReference(ctx context.Context, refType models.LedgerReferenceType, refID uint) ([]*models.LedgerEntry, error)
}
