package businessflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	"gorm.io/gorm"
)

// LedgerService applies balance mutations together with their
// append-only ledger entries. Every mutation locks the wallet row so
// concurrent credits serialize per wallet.
type LedgerService interface {
	Credit(ctx context.Context, req *LedgerMutation) (*models.LedgerEntry, error)
	Debit(ctx context.Context, req *LedgerMutation) (*models.LedgerEntry, error)
	Entries(ctx context.Context, walletID uint, limit, offset int) ([]*models.LedgerEntry, error)
}

// LedgerMutation describes a single balance change request
type LedgerMutation struct {
	WalletID      uint
	UserID        uint
	AmountCents   int64
	Type          models.LedgerEntryType
	ReferenceType models.LedgerReferenceType
	ReferenceID   uint
	Description   string
	CorrelationID uuid.UUID
}

type ledgerServiceImpl struct {
	walletRepo repository.WalletRepository
	ledgerRepo repository.LedgerEntryRepository
	db         *gorm.DB
}

func NewLedgerService(
	walletRepo repository.WalletRepository,
	ledgerRepo repository.LedgerEntryRepository,
	db *gorm.DB,
) LedgerService {
	return &ledgerServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		db:         db,
	}
}

func (s *ledgerServiceImpl) Credit(ctx context.Context, req *LedgerMutation) (*models.LedgerEntry, error) {
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.apply(ctx, req, req.AmountCents)
}

func (s *ledgerServiceImpl) Debit(ctx context.Context, req *LedgerMutation) (*models.LedgerEntry, error) {
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.apply(ctx, req, -req.AmountCents)
}

// apply mutates the wallet balance and records the ledger entry in one
// transaction. When the caller already runs inside WithTransaction the
// nested call joins it through the context.
func (s *ledgerServiceImpl) apply(ctx context.Context, req *LedgerMutation, delta int64) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry

	run := func(txCtx context.Context) error {
		wallet, err := s.walletRepo.LockByID(txCtx, req.WalletID)
		if err != nil {
			return NewBusinessError("WALLET_LOCK_FAILED", "Failed to lock wallet", err)
		}
		if wallet == nil {
			return ErrWalletNotFound
		}

		before := wallet.BalanceCents
		after := before + delta
		if after < 0 {
			return ErrInsufficientFunds
		}

		if err := s.walletRepo.UpdateBalance(txCtx, wallet.ID, after); err != nil {
			return NewBusinessError("BALANCE_UPDATE_FAILED", "Failed to update wallet balance", err)
		}

		entry = &models.LedgerEntry{
			CorrelationID:      req.CorrelationID,
			UserID:             req.UserID,
			WalletID:           wallet.ID,
			AmountCents:        delta,
			BalanceBeforeCents: before,
			BalanceAfterCents:  after,
			Type:               req.Type,
			ReferenceType:      req.ReferenceType,
			ReferenceID:        req.ReferenceID,
			Description:        req.Description,
		}
		if err := s.ledgerRepo.Save(txCtx, entry); err != nil {
			return NewBusinessError("LEDGER_WRITE_FAILED", "Failed to record ledger entry", err)
		}
		return nil
	}

	// Join an ambient transaction when one is active.
	if _, ok := ctx.Value(repository.TxContextKey).(*gorm.DB); ok {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return entry, nil
	}

	if err := repository.WithTransaction(ctx, s.db, run); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *ledgerServiceImpl) Entries(ctx context.Context, walletID uint, limit, offset int) ([]*models.LedgerEntry, error) {
	entries, err := s.ledgerRepo.ByWalletID(ctx, walletID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("LEDGER_READ_FAILED", "Failed to list ledger entries", err)
	}
	return entries, nil
}
