package businessflow

import (
	"context"

	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
)

// WalletFlow exposes read access to a user's wallet and ledger
type WalletFlow interface {
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	GetLedger(ctx context.Context, userID uint, limit, offset int) ([]*models.LedgerEntry, error)
}

type walletFlowImpl struct {
	userRepo   repository.UserRepository
	walletRepo repository.WalletRepository
	ledger     LedgerService
}

func NewWalletFlow(
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	ledger LedgerService,
) WalletFlow {
	return &walletFlowImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		ledger:     ledger,
	}
}

func (f *walletFlowImpl) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	user, err := getActiveUser(ctx, f.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return getWallet(ctx, f.walletRepo, user.ID)
}

func (f *walletFlowImpl) GetLedger(ctx context.Context, userID uint, limit, offset int) ([]*models.LedgerEntry, error) {
	wallet, err := f.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return f.ledger.Entries(ctx, wallet.ID, limit, offset)
}
