package repository

import (
	"context"
	"fmt"

	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepositoryImpl struct {
	*BaseRepository[models.Wallet, models.WalletFilter]
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Wallet, models.WalletFilter](db, applyWalletFilter),
	}
}

func applyWalletFilter(query *gorm.DB, filter models.WalletFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Currency != nil {
		query = query.Where("currency = ?", *filter.Currency)
	}
	return query
}

func (r *walletRepositoryImpl) ByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.getDB(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet by user ID: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepositoryImpl) LockByID(ctx context.Context, id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.getDBForWrite(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepositoryImpl) UpdateBalance(ctx context.Context, id uint, balanceCents int64) error {
	err := r.getDBForWrite(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance_cents": balanceCents,
			"updated_at":    utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	return nil
}
