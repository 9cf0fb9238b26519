package repository

import (
	"context"
	"fmt"

	"github.com/meridianpay/meridian/models"
	"gorm.io/gorm"
)

type ledgerEntryRepositoryImpl struct {
	*BaseRepository[models.LedgerEntry, models.LedgerEntryFilter]
}

func NewLedgerEntryRepository(db *gorm.DB) LedgerEntryRepository {
	return &ledgerEntryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.LedgerEntry, models.LedgerEntryFilter](db, applyLedgerEntryFilter),
	}
}

func applyLedgerEntryFilter(query *gorm.DB, filter models.LedgerEntryFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.WalletID != nil {
		query = query.Where("wallet_id = ?", *filter.WalletID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ReferenceType != nil {
		query = query.Where("reference_type = ?", *filter.ReferenceType)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}

func (r *ledgerEntryRepositoryImpl) ByWalletID(ctx context.Context, walletID uint, limit, offset int) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	query := r.getDB(ctx).Where("wallet_id = ?", walletID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get ledger entries by wallet ID: %w", err)
	}
	return entries, nil
}

func (r *ledgerEntryRepositoryImpl) ByReference(ctx context.Context, refType models.LedgerReferenceType, refID uint) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := r.getDB(ctx).
		Where("reference_type = ? AND reference_id = ?", refType, refID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries by reference: %w", err)
	}
	return entries, nil
}
