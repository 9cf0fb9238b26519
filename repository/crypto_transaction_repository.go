package repository

import (
	"context"
	"fmt"

	"github.com/meridianpay/meridian/models"
	"gorm.io/gorm"
)

type cryptoTransactionRepositoryImpl struct {
	*BaseRepository[models.CryptoTransaction, models.CryptoTransactionFilter]
}

func NewCryptoTransactionRepository(db *gorm.DB) CryptoTransactionRepository {
	return &cryptoTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CryptoTransaction, models.CryptoTransactionFilter](db, applyCryptoTransactionFilter),
	}
}

func applyCryptoTransactionFilter(query *gorm.DB, filter models.CryptoTransactionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.TxHash != nil {
		query = query.Where("tx_hash = ?", *filter.TxHash)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CryptoCurrency != nil {
		query = query.Where("crypto_currency = ?", *filter.CryptoCurrency)
	}
	return query
}

func (r *cryptoTransactionRepositoryImpl) ByOrderID(ctx context.Context, orderID uint) ([]*models.CryptoTransaction, error) {
	var txs []*models.CryptoTransaction
	err := r.getDB(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions by order ID: %w", err)
	}
	return txs, nil
}

func (r *cryptoTransactionRepositoryImpl) ByTxHash(ctx context.Context, txHash string) (*models.CryptoTransaction, error) {
	if txHash == "" {
		return nil, nil
	}
	var tx models.CryptoTransaction
	err := r.getDB(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction by tx hash: %w", err)
	}
	return &tx, nil
}

func (r *cryptoTransactionRepositoryImpl) CompletedForOrder(ctx context.Context, orderID uint) (*models.CryptoTransaction, error) {
	var tx models.CryptoTransaction
	err := r.getDB(ctx).
		Where("order_id = ? AND status = ?", orderID, models.CryptoTransactionStatusCompleted).
		First(&tx).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get completed transaction for order: %w", err)
	}
	return &tx, nil
}
