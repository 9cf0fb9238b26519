package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/utils"
	"gorm.io/gorm"
)

type depositOrderRepositoryImpl struct {
	*BaseRepository[models.DepositOrder, models.DepositOrderFilter]
}

func NewDepositOrderRepository(db *gorm.DB) DepositOrderRepository {
	return &depositOrderRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DepositOrder, models.DepositOrderFilter](db, applyDepositOrderFilter),
	}
}

func applyDepositOrderFilter(query *gorm.DB, filter models.DepositOrderFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.WalletID != nil {
		query = query.Where("wallet_id = ?", *filter.WalletID)
	}
	if filter.Reference != nil {
		query = query.Where("reference = ?", *filter.Reference)
	}
	if filter.GatewayOrderID != nil {
		query = query.Where("gateway_order_id = ?", *filter.GatewayOrderID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Currency != nil {
		query = query.Where("currency = ?", *filter.Currency)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}

func (r *depositOrderRepositoryImpl) ByReference(ctx context.Context, reference string) (*models.DepositOrder, error) {
	var order models.DepositOrder
	err := r.getDB(ctx).Where("reference = ?", reference).First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by reference: %w", err)
	}
	return &order, nil
}

func (r *depositOrderRepositoryImpl) ByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.DepositOrder, error) {
	var order models.DepositOrder
	err := r.getDB(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by gateway order ID: %w", err)
	}
	return &order, nil
}

func (r *depositOrderRepositoryImpl) Update(ctx context.Context, order *models.DepositOrder) error {
	if err := r.getDBForWrite(ctx).Save(order).Error; err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

func (r *depositOrderRepositoryImpl) Transition(ctx context.Context, id uint, from, to models.DepositOrderStatus, patch map[string]any) (*TransitionResult, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range patch {
		values[k] = v
	}

	res := r.getDBForWrite(ctx).
		Model(&models.DepositOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to transition order %d: %w", id, res.Error)
	}

	order, err := r.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Applied: res.RowsAffected == 1, Order: order}, nil
}

func (r *depositOrderRepositoryImpl) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.DepositOrder, error) {
	var orders []*models.DepositOrder
	query := r.getDB(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.DepositOrderStatusPending, cutoff).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get stale pending orders: %w", err)
	}
	return orders, nil
}

func (r *depositOrderRepositoryImpl) PaidUncredited(ctx context.Context, limit int) ([]*models.DepositOrder, error) {
	var orders []*models.DepositOrder
	query := r.getDB(ctx).
		Where("status = ?", models.DepositOrderStatusPaid).
		Where("NOT EXISTS (SELECT 1 FROM crypto_transactions ct WHERE ct.order_id = deposit_orders.id AND ct.status = ?)",
			models.CryptoTransactionStatusCompleted).
		Order("paid_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get paid uncredited orders: %w", err)
	}
	return orders, nil
}
