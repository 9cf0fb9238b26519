package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// BaseRepository provides the shared GORM plumbing for entity repositories.
// Filters are applied through the applyFilter hook supplied by each
// concrete repository.
type BaseRepository[T any, F any] struct {
	db          *gorm.DB
	applyFilter func(query *gorm.DB, filter F) *gorm.DB
}

func NewBaseRepository[T any, F any](db *gorm.DB, applyFilter func(query *gorm.DB, filter F) *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{db: db, applyFilter: applyFilter}
}

// getDB returns the transaction from context when one is active,
// otherwise the base connection.
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// getDBForWrite behaves like getDB; writes outside an explicit
// transaction run on the base connection with its own implicit one.
func (r *BaseRepository[T, F]) getDBForWrite(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	var entity T
	err := r.getDB(ctx).First(&entity, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entity by ID: %w", err)
	}
	return &entity, nil
}

func (r *BaseRepository[T, F]) ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error) {
	var entities []*T
	query := r.applyFilter(r.getDB(ctx), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to get entities by filter: %w", err)
	}
	return entities, nil
}

func (r *BaseRepository[T, F]) Save(ctx context.Context, entity *T) error {
	if err := r.getDBForWrite(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

func (r *BaseRepository[T, F]) Count(ctx context.Context, filter F) (int64, error) {
	var count int64
	var entity T
	query := r.applyFilter(r.getDB(ctx).Model(&entity), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func (r *BaseRepository[T, F]) Exists(ctx context.Context, filter F) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// WithTransaction runs fn inside a database transaction. The transaction
// handle is placed into the context under TxContextKey so repository
// calls made by fn join it.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	txCtx := context.WithValue(ctx, TxContextKey, tx)

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
