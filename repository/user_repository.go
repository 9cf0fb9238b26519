package repository

import (
	"context"
	"fmt"

	"github.com/meridianpay/meridian/models"
	"gorm.io/gorm"
)

type userRepositoryImpl struct {
	*BaseRepository[models.User, models.UserFilter]
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User, models.UserFilter](db, applyUserFilter),
	}
}

func applyUserFilter(query *gorm.DB, filter models.UserFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.FeeTier != nil {
		query = query.Where("fee_tier = ?", *filter.FeeTier)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

func (r *userRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.getDB(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.User, error) {
	var user models.User
	err := r.getDB(ctx).Where("uuid = ?", uuid).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by uuid: %w", err)
	}
	return &user, nil
}
