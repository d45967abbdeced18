package repository

import (
	"context"
	"errors"

	"drledger/internal/model"

	"gorm.io/gorm"
)

type PriceConfigRepository struct {
	db *gorm.DB
}

func NewPriceConfigRepository(db *gorm.DB) *PriceConfigRepository {
	return &PriceConfigRepository{db: db}
}

// GetByBusinessType 按业务类型取计费配置，不存在时返回 nil
func (r *PriceConfigRepository) GetByBusinessType(ctx context.Context, businessType string) (*model.PriceConfig, error) {
	var cfg model.PriceConfig
	err := r.db.WithContext(ctx).Where("business_type = ?", businessType).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}
