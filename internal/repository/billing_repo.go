package repository

import (
	"context"

	"drledger/internal/model"

	"gorm.io/gorm"
)

type BillingRecordRepository struct {
	db *gorm.DB
}

func NewBillingRecordRepository(db *gorm.DB) *BillingRecordRepository {
	return &BillingRecordRepository{db: db}
}

func (r *BillingRecordRepository) Create(ctx context.Context, tx *gorm.DB, record *model.BillingRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *BillingRecordRepository) GetByBillNo(ctx context.Context, billNo string) (*model.BillingRecord, error) {
	var record model.BillingRecord
	err := r.db.WithContext(ctx).Where("bill_no = ?", billNo).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// BillingRecordFilter 账单查询条件
type BillingRecordFilter struct {
	BillType     string
	BusinessType string
	Page         int
	PageSize     int
}

func (r *BillingRecordRepository) ListByUserID(ctx context.Context, userID int64, filter *BillingRecordFilter) ([]*model.BillingRecord, int64, error) {
	var records []*model.BillingRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BillingRecord{}).Where("user_id = ?", userID)
	if filter.BillType != "" {
		query = query.Where("bill_type = ?", filter.BillType)
	}
	if filter.BusinessType != "" {
		query = query.Where("business_type = ?", filter.BusinessType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 10
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}
