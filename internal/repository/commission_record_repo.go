package repository

import (
	"context"

	"drledger/internal/model"

	"gorm.io/gorm"
)

type CommissionRecordRepository struct {
	db *gorm.DB
}

func NewCommissionRecordRepository(db *gorm.DB) *CommissionRecordRepository {
	return &CommissionRecordRepository{db: db}
}

func (r *CommissionRecordRepository) Create(ctx context.Context, tx *gorm.DB, record *model.CommissionRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// CommissionRecordFilter 佣金流水查询条件
type CommissionRecordFilter struct {
	BusinessType string
	Direction    string
	Page         int
	PageSize     int
}

func (r *CommissionRecordRepository) ListByAgentUserID(ctx context.Context, agentUserID int64, filter *CommissionRecordFilter) ([]*model.CommissionRecord, int64, error) {
	var records []*model.CommissionRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CommissionRecord{}).Where("agent_user_id = ?", agentUserID)
	if filter.BusinessType != "" {
		query = query.Where("business_type = ?", filter.BusinessType)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
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

func (r *CommissionRecordRepository) ListByTriggerBillID(ctx context.Context, triggerBillID int64) ([]*model.CommissionRecord, error) {
	var records []*model.CommissionRecord
	err := r.db.WithContext(ctx).
		Where("trigger_bill_id = ?", triggerBillID).
		Order("hierarchy_level ASC").
		Find(&records).Error
	return records, err
}
