package repository

import (
	"context"
	"errors"
	"time"

	"drledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrSettlementNotFound       = errors.New("结算单不存在")
	ErrSettlementStatusConflict = errors.New("结算单状态已变更")
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, tx *gorm.DB, settlement *model.CommissionSettlement) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(settlement).Error
}

func (r *SettlementRepository) GetByID(ctx context.Context, settlementID int64) (*model.CommissionSettlement, error) {
	var settlement model.CommissionSettlement
	err := r.db.WithContext(ctx).Where("settlement_id = ?", settlementID).First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &settlement, nil
}

// TransitionFromPending 状态条件更新：只有 PENDING 的结算单才能进入终态
// 影响行数为 0 说明状态已被并发变更（或本来就不是 PENDING）
func (r *SettlementRepository) TransitionFromPending(ctx context.Context, tx *gorm.DB, settlementID int64, toStatus string, approvedAmount decimal.Decimal, approvalUserID int64, approvalTime time.Time, remark string) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status":           toStatus,
		"approved_amount":  approvedAmount,
		"approval_user_id": approvalUserID,
		"approval_time":    approvalTime,
	}
	if remark != "" {
		updates["remark"] = remark
	}

	result := tx.WithContext(ctx).
		Model(&model.CommissionSettlement{}).
		Where("settlement_id = ? AND status = ?", settlementID, model.SettlementStatusPending).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettlementStatusConflict
	}
	return nil
}

func (r *SettlementRepository) CreateRecord(ctx context.Context, tx *gorm.DB, record *model.CommissionSettlementRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *SettlementRepository) ListByAgentUserID(ctx context.Context, agentUserID int64, page, pageSize int) ([]*model.CommissionSettlement, int64, error) {
	var settlements []*model.CommissionSettlement
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CommissionSettlement{}).Where("agent_user_id = ?", agentUserID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&settlements).Error

	return settlements, total, err
}

// SumSettledAmount 已结算佣金总额（核准金额合计）
func (r *SettlementRepository) SumSettledAmount(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&model.CommissionSettlement{}).
		Where("status = ?", model.SettlementStatusApproved).
		Select("SUM(approved_amount)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
