package repository

import (
	"context"
	"errors"

	"drledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCommissionAccountNotFound = errors.New("佣金账户不存在")

type CommissionAccountRepository struct {
	db *gorm.DB
}

func NewCommissionAccountRepository(db *gorm.DB) *CommissionAccountRepository {
	return &CommissionAccountRepository{db: db}
}

func (r *CommissionAccountRepository) GetByAgentUserID(ctx context.Context, agentUserID int64) (*model.CommissionAccount, error) {
	var account model.CommissionAccount
	err := r.db.WithContext(ctx).Where("agent_user_id = ?", agentUserID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommissionAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 懒创建佣金账户
// 佣金分配在充值事务内进行，因此创建动作要跟随外层事务
func (r *CommissionAccountRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, agentUserID int64) (*model.CommissionAccount, error) {
	if tx == nil {
		tx = r.db
	}

	var account model.CommissionAccount
	err := tx.WithContext(ctx).Where("agent_user_id = ?", agentUserID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	newAccount := &model.CommissionAccount{
		AgentUserID: agentUserID,
		Status:      model.AccountStatusNormal,
	}

	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error
	if err != nil {
		return nil, err
	}

	err = tx.WithContext(ctx).Where("agent_user_id = ?", agentUserID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateWithVersion 带版本号的条件更新（CAS），约定同 BalanceAccountRepository
func (r *CommissionAccountRepository) UpdateWithVersion(ctx context.Context, tx *gorm.DB, account *model.CommissionAccount) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.CommissionAccount{}).
		Where("agent_user_id = ? AND version = ?", account.AgentUserID, account.Version).
		Updates(map[string]interface{}{
			"total_commission":              account.TotalCommission,
			"available_commission":          account.AvailableCommission,
			"frozen_commission":             account.FrozenCommission,
			"pending_settlement_commission": account.PendingSettlementCommission,
			"settled_commission":            account.SettledCommission,
			"version":                       account.Version + 1,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	account.Version++
	return nil
}
