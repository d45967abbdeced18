package repository

import (
	"context"
	"errors"

	"drledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

type BalanceAccountRepository struct {
	db *gorm.DB
}

func NewBalanceAccountRepository(db *gorm.DB) *BalanceAccountRepository {
	return &BalanceAccountRepository{db: db}
}

func (r *BalanceAccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.BalanceAccount, error) {
	var account model.BalanceAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 懒创建账户
// 并发首次访问时靠 ON CONFLICT DO NOTHING 吸收重复插入，然后回读
func (r *BalanceAccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.BalanceAccount, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.BalanceAccount{
		UserID: userID,
		Status: model.AccountStatusNormal,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// UpdateWithVersion 带版本号的条件更新（CAS）
// 一次性写入调用方算好的全部余额字段，WHERE 带上读取时的版本号；
// 影响行数为 0 说明期间有并发写入，返回 ErrOptimisticLock，不在内部重试
func (r *BalanceAccountRepository) UpdateWithVersion(ctx context.Context, tx *gorm.DB, account *model.BalanceAccount) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.BalanceAccount{}).
		Where("user_id = ? AND version = ?", account.UserID, account.Version).
		Updates(map[string]interface{}{
			"base_balance":         account.BaseBalance,
			"pre_deducted_balance": account.PreDeductedBalance,
			"total_recharge":       account.TotalRecharge,
			"total_consume":        account.TotalConsume,
			"total_refund":         account.TotalRefund,
			"frozen_amount":        account.FrozenAmount,
			"version":              account.Version + 1,
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
