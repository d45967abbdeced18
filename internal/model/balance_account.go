package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 账户状态
const (
	AccountStatusNormal   int8 = 1 // 正常
	AccountStatusDisabled int8 = 2 // 冻结/禁用
)

// BalanceAccount 用户DR余额账户表
// 每个用户一行，首次访问时懒创建，只禁用不删除
//
// 【并发控制】所有余额变更都走乐观锁：
// 读取 version -> 计算新值 -> UPDATE ... WHERE user_id = ? AND version = ?
// 影响行数为 0 即视为并发冲突，由调用方决定是否重试
type BalanceAccount struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             int64           `gorm:"uniqueIndex;not null" json:"user_id"`                                 // 用户ID
	BaseBalance        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"base_balance"`           // 基础余额（消费路径下允许为负）
	PreDeductedBalance decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"pre_deducted_balance"`   // 预扣余额（实例预留池，不允许为负）
	TotalRecharge      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_recharge"`         // 累计充值
	TotalConsume       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_consume"`          // 累计消费
	TotalRefund        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_refund"`           // 累计退款
	FrozenAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"frozen_amount"`          // 冻结金额
	Status             int8            `gorm:"type:tinyint;not null;default:1" json:"status"`                       // 账户状态
	Version            int             `gorm:"not null;default:0" json:"version"`                                   // 乐观锁版本号
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BalanceAccount) TableName() string {
	return "balance_account"
}

// AvailableTotal 可用资金合计（基础余额 + 预扣余额）
func (a *BalanceAccount) AvailableTotal() decimal.Decimal {
	return a.BaseBalance.Add(a.PreDeductedBalance)
}
