package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentLevel 代理层级（封闭枚举，边界处解析一次，内部不再做角色字符串匹配）
type AgentLevel int

const (
	AgentLevelNone   AgentLevel = 0 // 非代理
	AgentLevelFirst  AgentLevel = 1 // 一级代理
	AgentLevelSecond AgentLevel = 2 // 二级代理
	AgentLevelThird  AgentLevel = 3 // 三级代理
)

// CommissionAccount 代理佣金账户表
// 每个代理用户一行，首次产生佣金时懒创建
//
// 【不变量】total_commission == available + pending_settlement + settled
// frozen_commission 是独立的冻结位，不参与上述恒等式
type CommissionAccount struct {
	ID                          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentUserID                 int64           `gorm:"uniqueIndex;not null" json:"agent_user_id"`                                    // 代理用户ID
	TotalCommission             decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_commission"`                // 累计佣金
	AvailableCommission         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"available_commission"`            // 可提佣金
	FrozenCommission            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"frozen_commission"`               // 冻结佣金
	PendingSettlementCommission decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"pending_settlement_commission"`   // 结算中佣金
	SettledCommission           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"settled_commission"`              // 已结算佣金
	Status                      int8            `gorm:"type:tinyint;not null;default:1" json:"status"`
	Version                     int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt                   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CommissionAccount) TableName() string {
	return "commission_account"
}

// 佣金流水方向
const (
	CommissionDirectionCredit = "CREDIT" // 入账
	CommissionDirectionDebit  = "DEBIT"  // 出账
)

// 佣金业务类型
const (
	CommissionBizRecharge = "RECHARGE_COMMISSION" // 下级充值返佣
	CommissionBizAdjust   = "MANUAL_ADJUST"       // 人工调整
)

const CommissionRecordStatusValid int8 = 1

// CommissionRecord 佣金流水表，只追加不修改
type CommissionRecord struct {
	RecordID         int64           `gorm:"column:record_id;primaryKey;autoIncrement" json:"record_id"`
	RecordNo         string          `gorm:"type:varchar(64);index;not null" json:"record_no"`          // 流水号
	AgentUserID      int64           `gorm:"index;not null" json:"agent_user_id"`                       // 代理用户ID
	BuyerUserID      int64           `gorm:"index" json:"buyer_user_id"`                                // 触发佣金的买家ID
	TriggerBillID    int64           `gorm:"index" json:"trigger_bill_id"`                              // 触发账单ID（充值账单）
	TriggerAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"trigger_amount"`   // 触发金额（充值金额）
	CommissionAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"commission_amount"`      // 佣金金额
	CommissionRate   decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"commission_rate"`  // 实际分佣比例（差额比例）
	HierarchyLevel   int             `gorm:"not null;default:0" json:"hierarchy_level"`                 // 代理层级 1-3
	Direction        string          `gorm:"type:varchar(10);not null" json:"direction"`                // CREDIT / DEBIT
	BusinessType     string          `gorm:"type:varchar(32);index;not null" json:"business_type"`      // 业务类型
	Status           int8            `gorm:"type:tinyint;not null;default:1" json:"status"`
	Description      string          `gorm:"type:varchar(256)" json:"description"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CommissionRecord) TableName() string {
	return "commission_record"
}
