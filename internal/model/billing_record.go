package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 账单类型常量
// ============================================================================

const (
	BillTypeRecharge   = "RECHARGE"    // 充值
	BillTypeConsume    = "CONSUME"     // 消费
	BillTypeRefund     = "REFUND"      // 退款
	BillTypeAdjust     = "ADJUST"      // 人工调整
	BillTypePreDeduct  = "PRE_DEDUCT"  // 预扣（基础余额 -> 预扣池）
	BillTypeRelease    = "PRE_RELEASE" // 预扣释放（预扣池 -> 基础余额）
	BillTypeFreeze     = "FREEZE"      // 冻结
	BillTypeUnfreeze   = "UNFREEZE"    // 解冻
)

// 计费方式
const (
	BillingTypeInstant = "INSTANT" // 即时计费
	BillingTypeDaily   = "DAILY"   // 按天计费
)

const BillStatusValid int8 = 1

// BillingRecord 余额账单流水表
// 记录每一笔余额变动，是审计和统计的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录变动前后的基础余额 —— 便于校验余额一致性
// 3. bill_no 由时间戳+雪花尾号生成，不加唯一约束（尽力而为，主键是 bill_id）
type BillingRecord struct {
	BillID        int64           `gorm:"column:bill_id;primaryKey;autoIncrement" json:"bill_id"`
	BillNo        string          `gorm:"type:varchar(64);index;not null" json:"bill_no"`            // 账单号
	UserID        int64           `gorm:"index;not null" json:"user_id"`                             // 用户ID
	OperatorID    int64           `gorm:"not null;default:0" json:"operator_id"`                     // 操作人ID
	BillType      string          `gorm:"type:varchar(20);index;not null" json:"bill_type"`          // 账单类型
	BillingType   string          `gorm:"type:varchar(20);not null;default:INSTANT" json:"billing_type"` // 计费方式
	BusinessType  string          `gorm:"type:varchar(32);index" json:"business_type"`               // 业务类型
	BusinessID    string          `gorm:"type:varchar(64)" json:"business_id"`                       // 业务ID
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`                 // 金额（正数入账，负数出账）
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_before"`         // 变动前基础余额
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`          // 变动后基础余额
	Description   string          `gorm:"type:varchar(256)" json:"description"`                      // 描述
	Status        int8            `gorm:"type:tinyint;not null;default:1" json:"status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BillingRecord) TableName() string {
	return "billing_record"
}
