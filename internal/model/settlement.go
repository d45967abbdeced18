package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 结算单状态：PENDING -> APPROVED / REJECTED，两个终态不可再变更
const (
	SettlementStatusPending  = "PENDING"  // 待审批
	SettlementStatusApproved = "APPROVED" // 已核准
	SettlementStatusRejected = "REJECTED" // 已驳回
)

// CommissionSettlement 佣金结算单表
// 代理发起提现申请时创建，运营审批一次后进入终态，不会重新打开
type CommissionSettlement struct {
	SettlementID   int64           `gorm:"column:settlement_id;primaryKey;autoIncrement" json:"settlement_id"`
	SettlementNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"settlement_no"`     // 结算单号
	AgentUserID    int64           `gorm:"index;not null" json:"agent_user_id"`                            // 代理用户ID
	RequestAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"request_amount"`              // 申请金额
	ApprovedAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"approved_amount"`   // 核准金额
	Status         string          `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`  // 结算状态
	Network        string          `gorm:"type:varchar(32)" json:"network"`                                // 打款网络
	Address        string          `gorm:"type:varchar(128)" json:"address"`                               // 打款地址
	Remark         string          `gorm:"type:varchar(256)" json:"remark"`                                // 备注
	ApprovalUserID int64           `gorm:"not null;default:0" json:"approval_user_id"`                     // 审批人ID
	ApprovalTime   *time.Time      `json:"approval_time,omitempty"`                                        // 审批时间
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CommissionSettlement) TableName() string {
	return "commission_settlement"
}

// CommissionSettlementRecord 结算流水表，只追加不修改
// DEBIT：申请时预留、审批时结算出账；CREDIT：驳回或未核准部分退回可提
type CommissionSettlementRecord struct {
	RecordID     int64           `gorm:"column:record_id;primaryKey;autoIncrement" json:"record_id"`
	RecordNo     string          `gorm:"type:varchar(64);index;not null" json:"record_no"`
	SettlementID int64           `gorm:"index;not null" json:"settlement_id"` // 关联结算单
	AgentUserID  int64           `gorm:"index;not null" json:"agent_user_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Direction    string          `gorm:"type:varchar(10);not null" json:"direction"` // CREDIT / DEBIT
	Description  string          `gorm:"type:varchar(256)" json:"description"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CommissionSettlementRecord) TableName() string {
	return "commission_settlement_record"
}
