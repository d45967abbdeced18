package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PriceConfigStatusEnabled  int8 = 1 // 启用
	PriceConfigStatusDisabled int8 = 2 // 停用
)

// PriceConfig 计费价格配置表
// 本系统只消费该配置（按业务类型取单价和计费方式），配置的录入由管理后台负责
type PriceConfig struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BusinessType string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"business_type"` // 业务类型
	Price        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`                   // 单价（DR）
	BillingType  string          `gorm:"type:varchar(20);not null;default:INSTANT" json:"billing_type"`
	Status       int8            `gorm:"type:tinyint;not null;default:1" json:"status"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PriceConfig) TableName() string {
	return "price_config"
}
