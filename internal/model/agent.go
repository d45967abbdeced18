package model

import (
	"time"
)

const (
	AgentStatusActive   int8 = 1 // 正常
	AgentStatusDisabled int8 = 2 // 禁用
)

// AgentUser 代理关系表
// 记录用户的上级指针和代理层级，佣金分配引擎沿 parent_user_id 向上遍历
type AgentUser struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64      `gorm:"uniqueIndex;not null" json:"user_id"`           // 用户ID
	ParentUserID int64      `gorm:"index;not null;default:0" json:"parent_user_id"` // 上级用户ID，0 表示无上级
	AgentLevel   AgentLevel `gorm:"not null;default:0" json:"agent_level"`          // 代理层级，0 表示非代理
	Status       int8       `gorm:"type:tinyint;not null;default:1" json:"status"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AgentUser) TableName() string {
	return "agent_user"
}
