package repository

import (
	"context"
	"errors"

	"drledger/internal/model"

	"gorm.io/gorm"
)

// AgentRepository 代理关系数据访问
// 同时是佣金分配引擎依赖的层级/上级解析器的默认实现
type AgentRepository struct {
	db *gorm.DB
}

func NewAgentRepository(db *gorm.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

func (r *AgentRepository) GetByUserID(ctx context.Context, userID int64) (*model.AgentUser, error) {
	var agent model.AgentUser
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agent, nil
}

// ResolveAgentLevel 解析用户的代理层级，非代理或禁用返回 AgentLevelNone
func (r *AgentRepository) ResolveAgentLevel(ctx context.Context, userID int64) (model.AgentLevel, error) {
	agent, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return model.AgentLevelNone, err
	}
	if agent == nil || agent.Status != model.AgentStatusActive {
		return model.AgentLevelNone, nil
	}
	return agent.AgentLevel, nil
}

// ParentOf 返回用户的上级用户ID，0 表示无上级
func (r *AgentRepository) ParentOf(ctx context.Context, userID int64) (int64, error) {
	agent, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if agent == nil {
		return 0, nil
	}
	return agent.ParentUserID, nil
}

// ListChildren 返回直接下级用户ID列表，用于代理团队概览
func (r *AgentRepository) ListChildren(ctx context.Context, userID int64) ([]int64, error) {
	var children []int64
	err := r.db.WithContext(ctx).
		Model(&model.AgentUser{}).
		Where("parent_user_id = ?", userID).
		Pluck("user_id", &children).Error
	return children, err
}
