package service

import (
	"context"

	"drledger/internal/model"
	"drledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QueryService 佣金侧只读查询，供报表类调用方使用，不产生任何状态变更
type QueryService struct {
	accountRepo    *repository.CommissionAccountRepository
	recordRepo     *repository.CommissionRecordRepository
	settlementRepo *repository.SettlementRepository
	agentRepo      *repository.AgentRepository
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{
		accountRepo:    repository.NewCommissionAccountRepository(db),
		recordRepo:     repository.NewCommissionRecordRepository(db),
		settlementRepo: repository.NewSettlementRepository(db),
		agentRepo:      repository.NewAgentRepository(db),
	}
}

// GetCommissionAccount 查询佣金账户（懒创建，保证查询方总能拿到一行）
func (s *QueryService) GetCommissionAccount(ctx context.Context, agentUserID int64) (*model.CommissionAccount, error) {
	if agentUserID <= 0 {
		return nil, ErrUserRequired
	}
	return s.accountRepo.GetOrCreate(ctx, nil, agentUserID)
}

// GetCommissionRecords 查询佣金流水
func (s *QueryService) GetCommissionRecords(ctx context.Context, agentUserID int64, filter *repository.CommissionRecordFilter) ([]*model.CommissionRecord, int64, error) {
	if agentUserID <= 0 {
		return nil, 0, ErrUserRequired
	}
	if filter == nil {
		filter = &repository.CommissionRecordFilter{}
	}
	return s.recordRepo.ListByAgentUserID(ctx, agentUserID, filter)
}

// ListSettlements 查询代理的结算单
func (s *QueryService) ListSettlements(ctx context.Context, agentUserID int64, page, pageSize int) ([]*model.CommissionSettlement, int64, error) {
	if agentUserID <= 0 {
		return nil, 0, ErrUserRequired
	}
	return s.settlementRepo.ListByAgentUserID(ctx, agentUserID, page, pageSize)
}

// AgentCommissionOverview 代理团队佣金概览
type AgentCommissionOverview struct {
	AgentUserID   int64                    `json:"agent_user_id"`
	Account       *model.CommissionAccount `json:"account"`
	TeamSize      int                      `json:"team_size"`       // 可见下级人数（含间接，最多三层）
	TeamTotal     decimal.Decimal          `json:"team_total"`      // 下级累计佣金合计
	TeamAvailable decimal.Decimal          `json:"team_available"`  // 下级可提佣金合计
	TeamSettled   decimal.Decimal          `json:"team_settled"`    // 下级已结算佣金合计
}

// GetAgentCommissionOverview 聚合当前代理可见子层级（最多三层）的佣金概况
func (s *QueryService) GetAgentCommissionOverview(ctx context.Context, currentUserID int64) (*AgentCommissionOverview, error) {
	if currentUserID <= 0 {
		return nil, ErrUserRequired
	}

	account, err := s.accountRepo.GetOrCreate(ctx, nil, currentUserID)
	if err != nil {
		return nil, err
	}

	overview := &AgentCommissionOverview{
		AgentUserID:   currentUserID,
		Account:       account,
		TeamTotal:     decimal.Zero,
		TeamAvailable: decimal.Zero,
		TeamSettled:   decimal.Zero,
	}

	// 逐层向下收集，层数与代理体系一致限制在三层
	visited := map[int64]bool{currentUserID: true}
	frontier := []int64{currentUserID}
	for depth := 0; depth < 3 && len(frontier) > 0; depth++ {
		var next []int64
		for _, userID := range frontier {
			children, err := s.agentRepo.ListChildren(ctx, userID)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if visited[child] {
					continue
				}
				visited[child] = true
				next = append(next, child)
			}
		}
		frontier = next

		for _, child := range next {
			childAccount, err := s.accountRepo.GetByAgentUserID(ctx, child)
			if err != nil {
				if err == repository.ErrCommissionAccountNotFound {
					overview.TeamSize++
					continue
				}
				return nil, err
			}
			overview.TeamSize++
			overview.TeamTotal = overview.TeamTotal.Add(childAccount.TotalCommission)
			overview.TeamAvailable = overview.TeamAvailable.Add(childAccount.AvailableCommission)
			overview.TeamSettled = overview.TeamSettled.Add(childAccount.SettledCommission)
		}
	}

	return overview, nil
}

// SumSettledCommission 平台已结算佣金总额
func (s *QueryService) SumSettledCommission(ctx context.Context) (decimal.Decimal, error) {
	return s.settlementRepo.SumSettledAmount(ctx)
}
