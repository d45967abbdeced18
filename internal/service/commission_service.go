package service

import (
	"context"
	"fmt"

	"drledger/internal/config"
	"drledger/internal/model"
	"drledger/internal/repository"
	"drledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AgentHierarchy 代理层级解析器
// 层级和上级指针属于用户体系，账务子系统只通过该接口消费
type AgentHierarchy interface {
	// ResolveAgentLevel 解析用户的代理层级，非代理返回 AgentLevelNone
	ResolveAgentLevel(ctx context.Context, userID int64) (model.AgentLevel, error)
	// ParentOf 返回上级用户ID，0 表示无上级
	ParentOf(ctx context.Context, userID int64) (int64, error)
}

// CommissionService 佣金分配引擎
//
// 充值发生时沿买家的上级链向上找代理（每个层级取最先遇到的一个，最多三个），
// 按层级从高到低（L3 -> L1）做差额分佣：每个代理拿自己档位比例与已发放
// 最高比例的差值，总发放永远不超过 充值金额 × 一级比例
type CommissionService struct {
	db          *gorm.DB
	logger      *zap.Logger
	cfg         *config.Config
	hierarchy   AgentHierarchy
	accountRepo *repository.CommissionAccountRepository
	recordRepo  *repository.CommissionRecordRepository
}

func NewCommissionService(db *gorm.DB, logger *zap.Logger, cfg *config.Config, hierarchy AgentHierarchy) *CommissionService {
	return &CommissionService{
		db:          db,
		logger:      logger,
		cfg:         cfg,
		hierarchy:   hierarchy,
		accountRepo: repository.NewCommissionAccountRepository(db),
		recordRepo:  repository.NewCommissionRecordRepository(db),
	}
}

// GetOrCreateAccount 获取佣金账户，首次访问时创建全零账户
func (s *CommissionService) GetOrCreateAccount(ctx context.Context, agentUserID int64) (*model.CommissionAccount, error) {
	if agentUserID <= 0 {
		return nil, ErrUserRequired
	}
	return s.accountRepo.GetOrCreate(ctx, nil, agentUserID)
}

// clampedRates 返回收敛后的三档比例
// 低档比例配置得比高档还高属于配置错误，静默向高档收敛而不是报错
func (s *CommissionService) clampedRates() (r1, r2, r3 decimal.Decimal) {
	r1 = decimal.NewFromFloat(s.cfg.Commission.Level1Rate)
	r2 = decimal.NewFromFloat(s.cfg.Commission.Level2Rate)
	r3 = decimal.NewFromFloat(s.cfg.Commission.Level3Rate)
	if r2.GreaterThan(r1) {
		r2 = r1
	}
	if r3.GreaterThan(r2) {
		r3 = r2
	}
	return r1, r2, r3
}

// resolveAgentAncestors 沿上级指针向上收集代理祖先
// 每个层级只取最先遇到的一个；带访问集和硬跳数上限，不依赖层级数据天然无环
func (s *CommissionService) resolveAgentAncestors(ctx context.Context, buyerUserID int64) (map[model.AgentLevel]int64, error) {
	found := make(map[model.AgentLevel]int64, 3)
	visited := map[int64]bool{buyerUserID: true}

	current := buyerUserID
	for hop := 0; hop < s.cfg.Commission.MaxHierarchyHops; hop++ {
		parent, err := s.hierarchy.ParentOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if parent == 0 {
			break
		}
		if visited[parent] {
			s.logger.Warn("代理层级数据成环，终止遍历",
				zap.Int64("buyer_user_id", buyerUserID),
				zap.Int64("repeated_user_id", parent),
			)
			break
		}
		visited[parent] = true

		level, err := s.hierarchy.ResolveAgentLevel(ctx, parent)
		if err != nil {
			return nil, err
		}
		if level != model.AgentLevelNone {
			if _, ok := found[level]; !ok {
				found[level] = parent
				if len(found) == 3 {
					break
				}
			}
		}

		current = parent
	}

	return found, nil
}

// DistributeRechargeCommission 按买家的代理祖先链分配充值返佣
// 在充值事务内调用：所有佣金账户变更和佣金流水与充值本身同事务提交。
// 买家没有代理祖先时为空操作，不算错误
func (s *CommissionService) DistributeRechargeCommission(ctx context.Context, tx *gorm.DB, buyerUserID int64, rechargeAmount decimal.Decimal, operatorID int64, triggerBillID int64) error {
	if !rechargeAmount.IsPositive() {
		return ErrInvalidAmount
	}

	ancestors, err := s.resolveAgentAncestors(ctx, buyerUserID)
	if err != nil {
		return err
	}
	if len(ancestors) == 0 {
		return nil
	}

	r1, r2, r3 := s.clampedRates()
	rateFor := map[model.AgentLevel]decimal.Decimal{
		model.AgentLevelFirst:  r1,
		model.AgentLevelSecond: r2,
		model.AgentLevelThird:  r3,
	}

	// 层级从高到低（三级先拿），差额分佣
	maxRateSeen := decimal.Zero
	for _, level := range []model.AgentLevel{model.AgentLevelThird, model.AgentLevelSecond, model.AgentLevelFirst} {
		agentUserID, ok := ancestors[level]
		if !ok {
			continue
		}

		target := rateFor[level]
		share := target.Sub(maxRateSeen)
		if !share.IsPositive() {
			continue
		}

		// 全局上限：总发放不超过一级比例
		if room := r1.Sub(maxRateSeen); share.GreaterThan(room) {
			share = room
		}
		if !share.IsPositive() {
			continue
		}

		commissionAmount := rechargeAmount.Mul(share).Round(4)

		account, err := s.accountRepo.GetOrCreate(ctx, tx, agentUserID)
		if err != nil {
			return err
		}

		if account.Status != model.AccountStatusNormal {
			// 代理账户被禁用时跳过该档发放，但该档比例仍然计入已发放上限
			s.logger.Warn("代理佣金账户已禁用，跳过本档返佣",
				zap.Int64("agent_user_id", agentUserID),
				zap.Int("hierarchy_level", int(level)),
			)
			maxRateSeen = decimal.Max(maxRateSeen, target)
			continue
		}

		account.TotalCommission = account.TotalCommission.Add(commissionAmount)
		account.AvailableCommission = account.AvailableCommission.Add(commissionAmount)
		if err := s.accountRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}

		record := &model.CommissionRecord{
			RecordNo:         idgen.GenerateCommissionNo(),
			AgentUserID:      agentUserID,
			BuyerUserID:      buyerUserID,
			TriggerBillID:    triggerBillID,
			TriggerAmount:    rechargeAmount,
			CommissionAmount: commissionAmount,
			CommissionRate:   share,
			HierarchyLevel:   int(level),
			Direction:        model.CommissionDirectionCredit,
			BusinessType:     model.CommissionBizRecharge,
			Status:           model.CommissionRecordStatusValid,
			Description:      fmt.Sprintf("下级充值返佣-L%d", int(level)),
		}
		if err := s.recordRepo.Create(ctx, tx, record); err != nil {
			return fmt.Errorf("记录佣金流水失败: %w", err)
		}

		s.logger.Info("返佣入账",
			zap.Int64("agent_user_id", agentUserID),
			zap.Int64("buyer_user_id", buyerUserID),
			zap.Int("hierarchy_level", int(level)),
			zap.String("share", share.String()),
			zap.String("commission_amount", commissionAmount.String()),
		)

		maxRateSeen = decimal.Max(maxRateSeen, target)
	}

	return nil
}
