package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drledger/internal/config"
	"drledger/internal/infrastructure/lock"
	"drledger/internal/model"
	"drledger/internal/repository"
	"drledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettlementService 佣金结算工作流
//
// 状态机：PENDING -> APPROVED / REJECTED，终态不可再变更。
// 资金口径（total == available + pending + settled 全程不变）：
//   申请：available -> pending（预留）
//   核准：pending 全额出池，核准部分进 settled，未核准部分退回 available
//   驳回：pending 全额退回 available
type SettlementService struct {
	db             *gorm.DB
	logger         *zap.Logger
	cfg            *config.Config
	redisClient    *redis.Client
	accountRepo    *repository.CommissionAccountRepository
	settlementRepo *repository.SettlementRepository
	outboxRepo     *repository.OutboxRepository
}

func NewSettlementService(db *gorm.DB, redisClient *redis.Client, logger *zap.Logger, cfg *config.Config) *SettlementService {
	return &SettlementService{
		db:             db,
		logger:         logger,
		cfg:            cfg,
		redisClient:    redisClient,
		accountRepo:    repository.NewCommissionAccountRepository(db),
		settlementRepo: repository.NewSettlementRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

// ApplySettlement 代理发起结算申请
// 【硬校验】可提佣金必须足够；通过后预留资金并落一张 PENDING 结算单
func (s *SettlementService) ApplySettlement(ctx context.Context, agentUserID int64, amount decimal.Decimal, operatorID int64, network, address, remark string) (*model.CommissionSettlement, error) {
	if agentUserID <= 0 {
		return nil, ErrUserRequired
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	settlementNo := idgen.GenerateSettlementNo()

	// 同一代理的并发申请用分布式锁串行化，避免重复预留
	// 未配置 Redis（单实例部署）时退化为乐观锁兜底
	if s.redisClient != nil {
		applyLock := lock.NewSettlementApplyLock(s.redisClient, agentUserID, settlementNo)
		if err := applyLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer applyLock.Unlock(ctx)
	}

	account, err := s.accountRepo.GetOrCreate(ctx, nil, agentUserID)
	if err != nil {
		return nil, err
	}
	if account.Status != model.AccountStatusNormal {
		return nil, ErrCommissionAccountDisabled
	}
	if account.AvailableCommission.LessThan(amount) {
		return nil, ErrInsufficientCommission
	}

	settlement := &model.CommissionSettlement{
		SettlementNo:  settlementNo,
		AgentUserID:   agentUserID,
		RequestAmount: amount,
		Status:        model.SettlementStatusPending,
		Network:       network,
		Address:       address,
		Remark:        remark,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.AvailableCommission = account.AvailableCommission.Sub(amount)
		account.PendingSettlementCommission = account.PendingSettlementCommission.Add(amount)
		if err := s.accountRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}

		if err := s.settlementRepo.Create(ctx, tx, settlement); err != nil {
			return fmt.Errorf("创建结算单失败: %w", err)
		}

		record := &model.CommissionSettlementRecord{
			RecordNo:     idgen.GenerateSettlementRecordNo(),
			SettlementID: settlement.SettlementID,
			AgentUserID:  agentUserID,
			Amount:       amount,
			Direction:    model.CommissionDirectionDebit,
			Description:  "申请结算，预留可提佣金",
		}
		if err := s.settlementRepo.CreateRecord(ctx, tx, record); err != nil {
			return fmt.Errorf("记录结算流水失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("结算申请已创建",
		zap.Int64("agent_user_id", agentUserID),
		zap.String("settlement_no", settlementNo),
		zap.String("amount", amount.String()),
	)

	return settlement, nil
}

// ApproveSettlement 运营核准结算
// 只允许 PENDING 单；核准金额不超过申请金额，未核准部分退回可提
func (s *SettlementService) ApproveSettlement(ctx context.Context, settlementID int64, approvedAmount decimal.Decimal, operatorID int64, remark string) (*model.CommissionSettlement, error) {
	if approvedAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	settlement, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.Status != model.SettlementStatusPending {
		return nil, ErrSettlementNotPending
	}
	if approvedAmount.GreaterThan(settlement.RequestAmount) {
		return nil, ErrApprovedExceedsRequest
	}

	account, err := s.accountRepo.GetByAgentUserID(ctx, settlement.AgentUserID)
	if err != nil {
		return nil, err
	}

	unapproved := settlement.RequestAmount.Sub(approvedAmount)
	now := time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.settlementRepo.TransitionFromPending(ctx, tx, settlementID, model.SettlementStatusApproved, approvedAmount, operatorID, now, remark); err != nil {
			if errors.Is(err, repository.ErrSettlementStatusConflict) {
				return ErrSettlementNotPending
			}
			return err
		}

		account.PendingSettlementCommission = account.PendingSettlementCommission.Sub(settlement.RequestAmount)
		account.SettledCommission = account.SettledCommission.Add(approvedAmount)
		account.AvailableCommission = account.AvailableCommission.Add(unapproved)
		if err := s.accountRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}

		debit := &model.CommissionSettlementRecord{
			RecordNo:     idgen.GenerateSettlementRecordNo(),
			SettlementID: settlementID,
			AgentUserID:  settlement.AgentUserID,
			Amount:       approvedAmount,
			Direction:    model.CommissionDirectionDebit,
			Description:  "结算核准打款",
		}
		if err := s.settlementRepo.CreateRecord(ctx, tx, debit); err != nil {
			return fmt.Errorf("记录结算流水失败: %w", err)
		}

		if unapproved.IsPositive() {
			credit := &model.CommissionSettlementRecord{
				RecordNo:     idgen.GenerateSettlementRecordNo(),
				SettlementID: settlementID,
				AgentUserID:  settlement.AgentUserID,
				Amount:       unapproved,
				Direction:    model.CommissionDirectionCredit,
				Description:  "未核准部分退回可提佣金",
			}
			if err := s.settlementRepo.CreateRecord(ctx, tx, credit); err != nil {
				return fmt.Errorf("记录结算流水失败: %w", err)
			}
		}

		return s.enqueueResultEvent(ctx, tx, settlement.SettlementNo, settlement.AgentUserID, model.SettlementStatusApproved, approvedAmount)
	})

	if err != nil {
		return nil, err
	}

	settlement.Status = model.SettlementStatusApproved
	settlement.ApprovedAmount = approvedAmount
	settlement.ApprovalUserID = operatorID
	settlement.ApprovalTime = &now
	if remark != "" {
		settlement.Remark = remark
	}

	s.logger.Info("结算已核准",
		zap.Int64("settlement_id", settlementID),
		zap.Int64("operator_id", operatorID),
		zap.String("approved_amount", approvedAmount.String()),
		zap.String("returned_amount", unapproved.String()),
	)

	return settlement, nil
}

// RejectSettlement 运营驳回结算，预留金额全额退回可提
func (s *SettlementService) RejectSettlement(ctx context.Context, settlementID int64, operatorID int64, remark string) (*model.CommissionSettlement, error) {
	settlement, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.Status != model.SettlementStatusPending {
		return nil, ErrSettlementNotPending
	}

	account, err := s.accountRepo.GetByAgentUserID(ctx, settlement.AgentUserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.settlementRepo.TransitionFromPending(ctx, tx, settlementID, model.SettlementStatusRejected, decimal.Zero, operatorID, now, remark); err != nil {
			if errors.Is(err, repository.ErrSettlementStatusConflict) {
				return ErrSettlementNotPending
			}
			return err
		}

		account.PendingSettlementCommission = account.PendingSettlementCommission.Sub(settlement.RequestAmount)
		account.AvailableCommission = account.AvailableCommission.Add(settlement.RequestAmount)
		if err := s.accountRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}

		credit := &model.CommissionSettlementRecord{
			RecordNo:     idgen.GenerateSettlementRecordNo(),
			SettlementID: settlementID,
			AgentUserID:  settlement.AgentUserID,
			Amount:       settlement.RequestAmount,
			Direction:    model.CommissionDirectionCredit,
			Description:  "结算驳回，预留佣金退回",
		}
		if err := s.settlementRepo.CreateRecord(ctx, tx, credit); err != nil {
			return fmt.Errorf("记录结算流水失败: %w", err)
		}

		return s.enqueueResultEvent(ctx, tx, settlement.SettlementNo, settlement.AgentUserID, model.SettlementStatusRejected, decimal.Zero)
	})

	if err != nil {
		return nil, err
	}

	settlement.Status = model.SettlementStatusRejected
	settlement.ApprovalUserID = operatorID
	settlement.ApprovalTime = &now
	if remark != "" {
		settlement.Remark = remark
	}

	s.logger.Info("结算已驳回",
		zap.Int64("settlement_id", settlementID),
		zap.Int64("operator_id", operatorID),
		zap.String("returned_amount", settlement.RequestAmount.String()),
	)

	return settlement, nil
}

func (s *SettlementService) enqueueResultEvent(ctx context.Context, tx *gorm.DB, settlementNo string, agentUserID int64, status string, approvedAmount decimal.Decimal) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"settlement_no":   settlementNo,
		"agent_user_id":   agentUserID,
		"status":          status,
		"approved_amount": approvedAmount.String(),
		"decided_at":      time.Now().Format(time.RFC3339),
	})
	msg := &model.OutboxMessage{
		MessageKey: settlementNo,
		Topic:      s.cfg.Kafka.Topic.SettlementResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
