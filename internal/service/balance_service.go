package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drledger/internal/config"
	"drledger/internal/model"
	"drledger/internal/repository"
	"drledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserDirectory 用户名解析器，仅用于审计描述，由外部系统实现
type UserDirectory interface {
	DisplayName(ctx context.Context, userID int64) string
}

// BalanceService DR余额账务服务
//
// 【关键点】每个对外操作都在一个数据库事务内完成：
// 1. 账户行的乐观锁条件更新（version CAS）
// 2. 恰好一条账单流水
// 3. 充值路径额外包含佣金分配扇出和发件箱事件
// 任一步失败整体回滚，不留下半截流水；CAS 冲突不在内部重试
type BalanceService struct {
	db            *gorm.DB
	logger        *zap.Logger
	cfg           *config.Config
	balanceRepo   *repository.BalanceAccountRepository
	billingRepo   *repository.BillingRecordRepository
	priceRepo     *repository.PriceConfigRepository
	outboxRepo    *repository.OutboxRepository
	commissionSvc *CommissionService
	directory     UserDirectory // 可选
}

func NewBalanceService(db *gorm.DB, logger *zap.Logger, cfg *config.Config, commissionSvc *CommissionService) *BalanceService {
	return &BalanceService{
		db:            db,
		logger:        logger,
		cfg:           cfg,
		balanceRepo:   repository.NewBalanceAccountRepository(db),
		billingRepo:   repository.NewBillingRecordRepository(db),
		priceRepo:     repository.NewPriceConfigRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
		commissionSvc: commissionSvc,
	}
}

// SetUserDirectory 注入用户名解析器（可选）
func (s *BalanceService) SetUserDirectory(d UserDirectory) {
	s.directory = d
}

// GetOrCreate 获取余额账户，首次访问时创建全零账户
func (s *BalanceService) GetOrCreate(ctx context.Context, userID int64) (*model.BalanceAccount, error) {
	if userID <= 0 {
		return nil, ErrUserRequired
	}
	return s.balanceRepo.GetOrCreate(ctx, userID)
}

// loadNormalAccount 获取账户并校验状态，非正常状态一律拒绝变更
func (s *BalanceService) loadNormalAccount(ctx context.Context, userID int64) (*model.BalanceAccount, error) {
	if userID <= 0 {
		return nil, ErrUserRequired
	}
	account, err := s.balanceRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.Status != model.AccountStatusNormal {
		return nil, ErrAccountDisabled
	}
	return account, nil
}

// Recharge 充值
// 余额入账 + 账单流水 + 佣金分配扇出 + 发件箱事件，同一事务提交
func (s *BalanceService) Recharge(ctx context.Context, userID int64, amount decimal.Decimal, operatorID int64) (*model.BalanceAccount, *model.BillingRecord, error) {
	if !amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}

	account, err := s.loadNormalAccount(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	before := account.BaseBalance
	after := before.Add(amount)

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        userID,
		OperatorID:    operatorID,
		BillType:      model.BillTypeRecharge,
		BillingType:   model.BillingTypeInstant,
		BusinessType:  "RECHARGE",
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   "账户充值",
		Status:        model.BillStatusValid,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.BaseBalance = after
		account.TotalRecharge = account.TotalRecharge.Add(amount)
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}

		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}

		if err := s.commissionSvc.DistributeRechargeCommission(ctx, tx, userID, amount, operatorID, bill.BillID); err != nil {
			return fmt.Errorf("佣金分配失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"user_id":      userID,
			"amount":       amount.String(),
			"bill_no":      bill.BillNo,
			"recharged_at": time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: bill.BillNo,
			Topic:      s.cfg.Kafka.Topic.RechargeResult,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("充值成功",
		zap.Int64("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("bill_no", bill.BillNo),
	)

	return account, bill, nil
}

// ConsumeRequest 消费请求
type ConsumeRequest struct {
	UserID       int64
	Amount       decimal.Decimal
	BusinessType string
	BusinessID   string
	BillingType  string
	OperatorID   int64
	Description  string
}

// Consume 消费扣款
// 优先扣预扣池，剩余部分扣基础余额
//
// 【软校验】可用资金不足时记录告警但照常放行（余额允许为负），
// 这是刻意保留的策略：在途用量计费不能被余额卡住
func (s *BalanceService) Consume(ctx context.Context, req *ConsumeRequest) (*model.BillingRecord, error) {
	if req == nil || !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	account, err := s.loadNormalAccount(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if account.AvailableTotal().LessThan(req.Amount) {
		s.logger.Warn("可用资金不足，消费仍然放行，余额将为负",
			zap.Int64("user_id", req.UserID),
			zap.String("amount", req.Amount.String()),
			zap.String("base_balance", account.BaseBalance.String()),
			zap.String("pre_deducted", account.PreDeductedBalance.String()),
			zap.String("business_type", req.BusinessType),
		)
	}

	fromPre := decimal.Min(account.PreDeductedBalance, req.Amount)
	fromBase := req.Amount.Sub(fromPre)

	before := account.BaseBalance
	after := before.Sub(fromBase)

	billingType := req.BillingType
	if billingType == "" {
		billingType = model.BillingTypeInstant
	}

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        req.UserID,
		OperatorID:    req.OperatorID,
		BillType:      model.BillTypeConsume,
		BillingType:   billingType,
		BusinessType:  req.BusinessType,
		BusinessID:    req.BusinessID,
		Amount:        req.Amount.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   req.Description,
		Status:        model.BillStatusValid,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.PreDeductedBalance = account.PreDeductedBalance.Sub(fromPre)
		account.BaseBalance = after
		account.TotalConsume = account.TotalConsume.Add(req.Amount)
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}
		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return bill, nil
}

// ConsumeForBusiness 按业务类型计费消费
// 从价格配置取单价和计费方式，配置缺失或停用时拒绝且无任何变更
func (s *BalanceService) ConsumeForBusiness(ctx context.Context, userID int64, businessType, businessID string, quantity int64, operatorID int64) (*model.BillingRecord, error) {
	if quantity <= 0 {
		return nil, ErrInvalidAmount
	}

	priceCfg, err := s.priceRepo.GetByBusinessType(ctx, businessType)
	if err != nil {
		return nil, err
	}
	if priceCfg == nil || priceCfg.Status != model.PriceConfigStatusEnabled {
		return nil, ErrPriceConfigUnavailable
	}

	amount := priceCfg.Price.Mul(decimal.NewFromInt(quantity))
	return s.Consume(ctx, &ConsumeRequest{
		UserID:       userID,
		Amount:       amount,
		BusinessType: businessType,
		BusinessID:   businessID,
		BillingType:  priceCfg.BillingType,
		OperatorID:   operatorID,
		Description:  fmt.Sprintf("计费消费-%s-%s", businessType, businessID),
	})
}

// PreDeductForInstance 实例创建预扣
// 【硬校验】基础余额必须足够，不足直接拒绝，不做任何变更；
// 预扣只是把资金从基础余额挪进预扣池，不是消费
func (s *BalanceService) PreDeductForInstance(ctx context.Context, userID int64, amount decimal.Decimal, operatorID int64) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}

	account, err := s.loadNormalAccount(ctx, userID)
	if err != nil {
		return err
	}

	if account.BaseBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	before := account.BaseBalance
	after := before.Sub(amount)

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        userID,
		OperatorID:    operatorID,
		BillType:      model.BillTypePreDeduct,
		BillingType:   model.BillingTypeInstant,
		BusinessType:  "INSTANCE",
		Amount:        amount.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   "实例创建预扣",
		Status:        model.BillStatusValid,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		account.BaseBalance = after
		account.PreDeductedBalance = account.PreDeductedBalance.Add(amount)
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}
		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}
		return nil
	})
}

// ReleasePreDeduct 预扣释放（实例销毁时把剩余预留退回基础余额）
func (s *BalanceService) ReleasePreDeduct(ctx context.Context, userID int64, amount decimal.Decimal, operatorID int64) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	account, err := s.loadNormalAccount(ctx, userID)
	if err != nil {
		return err
	}

	if account.PreDeductedBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	before := account.BaseBalance
	after := before.Add(amount)

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        userID,
		OperatorID:    operatorID,
		BillType:      model.BillTypeRelease,
		BillingType:   model.BillingTypeInstant,
		BusinessType:  "INSTANCE",
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   "实例预扣释放",
		Status:        model.BillStatusValid,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		account.PreDeductedBalance = account.PreDeductedBalance.Sub(amount)
		account.BaseBalance = after
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}
		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}
		return nil
	})
}

// Refund 退款入账
func (s *BalanceService) Refund(ctx context.Context, userID int64, amount decimal.Decimal, businessType, businessID string, operatorID int64, description string) (*model.BillingRecord, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	account, err := s.loadNormalAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := account.BaseBalance
	after := before.Add(amount)

	if description == "" {
		description = fmt.Sprintf("退款-%s-%s", businessType, businessID)
	}

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        userID,
		OperatorID:    operatorID,
		BillType:      model.BillTypeRefund,
		BillingType:   model.BillingTypeInstant,
		BusinessType:  businessType,
		BusinessID:    businessID,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   description,
		Status:        model.BillStatusValid,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.BaseBalance = after
		account.TotalRefund = account.TotalRefund.Add(amount)
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}
		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return bill, nil
}

// ManualAdjustBalance 人工调整余额
// 正数无条件加；负数按 min(|amount|, 基础余额) 收敛，调整不会把基础余额打到负数。
// 返回实际生效的调整额
func (s *BalanceService) ManualAdjustBalance(ctx context.Context, userID int64, amount decimal.Decimal, operatorID int64, remark string) (*model.BalanceAccount, *model.BillingRecord, decimal.Decimal, error) {
	if amount.IsZero() {
		return nil, nil, decimal.Zero, ErrInvalidAmount
	}

	account, err := s.loadNormalAccount(ctx, userID)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}

	applied := amount
	if amount.IsNegative() {
		deduct := amount.Neg()
		if deduct.GreaterThan(account.BaseBalance) {
			deduct = account.BaseBalance
		}
		if deduct.IsNegative() {
			// 余额本身已为负，人工扣减不再生效
			deduct = decimal.Zero
		}
		applied = deduct.Neg()
	}

	before := account.BaseBalance
	after := before.Add(applied)

	description := remark
	if s.directory != nil {
		description = fmt.Sprintf("[%s] %s", s.directory.DisplayName(ctx, operatorID), remark)
	}

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        userID,
		OperatorID:    operatorID,
		BillType:      model.BillTypeAdjust,
		BillingType:   model.BillingTypeInstant,
		BusinessType:  "MANUAL_ADJUST",
		Amount:        applied,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   description,
		Status:        model.BillStatusValid,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.BaseBalance = after
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}
		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, nil, decimal.Zero, err
	}

	s.logger.Info("人工调整余额",
		zap.Int64("user_id", userID),
		zap.Int64("operator_id", operatorID),
		zap.String("requested", amount.String()),
		zap.String("applied", applied.String()),
	)

	return account, bill, applied, nil
}

// FreezeBalance 冻结余额（基础余额 -> 冻结金额，不影响累计值）
// 【硬校验】基础余额必须足够
func (s *BalanceService) FreezeBalance(ctx context.Context, userID int64, amount decimal.Decimal, operatorID int64) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	account, err := s.loadNormalAccount(ctx, userID)
	if err != nil {
		return err
	}

	if account.BaseBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	before := account.BaseBalance
	after := before.Sub(amount)

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        userID,
		OperatorID:    operatorID,
		BillType:      model.BillTypeFreeze,
		BillingType:   model.BillingTypeInstant,
		BusinessType:  "FREEZE",
		Amount:        amount.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   "余额冻结",
		Status:        model.BillStatusValid,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		account.BaseBalance = after
		account.FrozenAmount = account.FrozenAmount.Add(amount)
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}
		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}
		return nil
	})
}

// UnfreezeBalance 解冻余额（冻结金额 -> 基础余额）
func (s *BalanceService) UnfreezeBalance(ctx context.Context, userID int64, amount decimal.Decimal, operatorID int64) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	account, err := s.loadNormalAccount(ctx, userID)
	if err != nil {
		return err
	}

	if account.FrozenAmount.LessThan(amount) {
		return ErrInsufficientFrozen
	}

	before := account.BaseBalance
	after := before.Add(amount)

	bill := &model.BillingRecord{
		BillNo:        idgen.GenerateBillNo(),
		UserID:        userID,
		OperatorID:    operatorID,
		BillType:      model.BillTypeUnfreeze,
		BillingType:   model.BillingTypeInstant,
		BusinessType:  "FREEZE",
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   "余额解冻",
		Status:        model.BillStatusValid,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		account.FrozenAmount = account.FrozenAmount.Sub(amount)
		account.BaseBalance = after
		if err := s.balanceRepo.UpdateWithVersion(ctx, tx, account); err != nil {
			return err
		}
		if err := s.billingRepo.Create(ctx, tx, bill); err != nil {
			return fmt.Errorf("记录账单失败: %w", err)
		}
		return nil
	})
}

// CheckBalanceSufficient 只读判断可用资金（基础余额 + 预扣余额）是否足够
func (s *BalanceService) CheckBalanceSufficient(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error) {
	if userID <= 0 {
		return false, ErrUserRequired
	}
	if amount.IsNegative() {
		return false, ErrInvalidAmount
	}

	account, err := s.balanceRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return !amount.IsPositive(), nil
		}
		return false, err
	}

	return account.AvailableTotal().GreaterThanOrEqual(amount), nil
}

// GetBillingRecords 查询用户账单流水
func (s *BalanceService) GetBillingRecords(ctx context.Context, userID int64, filter *repository.BillingRecordFilter) ([]*model.BillingRecord, int64, error) {
	if userID <= 0 {
		return nil, 0, ErrUserRequired
	}
	if filter == nil {
		filter = &repository.BillingRecordFilter{}
	}
	return s.billingRepo.ListByUserID(ctx, userID, filter)
}
