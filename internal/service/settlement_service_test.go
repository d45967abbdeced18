package service

import (
	"context"
	"testing"

	"drledger/internal/model"
	"drledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSettlementService(db *gorm.DB) *SettlementService {
	// 测试环境不接 Redis，申请锁退化为乐观锁兜底
	return NewSettlementService(db, nil, zap.NewNop(), newTestConfig())
}

// seedCommission 给代理账户灌入指定的可提佣金
func seedCommission(t *testing.T, db *gorm.DB, agentUserID int64, available string) {
	t.Helper()
	repo := repository.NewCommissionAccountRepository(db)
	account, err := repo.GetOrCreate(context.Background(), nil, agentUserID)
	require.NoError(t, err)

	account.TotalCommission = mustDecimal(t, available)
	account.AvailableCommission = mustDecimal(t, available)
	require.NoError(t, repo.UpdateWithVersion(context.Background(), nil, account))
}

func loadCommissionAccount(t *testing.T, db *gorm.DB, agentUserID int64) *model.CommissionAccount {
	t.Helper()
	repo := repository.NewCommissionAccountRepository(db)
	account, err := repo.GetByAgentUserID(context.Background(), agentUserID)
	require.NoError(t, err)
	return account
}

// requireConservation 校验资金恒等式 total == available + pending + settled
func requireConservation(t *testing.T, account *model.CommissionAccount) {
	t.Helper()
	sum := account.AvailableCommission.
		Add(account.PendingSettlementCommission).
		Add(account.SettledCommission)
	require.True(t, account.TotalCommission.Equal(sum),
		"资金恒等式被破坏: total=%s available=%s pending=%s settled=%s",
		account.TotalCommission, account.AvailableCommission,
		account.PendingSettlementCommission, account.SettledCommission)
}

func TestApplySettlementReservesFunds(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 21, "80")

	settlement, err := svc.ApplySettlement(ctx, 21, mustDecimal(t, "30"), 21, "TRC20", "Txxx", "")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusPending, settlement.Status)
	assert.NotEmpty(t, settlement.SettlementNo)
	requireDecimalEqual(t, "30", settlement.RequestAmount)

	account := loadCommissionAccount(t, db, 21)
	requireDecimalEqual(t, "50", account.AvailableCommission)
	requireDecimalEqual(t, "30", account.PendingSettlementCommission)
	requireConservation(t, account)

	// 申请预留落一条 DEBIT 流水
	var records []*model.CommissionSettlementRecord
	require.NoError(t, db.Where("settlement_id = ?", settlement.SettlementID).Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, model.CommissionDirectionDebit, records[0].Direction)
	requireDecimalEqual(t, "30", records[0].Amount)
}

func TestApplySettlementInsufficientAvailable(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 22, "80")

	_, err := svc.ApplySettlement(ctx, 22, mustDecimal(t, "100"), 22, "TRC20", "Txxx", "")
	assert.ErrorIs(t, err, ErrInsufficientCommission)

	// 拒绝时不留任何变更
	account := loadCommissionAccount(t, db, 22)
	requireDecimalEqual(t, "80", account.AvailableCommission)
	requireDecimalEqual(t, "0", account.PendingSettlementCommission)

	var count int64
	require.NoError(t, db.Model(&model.CommissionSettlement{}).Where("agent_user_id = ?", 22).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestApproveSettlementPartial(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 23, "80")

	settlement, err := svc.ApplySettlement(ctx, 23, mustDecimal(t, "80"), 23, "TRC20", "Txxx", "")
	require.NoError(t, err)

	// 部分核准：40 进已结算，40 退回可提
	approved, err := svc.ApproveSettlement(ctx, settlement.SettlementID, mustDecimal(t, "40"), 9, "手续费扣减")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusApproved, approved.Status)
	requireDecimalEqual(t, "40", approved.ApprovedAmount)
	assert.Equal(t, int64(9), approved.ApprovalUserID)
	require.NotNil(t, approved.ApprovalTime)

	account := loadCommissionAccount(t, db, 23)
	requireDecimalEqual(t, "40", account.AvailableCommission)
	requireDecimalEqual(t, "0", account.PendingSettlementCommission)
	requireDecimalEqual(t, "40", account.SettledCommission)
	requireConservation(t, account)

	// 申请 DEBIT + 核准 DEBIT + 未核准退回 CREDIT
	var records []*model.CommissionSettlementRecord
	require.NoError(t, db.Where("settlement_id = ?", settlement.SettlementID).
		Order("record_id ASC").Find(&records).Error)
	require.Len(t, records, 3)
	assert.Equal(t, model.CommissionDirectionDebit, records[1].Direction)
	requireDecimalEqual(t, "40", records[1].Amount)
	assert.Equal(t, model.CommissionDirectionCredit, records[2].Direction)
	requireDecimalEqual(t, "40", records[2].Amount)

	// 审批结果事件落入发件箱
	var outboxCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("topic = ?", "dr.settlement.result").
		Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)
}

func TestApproveSettlementFullAmount(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 24, "40")

	settlement, err := svc.ApplySettlement(ctx, 24, mustDecimal(t, "40"), 24, "TRC20", "Txxx", "")
	require.NoError(t, err)

	_, err = svc.ApproveSettlement(ctx, settlement.SettlementID, mustDecimal(t, "40"), 9, "")
	require.NoError(t, err)

	account := loadCommissionAccount(t, db, 24)
	requireDecimalEqual(t, "0", account.AvailableCommission)
	requireDecimalEqual(t, "0", account.PendingSettlementCommission)
	requireDecimalEqual(t, "40", account.SettledCommission)
	requireConservation(t, account)

	// 全额核准没有退回流水
	var creditCount int64
	require.NoError(t, db.Model(&model.CommissionSettlementRecord{}).
		Where("settlement_id = ? AND direction = ?", settlement.SettlementID, model.CommissionDirectionCredit).
		Count(&creditCount).Error)
	assert.Equal(t, int64(0), creditCount)
}

func TestApproveSettlementValidations(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 25, "50")

	settlement, err := svc.ApplySettlement(ctx, 25, mustDecimal(t, "30"), 25, "TRC20", "Txxx", "")
	require.NoError(t, err)

	// 核准金额不能超过申请金额
	_, err = svc.ApproveSettlement(ctx, settlement.SettlementID, mustDecimal(t, "30.0001"), 9, "")
	assert.ErrorIs(t, err, ErrApprovedExceedsRequest)

	_, err = svc.ApproveSettlement(ctx, settlement.SettlementID, mustDecimal(t, "-1"), 9, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// 终态后再次审批被拒绝
	_, err = svc.ApproveSettlement(ctx, settlement.SettlementID, mustDecimal(t, "30"), 9, "")
	require.NoError(t, err)
	_, err = svc.ApproveSettlement(ctx, settlement.SettlementID, mustDecimal(t, "30"), 9, "")
	assert.ErrorIs(t, err, ErrSettlementNotPending)
	_, err = svc.RejectSettlement(ctx, settlement.SettlementID, 9, "")
	assert.ErrorIs(t, err, ErrSettlementNotPending)
}

func TestRejectSettlementReturnsFunds(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 26, "80")

	settlement, err := svc.ApplySettlement(ctx, 26, mustDecimal(t, "30"), 26, "TRC20", "Txxx", "")
	require.NoError(t, err)

	rejected, err := svc.RejectSettlement(ctx, settlement.SettlementID, 9, "地址校验失败")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusRejected, rejected.Status)
	assert.Equal(t, "地址校验失败", rejected.Remark)

	account := loadCommissionAccount(t, db, 26)
	requireDecimalEqual(t, "80", account.AvailableCommission)
	requireDecimalEqual(t, "0", account.PendingSettlementCommission)
	requireDecimalEqual(t, "0", account.SettledCommission)
	requireConservation(t, account)

	// 驳回后不允许再核准
	_, err = svc.ApproveSettlement(ctx, settlement.SettlementID, mustDecimal(t, "30"), 9, "")
	assert.ErrorIs(t, err, ErrSettlementNotPending)
}

func TestApplySettlementDisabledAccountRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 28, "50")
	require.NoError(t, db.Model(&model.CommissionAccount{}).
		Where("agent_user_id = ?", 28).
		Update("status", model.AccountStatusDisabled).Error)

	_, err := svc.ApplySettlement(ctx, 28, mustDecimal(t, "10"), 28, "TRC20", "Txxx", "")
	assert.ErrorIs(t, err, ErrCommissionAccountDisabled)
}

func TestApproveZeroAmountReturnsEverything(t *testing.T) {
	db := newTestDB(t)
	svc := newSettlementService(db)
	ctx := context.Background()
	seedCommission(t, db, 27, "30")

	settlement, err := svc.ApplySettlement(ctx, 27, mustDecimal(t, "30"), 27, "TRC20", "Txxx", "")
	require.NoError(t, err)

	// 核准 0 等价于全额退回，但结算单进入 APPROVED 终态
	approved, err := svc.ApproveSettlement(ctx, settlement.SettlementID, decimal.Zero, 9, "")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusApproved, approved.Status)

	account := loadCommissionAccount(t, db, 27)
	requireDecimalEqual(t, "30", account.AvailableCommission)
	requireDecimalEqual(t, "0", account.SettledCommission)
	requireConservation(t, account)
}
