package service

import (
	"context"
	"testing"

	"drledger/internal/model"
	"drledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRechargeCreatesAccountAndBill(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	account, bill, err := svc.Recharge(ctx, 1001, mustDecimal(t, "100"), 0)
	require.NoError(t, err)

	requireDecimalEqual(t, "100", account.BaseBalance)
	requireDecimalEqual(t, "100", account.TotalRecharge)
	assert.Equal(t, 1, account.Version)

	assert.Equal(t, model.BillTypeRecharge, bill.BillType)
	requireDecimalEqual(t, "0", bill.BalanceBefore)
	requireDecimalEqual(t, "100", bill.BalanceAfter)
	assert.NotEmpty(t, bill.BillNo)

	// 充值结果事件落入发件箱
	var outboxCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("topic = ?", "dr.recharge.result").
		Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)
}

func TestRechargeRejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1001, decimal.Zero, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = svc.Recharge(ctx, 1001, mustDecimal(t, "-5"), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestConsumeDrawsPreDeductedPoolFirst(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1001, mustDecimal(t, "100"), 0)
	require.NoError(t, err)
	require.NoError(t, svc.PreDeductForInstance(ctx, 1001, mustDecimal(t, "30"), 0))

	account, err := svc.GetOrCreate(ctx, 1001)
	require.NoError(t, err)
	requireDecimalEqual(t, "70", account.BaseBalance)
	requireDecimalEqual(t, "30", account.PreDeductedBalance)

	// 消费 40：先吃光预扣池 30，再从基础余额扣 10
	bill, err := svc.Consume(ctx, &ConsumeRequest{
		UserID:       1001,
		Amount:       mustDecimal(t, "40"),
		BusinessType: "INSTANCE",
	})
	require.NoError(t, err)

	account, err = svc.GetOrCreate(ctx, 1001)
	require.NoError(t, err)
	requireDecimalEqual(t, "60", account.BaseBalance)
	requireDecimalEqual(t, "0", account.PreDeductedBalance)
	requireDecimalEqual(t, "40", account.TotalConsume)

	requireDecimalEqual(t, "70", bill.BalanceBefore)
	requireDecimalEqual(t, "60", bill.BalanceAfter)
	requireDecimalEqual(t, "-40", bill.Amount)
}

func TestConsumeAllowsNegativeBalance(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	// 零余额账户直接消费：软校验只告警不拦截
	bill, err := svc.Consume(ctx, &ConsumeRequest{
		UserID:       1002,
		Amount:       mustDecimal(t, "25"),
		BusinessType: "SMS",
	})
	require.NoError(t, err)
	requireDecimalEqual(t, "-25", bill.BalanceAfter)

	account, err := svc.GetOrCreate(ctx, 1002)
	require.NoError(t, err)
	requireDecimalEqual(t, "-25", account.BaseBalance)
}

func TestPreDeductInsufficientIsRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1003, mustDecimal(t, "10"), 0)
	require.NoError(t, err)

	err = svc.PreDeductForInstance(ctx, 1003, mustDecimal(t, "30"), 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 拒绝时不留任何变更
	account, err := svc.GetOrCreate(ctx, 1003)
	require.NoError(t, err)
	requireDecimalEqual(t, "10", account.BaseBalance)
	requireDecimalEqual(t, "0", account.PreDeductedBalance)

	var billCount int64
	require.NoError(t, db.Model(&model.BillingRecord{}).
		Where("user_id = ? AND bill_type = ?", 1003, model.BillTypePreDeduct).
		Count(&billCount).Error)
	assert.Equal(t, int64(0), billCount)
}

func TestPreDeductZeroIsNoOp(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	require.NoError(t, svc.PreDeductForInstance(ctx, 1004, decimal.Zero, 0))

	var billCount int64
	require.NoError(t, db.Model(&model.BillingRecord{}).Where("user_id = ?", 1004).Count(&billCount).Error)
	assert.Equal(t, int64(0), billCount)
}

func TestReleasePreDeductReturnsToBase(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1005, mustDecimal(t, "100"), 0)
	require.NoError(t, err)
	require.NoError(t, svc.PreDeductForInstance(ctx, 1005, mustDecimal(t, "30"), 0))

	// 超出预扣池的释放被拒绝
	err = svc.ReleasePreDeduct(ctx, 1005, mustDecimal(t, "31"), 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, svc.ReleasePreDeduct(ctx, 1005, mustDecimal(t, "30"), 0))

	account, err := svc.GetOrCreate(ctx, 1005)
	require.NoError(t, err)
	requireDecimalEqual(t, "100", account.BaseBalance)
	requireDecimalEqual(t, "0", account.PreDeductedBalance)
}

func TestManualAdjustClampsNegativeToBase(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1006, mustDecimal(t, "50"), 0)
	require.NoError(t, err)

	// 扣 80 只能生效 50
	account, bill, applied, err := svc.ManualAdjustBalance(ctx, 1006, mustDecimal(t, "-80"), 9, "误充回收")
	require.NoError(t, err)
	requireDecimalEqual(t, "-50", applied)
	requireDecimalEqual(t, "0", account.BaseBalance)
	requireDecimalEqual(t, "-50", bill.Amount)
	assert.Equal(t, model.BillTypeAdjust, bill.BillType)
}

func TestManualAdjustOnNegativeBaseAppliesZero(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	// 软校验放行导致的负余额
	_, err := svc.Consume(ctx, &ConsumeRequest{UserID: 1007, Amount: mustDecimal(t, "20"), BusinessType: "SMS"})
	require.NoError(t, err)

	account, _, applied, err := svc.ManualAdjustBalance(ctx, 1007, mustDecimal(t, "-10"), 9, "")
	require.NoError(t, err)
	assert.True(t, applied.IsZero())
	requireDecimalEqual(t, "-20", account.BaseBalance)
}

func TestManualAdjustPositiveUnconditional(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	account, _, applied, err := svc.ManualAdjustBalance(ctx, 1008, mustDecimal(t, "15"), 9, "活动补偿")
	require.NoError(t, err)
	requireDecimalEqual(t, "15", applied)
	requireDecimalEqual(t, "15", account.BaseBalance)

	_, _, _, err = svc.ManualAdjustBalance(ctx, 1008, decimal.Zero, 9, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFreezeAndUnfreeze(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1009, mustDecimal(t, "100"), 0)
	require.NoError(t, err)

	require.NoError(t, svc.FreezeBalance(ctx, 1009, mustDecimal(t, "40"), 9))

	account, err := svc.GetOrCreate(ctx, 1009)
	require.NoError(t, err)
	requireDecimalEqual(t, "60", account.BaseBalance)
	requireDecimalEqual(t, "40", account.FrozenAmount)

	// 冻结超出基础余额被拒绝
	err = svc.FreezeBalance(ctx, 1009, mustDecimal(t, "61"), 9)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 解冻超出冻结金额被拒绝
	err = svc.UnfreezeBalance(ctx, 1009, mustDecimal(t, "50"), 9)
	assert.ErrorIs(t, err, ErrInsufficientFrozen)

	require.NoError(t, svc.UnfreezeBalance(ctx, 1009, mustDecimal(t, "40"), 9))

	account, err = svc.GetOrCreate(ctx, 1009)
	require.NoError(t, err)
	requireDecimalEqual(t, "100", account.BaseBalance)
	requireDecimalEqual(t, "0", account.FrozenAmount)
}

func TestCheckBalanceSufficient(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	// 账户不存在：零金额视为足够，正金额不足，且不落账户行
	ok, err := svc.CheckBalanceSufficient(ctx, 1010, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckBalanceSufficient(ctx, 1010, mustDecimal(t, "5"))
	require.NoError(t, err)
	assert.False(t, ok)

	var accountCount int64
	require.NoError(t, db.Model(&model.BalanceAccount{}).Where("user_id = ?", 1010).Count(&accountCount).Error)
	assert.Equal(t, int64(0), accountCount)

	_, _, err = svc.Recharge(ctx, 1010, mustDecimal(t, "10"), 0)
	require.NoError(t, err)
	require.NoError(t, svc.PreDeductForInstance(ctx, 1010, mustDecimal(t, "4"), 0))

	// 可用资金 = 基础余额 + 预扣余额
	ok, err = svc.CheckBalanceSufficient(ctx, 1010, mustDecimal(t, "10"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckBalanceSufficient(ctx, 1010, mustDecimal(t, "10.0001"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeForBusinessUsesPriceConfig(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.PriceConfig{
		BusinessType: "SMS",
		Price:        mustDecimal(t, "0.05"),
		BillingType:  model.BillingTypeInstant,
		Status:       model.PriceConfigStatusEnabled,
	}).Error)

	_, _, err := svc.Recharge(ctx, 1011, mustDecimal(t, "10"), 0)
	require.NoError(t, err)

	bill, err := svc.ConsumeForBusiness(ctx, 1011, "SMS", "msg-001", 3, 0)
	require.NoError(t, err)
	requireDecimalEqual(t, "-0.15", bill.Amount)
	assert.Equal(t, "SMS", bill.BusinessType)
	assert.Equal(t, "msg-001", bill.BusinessID)

	// 缺失或停用的价格配置直接拒绝
	_, err = svc.ConsumeForBusiness(ctx, 1011, "GPU", "job-1", 1, 0)
	assert.ErrorIs(t, err, ErrPriceConfigUnavailable)

	require.NoError(t, db.Model(&model.PriceConfig{}).
		Where("business_type = ?", "SMS").
		Update("status", model.PriceConfigStatusDisabled).Error)
	_, err = svc.ConsumeForBusiness(ctx, 1011, "SMS", "msg-002", 1, 0)
	assert.ErrorIs(t, err, ErrPriceConfigUnavailable)
}

func TestDisabledAccountRejectsMutations(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, 1012)
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.BalanceAccount{}).
		Where("user_id = ?", 1012).
		Update("status", model.AccountStatusDisabled).Error)

	_, _, err = svc.Recharge(ctx, 1012, mustDecimal(t, "10"), 0)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = svc.Consume(ctx, &ConsumeRequest{UserID: 1012, Amount: mustDecimal(t, "1"), BusinessType: "SMS"})
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestOptimisticLockConflictSurfaces(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1013, mustDecimal(t, "100"), 0)
	require.NoError(t, err)

	// 模拟并发写入：版本号被别人推进后，旧版本的 CAS 更新必须失败
	require.NoError(t, db.Model(&model.BalanceAccount{}).
		Where("user_id = ?", 1013).
		Update("version", 99).Error)

	repo := repository.NewBalanceAccountRepository(db)
	stale := &model.BalanceAccount{UserID: 1013, Version: 1, BaseBalance: mustDecimal(t, "100")}
	err = repo.UpdateWithVersion(ctx, nil, stale)
	assert.ErrorIs(t, err, repository.ErrOptimisticLock)
}

func TestRefundCreditsBase(t *testing.T) {
	db := newTestDB(t)
	svc := newBalanceService(t, db, nil)
	ctx := context.Background()

	_, _, err := svc.Recharge(ctx, 1014, mustDecimal(t, "50"), 0)
	require.NoError(t, err)

	bill, err := svc.Refund(ctx, 1014, mustDecimal(t, "12.5"), "INSTANCE", "inst-7", 9, "")
	require.NoError(t, err)
	requireDecimalEqual(t, "62.5", bill.BalanceAfter)
	assert.Equal(t, model.BillTypeRefund, bill.BillType)

	account, err := svc.GetOrCreate(ctx, 1014)
	require.NoError(t, err)
	requireDecimalEqual(t, "12.5", account.TotalRefund)
}
