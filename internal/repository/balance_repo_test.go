package repository

import (
	"context"
	"testing"

	"drledger/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.BalanceAccount{},
		&model.BillingRecord{},
	))

	return db
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewBalanceAccountRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.UserID)
	assert.True(t, first.BaseBalance.IsZero())
	assert.Equal(t, model.AccountStatusNormal, first.Status)

	second, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&model.BalanceAccount{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateWithVersionCAS(t *testing.T) {
	db := newTestDB(t)
	repo := NewBalanceAccountRepository(db)
	ctx := context.Background()

	account, err := repo.GetOrCreate(ctx, 101)
	require.NoError(t, err)

	// 两个副本读到同一版本，只有先写的能成功
	stale, err := repo.GetByUserID(ctx, 101)
	require.NoError(t, err)

	account.BaseBalance = decimal.NewFromInt(100)
	require.NoError(t, repo.UpdateWithVersion(ctx, nil, account))
	assert.Equal(t, 1, account.Version)

	stale.BaseBalance = decimal.NewFromInt(200)
	err = repo.UpdateWithVersion(ctx, nil, stale)
	assert.ErrorIs(t, err, ErrOptimisticLock)

	// 数据库里是赢家的值
	current, err := repo.GetByUserID(ctx, 101)
	require.NoError(t, err)
	assert.True(t, current.BaseBalance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, current.Version)
}

func TestBillingRecordFilterAndPaging(t *testing.T) {
	db := newTestDB(t)
	repo := NewBillingRecordRepository(db)
	ctx := context.Background()

	bills := []*model.BillingRecord{
		{BillNo: "B1", UserID: 102, BillType: model.BillTypeRecharge, BusinessType: "RECHARGE", Amount: decimal.NewFromInt(10), Status: model.BillStatusValid},
		{BillNo: "B2", UserID: 102, BillType: model.BillTypeConsume, BusinessType: "SMS", Amount: decimal.NewFromInt(-1), Status: model.BillStatusValid},
		{BillNo: "B3", UserID: 102, BillType: model.BillTypeConsume, BusinessType: "INSTANCE", Amount: decimal.NewFromInt(-2), Status: model.BillStatusValid},
		{BillNo: "B4", UserID: 103, BillType: model.BillTypeConsume, BusinessType: "SMS", Amount: decimal.NewFromInt(-3), Status: model.BillStatusValid},
	}
	for _, b := range bills {
		require.NoError(t, repo.Create(ctx, nil, b))
	}

	records, total, err := repo.ListByUserID(ctx, 102, &BillingRecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, records, 3)

	records, total, err = repo.ListByUserID(ctx, 102, &BillingRecordFilter{BillType: model.BillTypeConsume})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	records, total, err = repo.ListByUserID(ctx, 102, &BillingRecordFilter{BusinessType: "SMS"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "B2", records[0].BillNo)

	records, total, err = repo.ListByUserID(ctx, 102, &BillingRecordFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, records, 1)
}
