package service

import (
	"context"
	"testing"

	"drledger/internal/config"
	"drledger/internal/model"
	"drledger/pkg/idgen"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	idgen.Init(1)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.BalanceAccount{},
		&model.BillingRecord{},
		&model.CommissionAccount{},
		&model.CommissionRecord{},
		&model.CommissionSettlement{},
		&model.CommissionSettlementRecord{},
		&model.AgentUser{},
		&model.PriceConfig{},
		&model.OutboxMessage{},
	))

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Commission: config.CommissionConfig{
			Level1Rate:       0.30,
			Level2Rate:       0.20,
			Level3Rate:       0.10,
			MaxHierarchyHops: 20,
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				RechargeResult:   "dr.recharge.result",
				SettlementResult: "dr.settlement.result",
			},
		},
	}
}

// fakeHierarchy 测试用代理层级，直接用 map 描述上级指针和层级
type fakeHierarchy struct {
	parents map[int64]int64
	levels  map[int64]model.AgentLevel
}

func (f *fakeHierarchy) ParentOf(_ context.Context, userID int64) (int64, error) {
	return f.parents[userID], nil
}

func (f *fakeHierarchy) ResolveAgentLevel(_ context.Context, userID int64) (model.AgentLevel, error) {
	return f.levels[userID], nil
}

func newBalanceService(t *testing.T, db *gorm.DB, hierarchy *fakeHierarchy) *BalanceService {
	t.Helper()
	if hierarchy == nil {
		hierarchy = &fakeHierarchy{}
	}
	cfg := newTestConfig()
	commissionSvc := NewCommissionService(db, zap.NewNop(), cfg, hierarchy)
	return NewBalanceService(db, zap.NewNop(), cfg, commissionSvc)
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func requireDecimalEqual(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, mustDecimal(t, expected).Equal(actual),
		"expected %s, got %s", expected, actual.String())
}
