package handler

import (
	"drledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, logger *zap.Logger, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, logger, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 余额账户
		balance := api.Group("/balance")
		{
			balance.GET("/account", h.GetBalanceAccount)
			balance.GET("/check", h.CheckBalance)
			balance.POST("/recharge", h.Recharge)
			balance.POST("/consume", h.Consume)
			balance.POST("/consume-business", h.ConsumeForBusiness)
			balance.POST("/pre-deduct", h.PreDeduct)
			balance.POST("/release-pre-deduct", h.ReleasePreDeduct)
			balance.POST("/refund", h.Refund)
			balance.POST("/adjust", h.Adjust)
			balance.POST("/freeze", h.Freeze)
			balance.POST("/unfreeze", h.Unfreeze)
		}

		// 账单流水
		billing := api.Group("/billing")
		{
			billing.GET("/records", h.ListBillingRecords)
		}

		// 佣金
		commission := api.Group("/commission")
		{
			commission.GET("/account", h.GetCommissionAccount)
			commission.GET("/records", h.ListCommissionRecords)
			commission.GET("/overview", h.GetCommissionOverview)
		}

		// 结算
		settlement := api.Group("/settlement")
		{
			settlement.POST("/apply", h.ApplySettlement)
			settlement.POST("/approve", h.ApproveSettlement)
			settlement.POST("/reject", h.RejectSettlement)
			settlement.GET("/list", h.ListSettlements)
			settlement.GET("/settled-sum", h.GetSettledSum)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
