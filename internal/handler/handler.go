package handler

import (
	"errors"
	"strconv"

	"drledger/internal/config"
	"drledger/internal/repository"
	"drledger/internal/service"
	"drledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	balanceService    *service.BalanceService
	commissionService *service.CommissionService
	settlementService *service.SettlementService
	queryService      *service.QueryService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, logger *zap.Logger, cfg *config.Config) *Handler {
	commissionService := service.NewCommissionService(db, logger, cfg, repository.NewAgentRepository(db))
	return &Handler{
		balanceService:    service.NewBalanceService(db, logger, cfg, commissionService),
		commissionService: commissionService,
		settlementService: service.NewSettlementService(db, rdb, logger, cfg),
		queryService:      service.NewQueryService(db),
	}
}

// writeServiceError 把账务错误翻译为业务码
// 乐观锁冲突返回可重试的业务码，由调用方决定是否整体重做
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserRequired), errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance), errors.Is(err, service.ErrInsufficientFrozen):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrInsufficientCommission):
		response.BusinessError(c, response.CodeInsufficientCommission, err.Error())
	case errors.Is(err, service.ErrAccountDisabled), errors.Is(err, service.ErrCommissionAccountDisabled):
		response.BusinessError(c, response.CodeAccountDisabled, err.Error())
	case errors.Is(err, service.ErrSettlementNotPending), errors.Is(err, service.ErrApprovedExceedsRequest):
		response.BusinessError(c, response.CodeSettlementStateInvalid, err.Error())
	case errors.Is(err, service.ErrPriceConfigUnavailable):
		response.BusinessError(c, response.CodePriceConfigUnavailable, err.Error())
	case errors.Is(err, repository.ErrOptimisticLock):
		response.BusinessError(c, response.CodeConcurrencyConflict, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func parseAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		response.ParamError(c, "amount 参数错误: "+err.Error())
		return decimal.Zero, false
	}
	return amount, true
}

// ============================================================
// 余额相关接口
// ============================================================

// GetBalanceAccount 查询余额账户
// GET /api/v1/balance/account?user_id=xxx
func (h *Handler) GetBalanceAccount(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	account, err := h.balanceService.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, account)
}

// RechargeRequest 充值请求
type RechargeRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	OperatorID int64  `json:"operator_id"`
}

// Recharge 充值（入账并触发返佣）
// POST /api/v1/balance/recharge
func (h *Handler) Recharge(c *gin.Context) {
	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	account, bill, err := h.balanceService.Recharge(c.Request.Context(), req.UserID, amount, req.OperatorID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"bill_no":      bill.BillNo,
		"base_balance": account.BaseBalance,
	})
}

// ConsumeRequest 消费请求
type ConsumeRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	BusinessType string `json:"business_type" binding:"required"`
	BusinessID   string `json:"business_id"`
	BillingType  string `json:"billing_type"`
	OperatorID   int64  `json:"operator_id"`
	Description  string `json:"description"`
}

// Consume 消费扣款
// POST /api/v1/balance/consume
func (h *Handler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	bill, err := h.balanceService.Consume(c.Request.Context(), &service.ConsumeRequest{
		UserID:       req.UserID,
		Amount:       amount,
		BusinessType: req.BusinessType,
		BusinessID:   req.BusinessID,
		BillingType:  req.BillingType,
		OperatorID:   req.OperatorID,
		Description:  req.Description,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"bill_no":       bill.BillNo,
		"balance_after": bill.BalanceAfter,
	})
}

// ConsumeForBusinessRequest 按业务类型计费消费请求
type ConsumeForBusinessRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	BusinessType string `json:"business_type" binding:"required"`
	BusinessID   string `json:"business_id"`
	Quantity     int64  `json:"quantity" binding:"required,gt=0"`
	OperatorID   int64  `json:"operator_id"`
}

// ConsumeForBusiness 按业务类型计费消费
// POST /api/v1/balance/consume-business
func (h *Handler) ConsumeForBusiness(c *gin.Context) {
	var req ConsumeForBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	bill, err := h.balanceService.ConsumeForBusiness(c.Request.Context(), req.UserID, req.BusinessType, req.BusinessID, req.Quantity, req.OperatorID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"bill_no":       bill.BillNo,
		"amount":        bill.Amount,
		"balance_after": bill.BalanceAfter,
	})
}

// PreDeductRequest 预扣/释放请求
type PreDeductRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	OperatorID int64  `json:"operator_id"`
}

// PreDeduct 实例创建预扣
// POST /api/v1/balance/pre-deduct
func (h *Handler) PreDeduct(c *gin.Context) {
	var req PreDeductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	if err := h.balanceService.PreDeductForInstance(c.Request.Context(), req.UserID, amount, req.OperatorID); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "预扣成功"})
}

// ReleasePreDeduct 预扣释放
// POST /api/v1/balance/release-pre-deduct
func (h *Handler) ReleasePreDeduct(c *gin.Context) {
	var req PreDeductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	if err := h.balanceService.ReleasePreDeduct(c.Request.Context(), req.UserID, amount, req.OperatorID); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "预扣已释放"})
}

// RefundRequest 退款请求
type RefundRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	BusinessType string `json:"business_type" binding:"required"`
	BusinessID   string `json:"business_id"`
	OperatorID   int64  `json:"operator_id"`
	Description  string `json:"description"`
}

// Refund 退款入账
// POST /api/v1/balance/refund
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	bill, err := h.balanceService.Refund(c.Request.Context(), req.UserID, amount, req.BusinessType, req.BusinessID, req.OperatorID, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"bill_no":       bill.BillNo,
		"balance_after": bill.BalanceAfter,
	})
}

// AdjustRequest 人工调整请求
type AdjustRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	OperatorID int64  `json:"operator_id" binding:"required"`
	Remark     string `json:"remark"`
}

// Adjust 人工调整余额
// POST /api/v1/balance/adjust
func (h *Handler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	account, bill, applied, err := h.balanceService.ManualAdjustBalance(c.Request.Context(), req.UserID, amount, req.OperatorID, req.Remark)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"bill_no":        bill.BillNo,
		"applied_change": applied,
		"base_balance":   account.BaseBalance,
	})
}

// FreezeRequest 冻结/解冻请求
type FreezeRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	OperatorID int64  `json:"operator_id"`
}

// Freeze 冻结余额
// POST /api/v1/balance/freeze
func (h *Handler) Freeze(c *gin.Context) {
	var req FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	if err := h.balanceService.FreezeBalance(c.Request.Context(), req.UserID, amount, req.OperatorID); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "冻结成功"})
}

// Unfreeze 解冻余额
// POST /api/v1/balance/unfreeze
func (h *Handler) Unfreeze(c *gin.Context) {
	var req FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	if err := h.balanceService.UnfreezeBalance(c.Request.Context(), req.UserID, amount, req.OperatorID); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "解冻成功"})
}

// CheckBalance 只读余额充足性判断
// GET /api/v1/balance/check?user_id=xxx&amount=xxx
func (h *Handler) CheckBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	amount, ok := parseAmount(c, c.Query("amount"))
	if !ok {
		return
	}

	sufficient, err := h.balanceService.CheckBalanceSufficient(c.Request.Context(), userID, amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"sufficient": sufficient})
}

// ListBillingRecords 查询账单流水
// GET /api/v1/billing/records?user_id=xxx&bill_type=&business_type=&page=1&page_size=10
func (h *Handler) ListBillingRecords(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.balanceService.GetBillingRecords(c.Request.Context(), userID, &repository.BillingRecordFilter{
		BillType:     c.Query("bill_type"),
		BusinessType: c.Query("business_type"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 佣金相关接口
// ============================================================

// GetCommissionAccount 查询佣金账户
// GET /api/v1/commission/account?agent_user_id=xxx
func (h *Handler) GetCommissionAccount(c *gin.Context) {
	agentUserID, err := strconv.ParseInt(c.Query("agent_user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "agent_user_id 参数错误")
		return
	}

	account, err := h.queryService.GetCommissionAccount(c.Request.Context(), agentUserID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, account)
}

// ListCommissionRecords 查询佣金流水
// GET /api/v1/commission/records?agent_user_id=xxx&business_type=&direction=&page=1&page_size=10
func (h *Handler) ListCommissionRecords(c *gin.Context) {
	agentUserID, err := strconv.ParseInt(c.Query("agent_user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "agent_user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.queryService.GetCommissionRecords(c.Request.Context(), agentUserID, &repository.CommissionRecordFilter{
		BusinessType: c.Query("business_type"),
		Direction:    c.Query("direction"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetCommissionOverview 代理团队佣金概览
// GET /api/v1/commission/overview?user_id=xxx
func (h *Handler) GetCommissionOverview(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	overview, err := h.queryService.GetAgentCommissionOverview(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, overview)
}

// ============================================================
// 结算相关接口
// ============================================================

// ApplySettlementRequest 结算申请
type ApplySettlementRequest struct {
	AgentUserID int64  `json:"agent_user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	OperatorID  int64  `json:"operator_id"`
	Network     string `json:"network" binding:"required"`
	Address     string `json:"address" binding:"required"`
	Remark      string `json:"remark"`
}

// ApplySettlement 代理发起结算申请
// POST /api/v1/settlement/apply
func (h *Handler) ApplySettlement(c *gin.Context) {
	var req ApplySettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	settlement, err := h.settlementService.ApplySettlement(c.Request.Context(), req.AgentUserID, amount, req.OperatorID, req.Network, req.Address, req.Remark)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, settlement)
}

// ApproveSettlementRequest 结算核准
type ApproveSettlementRequest struct {
	SettlementID   int64  `json:"settlement_id" binding:"required"`
	ApprovedAmount string `json:"approved_amount" binding:"required"`
	OperatorID     int64  `json:"operator_id" binding:"required"`
	Remark         string `json:"remark"`
}

// ApproveSettlement 运营核准结算
// POST /api/v1/settlement/approve
func (h *Handler) ApproveSettlement(c *gin.Context) {
	var req ApproveSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, ok := parseAmount(c, req.ApprovedAmount)
	if !ok {
		return
	}

	settlement, err := h.settlementService.ApproveSettlement(c.Request.Context(), req.SettlementID, amount, req.OperatorID, req.Remark)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, settlement)
}

// RejectSettlementRequest 结算驳回
type RejectSettlementRequest struct {
	SettlementID int64  `json:"settlement_id" binding:"required"`
	OperatorID   int64  `json:"operator_id" binding:"required"`
	Remark       string `json:"remark"`
}

// RejectSettlement 运营驳回结算
// POST /api/v1/settlement/reject
func (h *Handler) RejectSettlement(c *gin.Context) {
	var req RejectSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	settlement, err := h.settlementService.RejectSettlement(c.Request.Context(), req.SettlementID, req.OperatorID, req.Remark)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, settlement)
}

// ListSettlements 查询结算单列表
// GET /api/v1/settlement/list?agent_user_id=xxx&page=1&page_size=10
func (h *Handler) ListSettlements(c *gin.Context) {
	agentUserID, err := strconv.ParseInt(c.Query("agent_user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "agent_user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	settlements, total, err := h.queryService.ListSettlements(c.Request.Context(), agentUserID, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      settlements,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetSettledSum 平台已结算佣金总额
// GET /api/v1/settlement/settled-sum
func (h *Handler) GetSettledSum(c *gin.Context) {
	sum, err := h.queryService.SumSettledCommission(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"settled_sum": sum})
}
