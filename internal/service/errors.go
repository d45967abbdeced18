package service

import "errors"

// 账务操作的业务错误
// 全部为同步返回的终态错误，服务内部不做任何重试；
// 乐观锁冲突复用 repository.ErrOptimisticLock，由调用方决定是否整体重做
var (
	ErrUserRequired              = errors.New("用户ID不能为空")
	ErrInvalidAmount             = errors.New("金额参数非法")
	ErrAccountDisabled           = errors.New("账户状态异常，禁止操作")
	ErrCommissionAccountDisabled = errors.New("佣金账户状态异常，禁止操作")
	ErrInsufficientBalance       = errors.New("余额不足")
	ErrInsufficientFrozen        = errors.New("冻结金额不足")
	ErrInsufficientCommission    = errors.New("可提佣金不足")
	ErrSettlementNotPending      = errors.New("结算单不是待审批状态")
	ErrApprovedExceedsRequest    = errors.New("核准金额不能超过申请金额")
	ErrPriceConfigUnavailable    = errors.New("计费价格配置缺失或已停用")
)
