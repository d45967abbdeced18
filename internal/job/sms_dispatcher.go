package job

import (
	"context"
	"fmt"

	"drledger/internal/service"
	"drledger/pkg/idgen"

	"go.uber.org/zap"
)

// SmsSender 短信网关，由外部系统实现
type SmsSender interface {
	Send(ctx context.Context, phone, content string) (messageID string, err error)
}

// LogSmsSender 仅打日志的发送实现，未接入真实网关时使用
type LogSmsSender struct {
	logger *zap.Logger
}

func NewLogSmsSender(logger *zap.Logger) *LogSmsSender {
	return &LogSmsSender{logger: logger}
}

func (s *LogSmsSender) Send(ctx context.Context, phone, content string) (string, error) {
	messageID := idgen.GenerateBillNo()
	s.logger.Info("模拟发送短信",
		zap.String("phone", phone),
		zap.String("message_id", messageID),
	)
	return messageID, nil
}

// SmsTask 一条待发送短信
type SmsTask struct {
	UserID  int64
	Phone   string
	Content string
}

// SmsDispatcher 短信发送队列
//
// 单消费者逐条取出发送，发送成功后按 SMS 业务类型对发起用户计费一条。
// 队列的作用只是串行化外发请求；账务本身的并发安全不依赖这里
type SmsDispatcher struct {
	logger     *zap.Logger
	sender     SmsSender
	balanceSvc *service.BalanceService
	queue      chan SmsTask
}

func NewSmsDispatcher(logger *zap.Logger, sender SmsSender, balanceSvc *service.BalanceService, queueSize int) *SmsDispatcher {
	return &SmsDispatcher{
		logger:     logger,
		sender:     sender,
		balanceSvc: balanceSvc,
		queue:      make(chan SmsTask, queueSize),
	}
}

// Enqueue 投递一条短信任务，队列满时返回错误而不是阻塞调用方
func (d *SmsDispatcher) Enqueue(task SmsTask) error {
	select {
	case d.queue <- task:
		return nil
	default:
		return fmt.Errorf("短信队列已满")
	}
}

func (d *SmsDispatcher) Start(ctx context.Context) {
	d.logger.Info("短信发送任务启动")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("收到停止信号，短信发送任务退出")
			return
		case task := <-d.queue:
			d.dispatch(ctx, task)
		}
	}
}

func (d *SmsDispatcher) dispatch(ctx context.Context, task SmsTask) {
	messageID, err := d.sender.Send(ctx, task.Phone, task.Content)
	if err != nil {
		d.logger.Error("短信发送失败",
			zap.Int64("user_id", task.UserID),
			zap.String("phone", task.Phone),
			zap.Error(err),
		)
		return
	}

	// 发送成功才计费，一条短信一次消费
	if _, err := d.balanceSvc.ConsumeForBusiness(ctx, task.UserID, "SMS", messageID, 1, 0); err != nil {
		d.logger.Error("短信计费失败",
			zap.Int64("user_id", task.UserID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("短信发送并计费成功",
		zap.Int64("user_id", task.UserID),
		zap.String("message_id", messageID),
		zap.Int("queue_len", len(d.queue)),
	)
}
