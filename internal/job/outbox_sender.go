package job

import (
	"context"
	"time"

	"ledger/internal/infrastructure/mq"
	"ledger/internal/model"
	"ledger/internal/repository"

	"go.uber.org/zap"
)

// OutboxSender 把 outbox 中的待发送消息投递到 Kafka
//
// 至少一次语义：发送成功但标记 SENT 失败时，下一轮会重复投递，消费方按 Reference 去重。
type OutboxSender struct {
	outbox        repository.OutboxStore
	publisher     mq.Publisher
	logger        *zap.Logger
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(outbox repository.OutboxStore, publisher mq.Publisher, interval time.Duration, batchSize, maxRetryCount int, logger *zap.Logger) *OutboxSender {
	return &OutboxSender{
		outbox:        outbox,
		publisher:     publisher,
		logger:        logger,
		interval:      interval,
		batchSize:     batchSize,
		maxRetryCount: maxRetryCount,
	}
}

// Start 阻塞运行直到 ctx 取消
func (s *OutboxSender) Start(ctx context.Context) error {
	s.logger.Info("消息发送任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return nil
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 处理一批待发送消息，返回发送成功的条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outbox.GetPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outbox.MarkSent(ctx, msg.ID); updateErr != nil {
			s.logger.Error("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
		} else {
			s.logger.Debug("消息发送成功", zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey))
		}
		return true
	}

	s.logger.Warn("消息发送失败", zap.Int64("id", msg.ID), zap.Int("retry_count", msg.RetryCount), zap.Error(err))

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("标记消息失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		} else {
			s.logger.Warn("消息超过最大重试次数，标记为失败", zap.Int64("id", msg.ID))
		}
	}
	return false
}
