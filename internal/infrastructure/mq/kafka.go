package mq

import (
	"context"
	"fmt"

	"ledger/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher 消息投递，outbox 发送任务依赖它
type Publisher interface {
	Publish(ctx context.Context, topic, key, value string) error
	Close() error
}

// Producer 基于 sarama 同步生产者的 Publisher
type Producer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

// NewKafkaConfig 生产者配置：等待所有副本确认
func NewKafkaConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产者要求
	kafkaConfig.Version = sarama.V2_1_0_0
	return kafkaConfig
}

// NewProducer 连接 Kafka 创建生产者
func NewProducer(cfg *config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return NewProducerFrom(producer, logger), nil
}

// NewProducerFrom 包装已有的 SyncProducer，测试中传入 mocks.SyncProducer
func NewProducerFrom(producer sarama.SyncProducer, logger *zap.Logger) *Producer {
	return &Producer{producer: producer, logger: logger}
}

// Publish 发送消息到 Kafka
func (p *Producer) Publish(ctx context.Context, topic, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到 %s 失败: %w", topic, err)
	}
	p.logger.Debug("消息已发送", zap.String("topic", topic), zap.String("key", key),
		zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

// Close 关闭 Kafka 生产者
func (p *Producer) Close() error {
	return p.producer.Close()
}
