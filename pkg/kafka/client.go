// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/tasks"
)

// maxAttempts 是基础设施错误下同一任务的最大尝试次数。
const maxAttempts = 3

// retryBackoff 是两次尝试之间的基础等待时间，按尝试次数线性增长。
var retryBackoff = 2 * time.Second

// TaskProcessor defines the interface for any service that can process a task.
// 返回 nil 表示任务已到达终态（processed / failed 已记录在文档上）；返回错误表示可重试的基础设施故障。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIndexTask) error
}

// RetryCounter 记录任务的失败次数，跨进程重启保留。
type RetryCounter interface {
	IncrRetry(ctx context.Context, documentID string) (int64, error)
	ClearRetry(ctx context.Context, documentID string) error
}

// Producer 发送文档索引任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIndexTask 发送一个文档索引任务，以文档 id 为 key 保证同一文档的任务有序。
func (p *Producer) ProduceIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 顺序消费文档索引任务。
type Consumer struct {
	reader    *kafka.Reader
	processor TaskProcessor
	retries   RetryCounter
}

// NewConsumer 创建一个 Kafka 消费者。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, retries RetryCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, retries: retries}
}

// Run 持续拉取并处理消息，直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if c.handle(ctx, m.Value) {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// handle 处理一条消息并返回是否应提交 offset。
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var task tasks.DocumentIndexTask
	if err := json.Unmarshal(value, &task); err != nil || task.DocumentID == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("开始处理文档索引任务: DocumentID=%s", task.DocumentID)
	// 未提交的消息不会在同一会话内重新投递，重试只能在这里完成
	var attempts int64
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("文档索引任务已结束: DocumentID=%s", task.DocumentID)
			_ = c.retries.ClearRetry(ctx, task.DocumentID)
			return true
		}
		if ctx.Err() != nil {
			// 停机中断，不提交，重启后重新消费
			return false
		}
		attempts++
		// 进程重启前累计的失败次数同样计入上限
		if n, incErr := c.retries.IncrRetry(ctx, task.DocumentID); incErr == nil && n > attempts {
			attempts = n
		}
		log.Errorf("处理文档索引任务失败(第 %d 次): DocumentID=%s, Error: %v", attempts, task.DocumentID, err)
		if attempts >= maxAttempts {
			log.Errorf("文档索引任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", maxAttempts, task.DocumentID)
			_ = c.retries.ClearRetry(ctx, task.DocumentID)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryBackoff * time.Duration(attempts)):
		}
	}
}
