/*
 * @module service/notification/kafka_notifier
 * @description Kafka运行完成通知器，校验运行终结后向消息总线发布事件供下游消费
 * @architecture 分层架构 - 集成层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 运行完成 -> 构造事件 -> 写入Kafka主题
 * @rules 事件key为运行ID，保证同一运行的事件落在同一分区
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/scheduler/validation_scheduler.go, api/controllers/validation_controller.go
 */

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"vms-validation-service/service/models"
)

const defaultTopic = "validation-run-events"

// RunCompletedEvent 运行完成事件载荷
type RunCompletedEvent struct {
	RunID          string     `json:"run_id"`
	RunType        string     `json:"run_type"`
	Status         string     `json:"status"`
	TotalChecks    int        `json:"total_checks"`
	PassedChecks   int        `json:"passed_checks"`
	FailedChecks   int        `json:"failed_checks"`
	WarningCount   int        `json:"warning_count"`
	ErrorCount     int        `json:"error_count"`
	CriticalIssues int        `json:"critical_issues"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	EmittedAt      time.Time  `json:"emitted_at"`
}

// KafkaNotifier Kafka运行完成通知器
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaNotifier 创建通知器，brokers 来自 KAFKA_BROKERS 环境变量(逗号分隔)
// 未配置时返回 nil，调度和API层按无通知器处理
func NewKafkaNotifier() *KafkaNotifier {
	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		slog.Info("未配置KAFKA_BROKERS，运行完成通知已禁用")
		return nil
	}
	brokers := strings.Split(brokersEnv, ",")

	topic := os.Getenv("KAFKA_VALIDATION_TOPIC")
	if topic == "" {
		topic = defaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}

	slog.Info("Kafka运行完成通知器初始化成功", "brokers", brokers, "topic", topic)
	return &KafkaNotifier{writer: writer, topic: topic}
}

// NotifyRunCompleted 发布运行完成事件
func (n *KafkaNotifier) NotifyRunCompleted(ctx context.Context, run *models.ValidationRun) error {
	event := RunCompletedEvent{
		RunID:          run.ID,
		RunType:        run.RunType,
		Status:         run.Status,
		TotalChecks:    run.TotalChecks,
		PassedChecks:   run.PassedChecks,
		FailedChecks:   run.FailedChecks,
		WarningCount:   run.WarningCount,
		ErrorCount:     run.ErrorCount,
		CriticalIssues: run.CriticalIssues,
		CompletedAt:    run.CompletedAt,
		EmittedAt:      time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化运行完成事件失败: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(run.ID),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("写入Kafka失败: %w", err)
	}

	slog.Debug("运行完成事件已发布", "run_id", run.ID, "topic", n.topic)
	return nil
}

// Close 关闭底层writer
func (n *KafkaNotifier) Close() error {
	if n.writer != nil {
		return n.writer.Close()
	}
	return nil
}
