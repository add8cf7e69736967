/*
 * @module service/realtime/mqtt_trigger
 * @description MQTT实时校验触发器，订阅同步完成主题，收到消息后对指定实体类型发起实时校验
 * @architecture 分层架构 - 集成层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 订阅主题 -> 收到同步完成消息 -> 解析实体类型 -> 发起实时校验运行
 * @rules 消息载荷解析失败只记日志；校验在独立goroutine中执行，不阻塞MQTT回调
 * @dependencies github.com/eclipse/paho.mqtt.golang, service/validation
 * @refs service/validation/engine.go, main.go
 */

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vms-validation-service/service/validation"
)

const defaultTriggerTopic = "vms/sync/completed"

// SyncCompletedMessage 同步完成消息载荷
type SyncCompletedMessage struct {
	EntityType string `json:"entity_type"`
	Source     string `json:"source"`
	SyncedAt   string `json:"synced_at"`
}

// MQTTTrigger MQTT实时校验触发器
type MQTTTrigger struct {
	client mqtt.Client
	engine *validation.Engine
	topic  string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewMQTTTrigger 创建触发器，broker 来自 MQTT_BROKER 环境变量
// 未配置时返回 nil，实时触发功能关闭
func NewMQTTTrigger(engine *validation.Engine) (*MQTTTrigger, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		slog.Info("未配置MQTT_BROKER，实时校验触发已禁用")
		return nil, nil
	}

	topic := os.Getenv("MQTT_TRIGGER_TOPIC")
	if topic == "" {
		topic = defaultTriggerTopic
	}

	hostname, _ := os.Hostname()
	ctx, cancel := context.WithCancel(context.Background())
	trigger := &MQTTTrigger{
		engine: engine,
		topic:  topic,
		ctx:    ctx,
		cancel: cancel,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("vms-validation-%s-%d", hostname, os.Getpid()))
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if token := client.Subscribe(topic, 1, trigger.onMessage); token.Wait() && token.Error() != nil {
			slog.Error("订阅触发主题失败", "topic", topic, "error", token.Error())
			return
		}
		slog.Info("实时校验触发器已订阅", "topic", topic)
	})

	trigger.client = mqtt.NewClient(opts)
	if token := trigger.client.Connect(); token.Wait() && token.Error() != nil {
		cancel()
		return nil, fmt.Errorf("MQTT连接失败: %v", token.Error())
	}

	slog.Info("MQTT实时校验触发器初始化成功", "broker", broker, "topic", topic)
	return trigger, nil
}

// onMessage 同步完成消息回调
func (t *MQTTTrigger) onMessage(_ mqtt.Client, message mqtt.Message) {
	var payload SyncCompletedMessage
	if err := json.Unmarshal(message.Payload(), &payload); err != nil {
		slog.Warn("触发消息解析失败", "topic", message.Topic(), "error", err)
		return
	}
	if payload.EntityType == "" {
		slog.Warn("触发消息缺少实体类型", "topic", message.Topic())
		return
	}

	slog.Info("收到同步完成消息，发起实时校验", "entity_type", payload.EntityType, "source", payload.Source)

	go func() {
		if _, err := t.engine.RunRealtime(t.ctx, payload.EntityType, "mqtt-trigger"); err != nil {
			slog.Error("实时校验运行失败", "entity_type", payload.EntityType, "error", err)
		}
	}()
}

// Close 断开MQTT连接
func (t *MQTTTrigger) Close() {
	if t == nil {
		return
	}
	t.cancel()
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
}
