package mq

import (
	"encoding/json"
	"fmt"

	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// 系统使用的队列
const (
	QueueScanDispatch = "docvault.scan.dispatch" // 新文件等待送检
	QueueScanResult   = "docvault.scan.result"   // 扫描引擎回传结果
	QueueBlobCleanup  = "docvault.blob.cleanup"  // 文档删除后的存储对象清理
)

// Envelope 队列消息信封，payload 带 schema 版本号便于滚动升级
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

const CurrentSchemaVersion = 1

// RabbitMQClient 封装了 RabbitMQ 的连接和通道
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQClient 创建一个新的 RabbitMQ 客户端实例
func NewRabbitMQClient(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
	}, nil
}

// DeclareQueue 声明一个队列
func (c *RabbitMQClient) DeclareQueue(queueName string) (amqp.Queue, error) {
	return c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
}

// Publish 发布消息到指定队列
func (c *RabbitMQClient) Publish(queueName string, body []byte) error {
	if c == nil || c.channel == nil {
		return fmt.Errorf("rabbitmq channel not initialized")
	}
	return c.channel.Publish(
		"",        // exchange (default)
		queueName, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// PublishJSON 将 payload 包进带版本号的信封后发布
func (c *RabbitMQClient) PublishJSON(queueName string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	body, err := json.Marshal(Envelope{
		SchemaVersion: CurrentSchemaVersion,
		Payload:       raw,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return c.Publish(queueName, body)
}

// Consume 消费指定队列的消息，handler 负责手动 ack
func (c *RabbitMQClient) Consume(queueName string, handler func(msg amqp.Delivery)) error {
	msgs, err := c.channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack (we will manually ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			handler(msg)
		}
	}()

	logger.Info("Waiting for messages on queue", zap.String("queue", queueName))
	return nil
}

// DecodeEnvelope 解出信封里的 payload，版本不兼容时报错
func DecodeEnvelope(body []byte, target any) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %d", env.SchemaVersion)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// Close 关闭通道和连接
func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
