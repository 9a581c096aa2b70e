package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Courier/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeSendRequested MessageType = "send.requested"
	MessageTypeSendCompleted MessageType = "send.completed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// SendRequestedPayload — запрос на исполнение send task.
type SendRequestedPayload struct {
	TaskID    uuid.UUID `json:"task_id"`
	AccountID string    `json:"account_id"`
}

// SendCompletedPayload — send task завершён.
type SendCompletedPayload struct {
	TaskID    uuid.UUID  `json:"task_id"`
	AccountID string     `json:"account_id"`
	BulkID    *uuid.UUID `json:"bulk_id,omitempty"`
	State     string     `json:"state"`
	Reason    string     `json:"reason"`
	Result    string     `json:"result,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// NewSendCompleted собирает payload из завершённого task.
func NewSendCompleted(task *domain.SendTask) SendCompletedPayload {
	return SendCompletedPayload{
		TaskID:    task.ID,
		AccountID: task.AccountID,
		BulkID:    task.BulkID,
		State:     string(task.State),
		Reason:    task.Reason.String(),
		Result:    string(task.Result),
		Detail:    task.Detail,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishSendRequested публикует запрос на исполнение send task.
// Потребитель: courier-worker.
func (p *Publisher) PublishSendRequested(ctx context.Context, taskID uuid.UUID, accountID string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeSendRequested,
		Payload:   SendRequestedPayload{TaskID: taskID, AccountID: accountID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeSends, RoutingKeyRequested, msg)
}

// PublishSendCompleted публикует событие о завершённом send task.
// Потребитель: courier-api.
func (p *Publisher) PublishSendCompleted(ctx context.Context, payload SendCompletedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeSendCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeSends, RoutingKeyCompleted, msg)
}
