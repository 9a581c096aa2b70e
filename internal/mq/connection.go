package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected — канала нет: соединение ещё не восстановлено или закрыто.
var ErrNotConnected = errors.New("rabbitmq: not connected")

const (
	connectionName = "courier"
	heartbeat      = 10 * time.Second

	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
)

// Connection — соединение с брокером, общее для публикации
// send.requested/send.completed и consumer'ов очередей courier.sends.
//
// Один AMQP канал на процесс. После разрыва Connection сама
// переподключается; consumer'ы перезапускают подписку по ReconnectNotify,
// публикация между разрывом и восстановлением возвращает ErrNotConnected.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	done        chan struct{}
	reconnected chan struct{}
}

// NewConnection подключается к RabbitMQ по url.
// Если брокер недоступен при старте, возвращает ошибку: сервисы в этом
// случае работают без очереди, через polling.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:         url,
		logger:      logger.With("component", "rabbitmq"),
		done:        make(chan struct{}),
		reconnected: make(chan struct{}, 1),
	}

	conn, ch, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.swap(conn, ch)
	c.logger.Info("connected to RabbitMQ")

	go c.supervise(conn)
	return c, nil
}

func (c *Connection) dial() (*amqp.Connection, *amqp.Channel, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

func (c *Connection) swap(conn *amqp.Connection, ch *amqp.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.channel = ch
}

// supervise ждёт разрыва текущего соединения и восстанавливает его,
// пока Connection не закрыта.
func (c *Connection) supervise(conn *amqp.Connection) {
	for {
		lost := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.done:
			return
		case amqpErr, ok := <-lost:
			if ok && amqpErr != nil {
				c.logger.Warn("connection lost", "code", amqpErr.Code, "reason", amqpErr.Reason)
			}
		}

		c.swap(nil, nil)

		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next

		select {
		case c.reconnected <- struct{}{}:
		default:
		}
	}
}

// redial повторяет подключение с удвоением паузы до reconnectMaxDelay.
// Возвращает false, если Connection закрыли во время ожидания.
func (c *Connection) redial() (*amqp.Connection, bool) {
	delay := reconnectMinDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return nil, false
		case <-time.After(delay):
		}

		conn, ch, err := c.dial()
		if err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "next_delay", delay, "error", err)
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = ch.Close()
			_ = conn.Close()
			return nil, false
		}
		c.conn = conn
		c.channel = ch
		c.mu.Unlock()

		c.logger.Info("reconnected to RabbitMQ", "attempts", attempt)
		return conn, true
	}
}

// Channel возвращает текущий канал или nil, пока соединения нет.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигналит после каждого восстановления соединения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnected
}

// WithChannel вызывает fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}
	return fn(ch)
}

// IsConnected сообщает, открыто ли соединение сейчас.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close закрывает канал и соединение и останавливает переподключение.
// Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	var errs []error
	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	c.conn, c.channel = nil, nil

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("connection closed")
	return nil
}
