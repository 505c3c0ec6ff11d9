package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier delivers a summary to reviewers.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
	Close() error
}

// Config selects the review transport.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	Transport string        `mapstructure:"transport"`
	RedisURL  string        `mapstructure:"redis-url"`
	Channel   string        `mapstructure:"channel"`
	AMQPURL   string        `mapstructure:"amqp-url"`
	Queue     string        `mapstructure:"queue"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

const (
	TransportRedis = "redis"
	TransportAMQP  = "amqp"

	defaultChannel = "cv-screener.reviews"
	DefaultTimeout = 10 * time.Second
)

// Open returns the configured notifier, or nil when review delivery is disabled.
func Open(cfg Config) (Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, errors.New("review.redis-url is required for the redis transport")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedisNotifier(redis.NewClient(opts), cfg.Channel), nil
	case TransportAMQP:
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return nil, errors.New("review.amqp-url is required for the amqp transport")
		}
		n, err := DialAMQP(cfg.AMQPURL, cfg.Queue)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown review transport %q", cfg.Transport)
	}
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisNotifier publishes summaries as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  publisher
	channel string
}

func NewRedisNotifier(client publisher, channel string) *RedisNotifier {
	if strings.TrimSpace(channel) == "" {
		channel = defaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, s Summary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}

func (n *RedisNotifier) Close() error { return n.client.Close() }

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes summaries to a durable queue.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
}

// DialAMQP connects and declares the queue.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	if strings.TrimSpace(queue) == "" {
		queue = defaultChannel
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &AMQPNotifier{conn: conn, channel: ch, queue: q.Name}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, s Summary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	err = n.channel.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    s.Ref,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.queue, err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	var errs []error
	if n.channel != nil {
		errs = append(errs, n.channel.Close())
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	return errors.Join(errs...)
}

// Dispatch delivers s in the background. Failures are logged and otherwise
// ignored. The returned channel is closed when delivery finished.
func Dispatch(ctx context.Context, logger *zap.Logger, n Notifier, s Summary, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if n == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("review notifier panicked", zap.Any("panic", r), zap.String("ref", s.Ref))
			}
		}()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := n.Notify(sendCtx, s); err != nil {
			logger.Warn("review summary not delivered", zap.String("ref", s.Ref), zap.Error(err))
			return
		}
		logger.Debug("review summary delivered", zap.String("ref", s.Ref))
	}()

	return done
}
