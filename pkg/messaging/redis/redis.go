package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/pkg/circuitbreaker"
	"github.com/jwalitptl/scheduler-api/pkg/messaging"
)

type RedisBroker struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	logger zerolog.Logger
}

type Config struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

// NewRedisBroker connects to cfg.URL and verifies the connection.
func NewRedisBroker(ctx context.Context, cfg Config, logger zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.RetryBackoff
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-broker",
			MaxRequests: 5,
			Timeout:     30 * time.Second,
		}),
		logger: logger.With().Str("component", "redis-broker").Logger(),
	}
}

var _ messaging.Broker = (*RedisBroker)(nil)

func (b *RedisBroker) Publish(ctx context.Context, channel string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	msgChan := make(chan []byte, 100)
	go func() {
		defer func() {
			pubsub.Close()
			close(msgChan)
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case msgChan <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return msgChan, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
