// Package redis publishes notification activations to a Redis stream so
// other services (dashboards, the WebSocket gateway) can observe them.
// The whole package is optional at runtime.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Qolorerr/Athena/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	activationStream = "athena:activations"
	streamMaxLen     = 10000
	publishTimeout   = 5 * time.Second

	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
)

// Config configures the activation publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes activation events to a capped Redis stream. It
// implements model.EventSink.
type Publisher struct {
	client  *goredis.Client
	breaker *breaker
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	b := newBreaker(breakerMaxFailures, breakerResetTimeout)
	b.onStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, breaker: b}, nil
}

type activationEvent struct {
	ID       int64  `json:"id"`
	ChatID   int64  `json:"chat_id"`
	Rule     string `json:"rule"`
	Compiled string `json:"compiled"`
	At       int64  `json:"at"`
}

// PublishActivation appends the event to the activation stream. Delivery is
// asynchronous and best-effort; the caller never blocks on Redis.
func (p *Publisher) PublishActivation(ctx context.Context, n model.Notification) {
	event := activationEvent{
		ID:       n.ID,
		ChatID:   n.ChatID,
		Rule:     n.Origin,
		Compiled: n.Compiled,
		At:       time.Now().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[redis] marshal activation %d: %v", n.ID, err)
		return
	}

	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		err := p.breaker.execute(func() error {
			return p.client.XAdd(publishCtx, &goredis.XAddArgs{
				Stream: activationStream,
				MaxLen: streamMaxLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(data)},
			}).Err()
		})
		if err != nil && err != ErrCircuitOpen {
			log.Printf("[redis] publish activation %d: %v", n.ID, err)
		}
	}()
}

// BreakerState reports the circuit breaker state for health reporting.
func (p *Publisher) BreakerState() State {
	return p.breaker.currentState()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
