package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is one outbound frame addressed to a room or to every socket.
// Exclude names a connection that must not receive it.
type Envelope struct {
	Room    int64           `json:"room,omitempty"`
	All     bool            `json:"all,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Broker fans envelopes out to every node's hub, the publishing node included.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(deliver func(Envelope))
}

// LocalBroker delivers synchronously inside the process.
type LocalBroker struct {
	mu      sync.RWMutex
	deliver func(Envelope)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Subscribe(deliver func(Envelope)) {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver != nil {
		deliver(env)
	}
	return nil
}

const redisChannel = "chatterbox:events"

// RedisBroker relays envelopes over Redis pub/sub so that sockets held by
// other processes receive them too.
type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	mu      sync.RWMutex
	deliver func(Envelope)
}

func NewRedisBroker(ctx context.Context, url string, logger *zap.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBroker{client: c, channel: redisChannel, logger: logger.Named("broker")}, nil
}

func (b *RedisBroker) Subscribe(deliver func(Envelope)) {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Run consumes the channel until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe: %w", err)
	}
	b.logger.Info("subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis: subscription closed")
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed envelope", zap.Error(err))
				continue
			}
			b.mu.RLock()
			deliver := b.deliver
			b.mu.RUnlock()
			if deliver != nil {
				deliver(env)
			}
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
