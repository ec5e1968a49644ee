// Package notify propagates allowlist mutations to sync loops. Delivery is
// best effort: the sync manager polls on an interval regardless, so a lost
// notification only delays pickup until the next tick.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"allowgate/internal/gate/models"
)

// changeChannel is the pub/sub channel carrying allowlist mutations.
const changeChannel = "allowgate:allowlist_changes"

// subscribeBuffer bounds how many undelivered changes are held before
// drops; polling covers anything dropped.
const subscribeBuffer = 64

// RedisNotifier fans allowlist changes out across processes via Redis
// pub/sub, so a fleet of gate instances converges without waiting for the
// poll interval.
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

// RedisOption configures a RedisNotifier.
type RedisOption func(*RedisNotifier)

// WithLogger sets the logger for subscription errors.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(n *RedisNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewRedis constructs a Redis-backed change notifier.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisNotifier {
	n := &RedisNotifier{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Publish announces a mutation on the change channel.
func (n *RedisNotifier) Publish(ctx context.Context, change models.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := n.client.Publish(ctx, changeChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe returns a channel of mutations published by any process. The
// channel closes when ctx is cancelled.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	sub := n.client.Subscribe(ctx, changeChannel)
	// Force the subscription to be established before returning so callers
	// never miss changes published after Subscribe succeeds.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	out := make(chan models.Change, subscribeBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change models.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					n.logger.Warn("dropping malformed change notification", "error", err)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				default:
					// Buffer full; polling will pick the change up.
				}
			}
		}
	}()
	return out, nil
}
