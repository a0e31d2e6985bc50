package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRelayChannel is the pub/sub channel shared by all instances.
const DefaultRelayChannel = "openlab:invalidations"

type relayMessage struct {
	Source string        `json:"source"`
	Tables []types.Table `json:"tables"`
}

// RedisRelay shares invalidations between server instances that use the
// same store. Local invalidations are published; messages from other
// instances are applied without being published again.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	bus        *Bus
	logger     *zap.Logger
}

func NewRedisRelay(client *redis.Client, channel string, bus *Bus, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		bus:        bus,
		logger:     logger,
	}
}

func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// Run subscribes to the channel and relays until ctx is cancelled. It
// returns once the subscription is confirmed or fails.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	unhook := r.bus.OnInvalidate(r.publish)

	go func() {
		defer unhook()
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.apply(msg.Payload)
			}
		}
	}()

	r.logger.Info("Invalidation relay started",
		zap.String("channel", r.channel),
		zap.String("instance", r.instanceID))
	return nil
}

func (r *RedisRelay) publish(tables []types.Table) {
	payload, err := json.Marshal(relayMessage{Source: r.instanceID, Tables: tables})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("Failed to publish invalidation", zap.Error(err))
	}
}

func (r *RedisRelay) apply(payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("Invalid relay message", zap.Error(err))
		return
	}
	if msg.Source == r.instanceID {
		return
	}
	r.bus.InvalidateRemote(msg.Tables...)
}
