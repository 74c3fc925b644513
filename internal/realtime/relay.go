package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"villagewalks/backend/internal/domain/reservation"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel carrying reservation updates between
// API instances.
const DefaultChannel = "village-updates"

// RedisBroadcaster publishes updates to Redis so every instance's hub sees
// them, including the publishing one through its Relay.
type RedisBroadcaster struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBroadcaster(rdb *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, r reservation.Reservation) error {
	data, err := EncodeUpdate(r)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}
	return nil
}

// Relay feeds updates received from Redis into the local hub.
type Relay struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	log     *zap.Logger
}

func NewRelay(rdb *redis.Client, hub *Hub, channel string, log *zap.Logger) *Relay {
	return &Relay{rdb: rdb, hub: hub, channel: channel, log: log}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.log.Info("relay listening", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward([]byte(msg.Payload))
		}
	}
}

func (r *Relay) forward(data []byte) {
	var out Outbound
	if err := json.Unmarshal(data, &out); err != nil || out.Reservation == nil {
		r.log.Warn("relay: dropping malformed update")
		return
	}
	r.hub.Deliver(out.Reservation.Village, data)
}
