package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const ChannelSettlementBroadcast = "settlement_broadcast"

// RedisBroadcaster repassa liquidações para o canal Pub/Sub consumido
// pelo hub WebSocket.
type RedisBroadcaster struct {
	r *redis.Client
}

func NewRedisBroadcaster(r *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.r.Publish(ctx, channel, payload).Err()
}
