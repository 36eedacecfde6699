package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/microbet-engine-poc/internal/microbet/pubsub"
	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de liquidações e repassa para o
// hub. Permite escalar o serviço horizontalmente: qualquer instância
// recebe o broadcast via Redis, não só a que liquidou.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, hub *Hub) {
	sub := r.Subscribe(ctx, pubsub.ChannelSettlementBroadcast)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				var e events.BetSettled
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					log.Printf("ws subscriber unmarshal error: %v", err)
					continue
				}
				hub.Broadcast(e)
			}
		}
	}()
}
