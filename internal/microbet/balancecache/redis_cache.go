package balancecache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/microbet-engine-poc/internal/ledger"
)

// RedisCache mantém o snapshot de saldo por usuário no Redis, renovado
// a cada mutação do ledger. Leitura barata para o gateway/UI; a fonte
// de verdade continua sendo o ledger + TransactionLog.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

func key(userID string) string { return "balance:" + userID }

// SetSnapshot grava o snapshot com TTL configurado.
func (r *RedisCache) SetSnapshot(ctx context.Context, s ledger.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key(s.UserID), b, r.TTL).Err()
}

// GetSnapshot lê o snapshot cacheado; redis.Nil quando ausente/expirado.
func (r *RedisCache) GetSnapshot(ctx context.Context, userID string) (ledger.Snapshot, error) {
	var s ledger.Snapshot
	b, err := r.Client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(b, &s)
	return s, err
}
