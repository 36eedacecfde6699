package ratelimit

import (
	"sync"
	"time"
)

// bucket acumula tokens fracionários; refill é lazy, calculado na
// consulta a partir do último acesso.
type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter é um token-bucket por usuário para limitar a frequência de
// apostas. Negação não muda estado nenhum além do próprio bucket.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	refill   float64 // tokens por segundo

	now func() time.Time // injetável para teste
}

func New(capacity int, refillPerSec float64) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*bucket),
		capacity: float64(capacity),
		refill:   refillPerSec,
		now:      time.Now,
	}
}

// SetClock troca a fonte de tempo (testes).
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// TryConsume tenta consumir um token do usuário. Bucket novo nasce cheio.
func (l *Limiter) TryConsume(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[userID] = b
	} else {
		elapsed := now.Sub(b.last).Seconds()
		if elapsed > 0 {
			b.tokens += elapsed * l.refill
			if b.tokens > l.capacity {
				b.tokens = l.capacity
			}
			b.last = now
		}
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
