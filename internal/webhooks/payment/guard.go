package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/angelmondragon/stitchpay-backend/pkg/redis"
)

// Guard remembers the last status processed per transaction. It is a
// latency shortcut only; webhook_receipts is the durable dedup record.
type Guard interface {
	Seen(ctx context.Context, transactionID string, status enums.PaymentStatus) (bool, error)
	MarkSeen(ctx context.Context, transactionID string, status enums.PaymentStatus) error
}

// WebhookStore is the subset of the Redis client the guard needs.
type WebhookStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	WebhookKey(provider, transactionID string) string
}

// RedisGuard shares the dedup cache across API instances.
type RedisGuard struct {
	store    WebhookStore
	provider string
	ttl      time.Duration
}

func NewRedisGuard(store WebhookStore, provider string, ttl time.Duration) (*RedisGuard, error) {
	if store == nil {
		return nil, errors.New("webhook store is required")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &RedisGuard{store: store, provider: provider, ttl: ttl}, nil
}

func (g *RedisGuard) Seen(ctx context.Context, transactionID string, status enums.PaymentStatus) (bool, error) {
	if transactionID == "" {
		return false, errors.New("transaction id is required")
	}
	last, err := g.store.Get(ctx, g.store.WebhookKey(g.provider, transactionID))
	if err != nil {
		if redis.IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("read webhook status: %w", err)
	}
	return last == status.String(), nil
}

func (g *RedisGuard) MarkSeen(ctx context.Context, transactionID string, status enums.PaymentStatus) error {
	if transactionID == "" {
		return errors.New("transaction id is required")
	}
	return g.store.Set(ctx, g.store.WebhookKey(g.provider, transactionID), status.String(), g.ttl)
}

type memoryEntry struct {
	status    enums.PaymentStatus
	expiresAt time.Time
}

// MemoryGuard is the single-instance fallback. Expired entries are evicted by
// a janitor goroutine that stops on Close.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	done    chan struct{}
	closed  sync.Once
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	g := &MemoryGuard{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go g.janitor(ttl)
	return g
}

func (g *MemoryGuard) Seen(_ context.Context, transactionID string, status enums.PaymentStatus) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.entries[transactionID]
	if !ok || !g.now().Before(entry.expiresAt) {
		return false, nil
	}
	return entry.status == status, nil
}

func (g *MemoryGuard) MarkSeen(_ context.Context, transactionID string, status enums.PaymentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[transactionID] = memoryEntry{status: status, expiresAt: g.now().Add(g.ttl)}
	return nil
}

// Close stops the janitor. It is safe to call more than once.
func (g *MemoryGuard) Close() error {
	g.closed.Do(func() {
		close(g.stop)
		<-g.done
	})
	return nil
}

func (g *MemoryGuard) janitor(interval time.Duration) {
	defer close(g.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.evictExpired()
		}
	}
}

func (g *MemoryGuard) evictExpired() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for id, entry := range g.entries {
		if !now.Before(entry.expiresAt) {
			delete(g.entries, id)
		}
	}
}

func (g *MemoryGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
