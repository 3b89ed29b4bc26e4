package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/cache"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/metrics"
)

// DefaultTTL is how long an alert key suppresses repeats.
const DefaultTTL = 10 * time.Minute

// Store keeps alert keys for a fixed retention window.
type Store interface {
	Has(ctx context.Context, key string) (bool, error)
	// MarkIfAbsent records key and reports whether it was newly added. A
	// live key keeps its original expiry.
	MarkIfAbsent(ctx context.Context, key string) (bool, error)
}

// Deduplicator decides whether a swap action has already been alerted.
// Store errors never block alerting: they are logged and treated as
// "not yet alerted".
type Deduplicator struct {
	store  Store
	chain  string
	logger *slog.Logger
}

func New(store Store, chain string, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{store: store, chain: chain, logger: logger.With("component", "dedup")}
}

func (d *Deduplicator) HasBeenAlerted(ctx context.Context, key model.AlertKey) bool {
	seen, err := d.store.Has(ctx, key.String())
	if err != nil {
		d.logger.Warn("dedup lookup failed", "key", key.String(), "error", err)
		return false
	}
	return seen
}

func (d *Deduplicator) MarkAsAlerted(ctx context.Context, key model.AlertKey) {
	if _, err := d.store.MarkIfAbsent(ctx, key.String()); err != nil {
		d.logger.Warn("dedup mark failed", "key", key.String(), "error", err)
	}
}

// Claim atomically checks and marks key. It returns true when the caller
// owns the alert and should send it.
func (d *Deduplicator) Claim(ctx context.Context, key model.AlertKey) bool {
	added, err := d.store.MarkIfAbsent(ctx, key.String())
	if err != nil {
		d.logger.Warn("dedup claim failed, alerting anyway", "key", key.String(), "error", err)
		return true
	}
	if !added {
		metrics.AlertsDeduplicated.WithLabelValues(d.chain).Inc()
	}
	return added
}

// MemoryStore is a process-local Store. Expired keys are dropped on lookup
// and by Sweep.
type MemoryStore struct {
	keys  *cache.LRU[string, struct{}]
	chain string
}

// NewMemoryStore holds at most capacity keys (0 for unbounded) for ttl.
func NewMemoryStore(ttl time.Duration, capacity int, chain string) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{keys: cache.NewLRU[string, struct{}](capacity, ttl), chain: chain}
}

func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	return s.keys.Contains(key), nil
}

func (s *MemoryStore) MarkIfAbsent(_ context.Context, key string) (bool, error) {
	return s.keys.PutIfAbsent(key, struct{}{}), nil
}

// Sweep drops expired keys and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	removed := s.keys.Sweep()
	metrics.DedupEntries.WithLabelValues(s.chain).Set(float64(s.keys.Len()))
	return removed
}

func (s *MemoryStore) Len() int {
	return s.keys.Len()
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}
