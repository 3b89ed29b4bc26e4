package dedup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(direction model.Direction) model.AlertKey {
	return model.AlertKey{TxHash: common.HexToHash("0xfeed"), TokenSymbol: "TokenX", Direction: direction}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(ttl time.Duration) (*MemoryStore, *clock) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(ttl, 0, "test")
	store.keys.SetNowFunc(clk.Now)
	return store, clk
}

func TestDeduplicator_ScenarioE_SuppressesWithinWindow(t *testing.T) {
	store, clk := newTestStore(DefaultTTL)
	d := New(store, "test", slog.Default())
	ctx := context.Background()
	key := testKey(model.DirectionBuy)

	require.False(t, d.HasBeenAlerted(ctx, key))
	d.MarkAsAlerted(ctx, key)

	clk.Advance(9 * time.Minute)
	assert.True(t, d.HasBeenAlerted(ctx, key), "still inside the 10 minute window")

	clk.Advance(2 * time.Minute)
	assert.False(t, d.HasBeenAlerted(ctx, key), "accepted again after expiry")
}

func TestDeduplicator_MarkIsIdempotent(t *testing.T) {
	store, clk := newTestStore(DefaultTTL)
	d := New(store, "test", slog.Default())
	ctx := context.Background()
	key := testKey(model.DirectionSell)

	d.MarkAsAlerted(ctx, key)
	clk.Advance(5 * time.Minute)
	d.MarkAsAlerted(ctx, key)

	assert.True(t, d.HasBeenAlerted(ctx, key))
	clk.Advance(5*time.Minute + time.Second)
	assert.False(t, d.HasBeenAlerted(ctx, key), "second mark does not extend expiry")
}

func TestDeduplicator_DirectionIsPartOfKey(t *testing.T) {
	store, _ := newTestStore(DefaultTTL)
	d := New(store, "test", slog.Default())
	ctx := context.Background()

	d.MarkAsAlerted(ctx, testKey(model.DirectionBuy))
	assert.False(t, d.HasBeenAlerted(ctx, testKey(model.DirectionSell)))
}

func TestDeduplicator_ClaimOnce(t *testing.T) {
	store, _ := newTestStore(DefaultTTL)
	d := New(store, "test", slog.Default())
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Claim(ctx, testKey(model.DirectionBuy)) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, d.HasBeenAlerted(ctx, testKey(model.DirectionBuy)))
}

type failingStore struct{}

func (failingStore) Has(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingStore) MarkIfAbsent(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestDeduplicator_StoreErrorsFailOpen(t *testing.T) {
	d := New(failingStore{}, "test", slog.Default())
	ctx := context.Background()

	assert.False(t, d.HasBeenAlerted(ctx, testKey(model.DirectionBuy)))
	assert.True(t, d.Claim(ctx, testKey(model.DirectionBuy)))
	assert.NotPanics(t, func() { d.MarkAsAlerted(ctx, testKey(model.DirectionBuy)) })
}

func TestMemoryStore_Sweep(t *testing.T) {
	store, clk := newTestStore(time.Minute)
	ctx := context.Background()

	_, _ = store.MarkIfAbsent(ctx, "a")
	_, _ = store.MarkIfAbsent(ctx, "b")
	clk.Advance(2 * time.Minute)
	_, _ = store.MarkIfAbsent(ctx, "c")

	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 2, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_DefaultTTL(t *testing.T) {
	store := NewMemoryStore(0, 0, "test")
	added, err := store.MarkIfAbsent(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestMemoryStore_RunSweeperStopsOnCancel(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0, "test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- store.RunSweeper(ctx, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
