package rules_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/internal/rules"
	"trading-engine/pkg/exchanges/common"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (f *fakeFetcher) ExchangeInfo(ctx context.Context) (*common.ExchangeRules, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &common.ExchangeRules{
		Symbols: map[string]common.SymbolRules{
			"BTCUSDT": {
				Symbol:      "BTCUSDT",
				TickSize:    decimal.RequireFromString("0.01"),
				MinNotional: decimal.RequireFromString("10"),
			},
		},
		FetchedAt: time.Now(),
	}, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestGetFetchesOnceWithinTTL(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache := rules.New(fetcher, time.Hour, nil)
	ctx := context.Background()

	first, err := cache.Get(ctx)
	require.NoError(t, err)
	second, err := cache.Get(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, fetcher.calls.Load())
}

func TestGetServesEmergencyCopyOnRefreshFailure(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache := rules.New(fetcher, time.Nanosecond, nil) // everything instantly stale
	ctx := context.Background()

	good, err := cache.Get(ctx)
	require.NoError(t, err)

	fetcher.setErr(errors.New("exchange down"))
	time.Sleep(time.Millisecond)

	degraded, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, good.FetchedAt, degraded.FetchedAt)
}

func TestGetPropagatesFailureWithoutFallback(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setErr(errors.New("exchange down"))
	cache := rules.New(fetcher, time.Hour, nil)

	_, err := cache.Get(context.Background())
	assert.Error(t, err)
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	fetcher := &fakeFetcher{delay: 50 * time.Millisecond}
	cache := rules.New(fetcher, time.Hour, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fetcher.calls.Load())
}

func TestSymbolRules(t *testing.T) {
	cache := rules.New(&fakeFetcher{}, time.Hour, nil)

	r, ok, err := cache.SymbolRules(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("0.01").Equal(r.TickSize))

	_, ok, err = cache.SymbolRules(context.Background(), "NOPEUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}
