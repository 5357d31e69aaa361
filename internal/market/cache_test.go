package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	quote Quote
	err   error
}

func (s *countingSource) GetQuote(context.Context, string) (Quote, error) {
	s.calls++
	if s.err != nil {
		return Quote{}, s.err
	}
	return s.quote, nil
}

func (s *countingSource) GetCandles(context.Context, string, string, int) ([]Candle, error) {
	return nil, nil
}

func (s *countingSource) FindTicker(context.Context, string) (SymbolMatch, error) {
	return SymbolMatch{}, nil
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache(time.Minute)
	c.nowFn = func() time.Time { return now }

	c.Set("aapl", Quote{Symbol: "AAPL", Price: 150})

	q, ok := c.Get("AAPL")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, 150.0, q.Price)

	now = now.Add(61 * time.Second)
	_, ok = c.Get("AAPL")
	assert.False(t, ok, "entry past its ttl is a miss")
}

func TestCachedSourceServesHits(t *testing.T) {
	inner := &countingSource{quote: Quote{Symbol: "AAPL", Price: 150}}
	src := NewCachedSource(inner, NewMemoryCache(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := src.GetQuote(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, 150.0, q.Price)
	}
	assert.Equal(t, 1, inner.calls, "repeat lookups hit the cache")
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	inner := &countingSource{err: errors.New("feed down")}
	src := NewCachedSource(inner, NewMemoryCache(time.Minute))
	ctx := context.Background()

	_, err := src.GetQuote(ctx, "AAPL")
	require.Error(t, err)
	_, err = src.GetQuote(ctx, "AAPL")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)

	inner.err = nil
	inner.quote = Quote{Symbol: "AAPL", Price: 150}
	q, err := src.GetQuote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 150.0, q.Price)
}

func TestQuoteChange(t *testing.T) {
	q := Quote{Price: 110, PreviousClose: 100}
	assert.InDelta(t, 10, q.Change(), 1e-9)
	assert.InDelta(t, 10, q.ChangePercent(), 1e-9)

	assert.Zero(t, Quote{Price: 10}.ChangePercent(), "no previous close means no percent move")
}
