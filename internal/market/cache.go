package market

import (
	"context"
	"strings"
	"sync"
	"time"
)

// QuoteCache stores quotes for a bounded lifetime. Injected so tests can
// substitute a deterministic implementation.
type QuoteCache interface {
	Get(symbol string) (Quote, bool)
	Set(symbol string, q Quote)
}

// MemoryCache is a TTL-bounded in-process QuoteCache.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	nowFn   func() time.Time
}

type cacheEntry struct {
	quote    Quote
	storedAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		nowFn:   time.Now,
	}
}

func (c *MemoryCache) Get(symbol string) (Quote, bool) {
	key := cacheKey(symbol)
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.nowFn().Sub(e.storedAt) > c.ttl {
		return Quote{}, false
	}
	return e.quote, true
}

func (c *MemoryCache) Set(symbol string, q Quote) {
	key := cacheKey(symbol)
	c.mu.Lock()
	c.entries[key] = cacheEntry{quote: q, storedAt: c.nowFn()}
	c.mu.Unlock()
}

func cacheKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CachedSource decorates a Source with a QuoteCache for GetQuote and a
// memo for ticker searches. Candle lookups pass through.
type CachedSource struct {
	inner Source
	cache QuoteCache

	searchMu sync.Mutex
	searches map[string]SymbolMatch
}

func NewCachedSource(inner Source, cache QuoteCache) *CachedSource {
	return &CachedSource{
		inner:    inner,
		cache:    cache,
		searches: make(map[string]SymbolMatch),
	}
}

func (s *CachedSource) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := s.cache.Get(symbol); ok {
		return q, nil
	}
	q, err := s.inner.GetQuote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	s.cache.Set(symbol, q)
	return q, nil
}

func (s *CachedSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return s.inner.GetCandles(ctx, symbol, interval, limit)
}

// FindTicker memoizes resolved queries for the process lifetime; ticker
// mappings do not change intraday.
func (s *CachedSource) FindTicker(ctx context.Context, query string) (SymbolMatch, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	s.searchMu.Lock()
	match, ok := s.searches[key]
	s.searchMu.Unlock()
	if ok {
		return match, nil
	}
	match, err := s.inner.FindTicker(ctx, query)
	if err != nil {
		return SymbolMatch{}, err
	}
	s.searchMu.Lock()
	s.searches[key] = match
	s.searchMu.Unlock()
	return match, nil
}

var _ Source = (*CachedSource)(nil)
