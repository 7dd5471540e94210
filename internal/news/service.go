package news

import (
	"context"
	"sync"
	"time"

	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/types"
)

// Service hands headline digests to the news analyst, caching per symbol so
// repeated runs inside the cache window do not re-scrape.
type Service struct {
	scraper *Scraper
	cache   *digestCache
	cfg     ServiceConfig
}

type ServiceConfig struct {
	MaxArticles    int
	CacheDuration  time.Duration
	ScraperTimeout time.Duration
	Enabled        bool
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxArticles:    15,
		CacheDuration:  1 * time.Hour,
		ScraperTimeout: 30 * time.Second,
		Enabled:        true,
	}
}

type digestCache struct {
	mu   sync.RWMutex
	data map[string]*digestEntry
	ttl  time.Duration
}

type digestEntry struct {
	digest    types.NewsDigest
	timestamp time.Time
}

func newDigestCache(ttl time.Duration) *digestCache {
	c := &digestCache{
		data: make(map[string]*digestEntry),
		ttl:  ttl,
	}
	go c.cleanupLoop()
	return c
}

func (c *digestCache) get(symbol string) (types.NewsDigest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[symbol]
	if !ok || time.Since(entry.timestamp) > c.ttl {
		return types.NewsDigest{}, false
	}
	return entry.digest, true
}

func (c *digestCache) set(symbol string, digest types.NewsDigest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[symbol] = &digestEntry{digest: digest, timestamp: time.Now()}
}

func (c *digestCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for symbol, entry := range c.data {
			if now.Sub(entry.timestamp) > c.ttl {
				delete(c.data, symbol)
			}
		}
		c.mu.Unlock()
	}
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxArticles <= 0 {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		scraper: NewScraper(cfg.ScraperTimeout),
		cache:   newDigestCache(cfg.CacheDuration),
		cfg:     cfg,
	}
}

// GetDigest returns headlines for symbol, cached or fresh. Scrape failures
// degrade to an empty digest rather than failing the run.
func (s *Service) GetDigest(ctx context.Context, symbol string) (types.NewsDigest, error) {
	if !s.cfg.Enabled {
		return types.NewsDigest{Symbol: symbol, FetchedAt: time.Now()}, nil
	}

	if cached, ok := s.cache.get(symbol); ok {
		logger.Info(ctx, "Using cached news digest", "symbol", symbol,
			"age_minutes", time.Since(cached.FetchedAt).Minutes())
		return cached, nil
	}

	logger.Info(ctx, "Fetching fresh news digest", "symbol", symbol)
	digest, err := s.fetch(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch news", err, "symbol", symbol)
		return types.NewsDigest{Symbol: symbol, FetchedAt: time.Now()}, nil
	}

	s.cache.set(symbol, digest)
	return digest, nil
}

func (s *Service) fetch(ctx context.Context, symbol string) (types.NewsDigest, error) {
	articles, err := s.scraper.Scrape(ctx, symbol, s.cfg.MaxArticles)
	if err != nil {
		return types.NewsDigest{}, err
	}

	if len(articles) == 0 {
		logger.Info(ctx, "No articles from primary sources, trying Google News", "symbol", symbol)
		articles, err = s.scraper.ScrapeGoogleNews(ctx, symbol, s.cfg.MaxArticles)
		if err != nil {
			logger.ErrorWithErr(ctx, "Google News fallback failed", err, "symbol", symbol)
		}
	}

	digest := types.NewsDigest{
		Symbol:    symbol,
		Articles:  articles,
		FetchedAt: time.Now(),
	}
	scoreDigest(&digest)
	return digest, nil
}

// RefreshDigest bypasses the cache.
func (s *Service) RefreshDigest(ctx context.Context, symbol string) (types.NewsDigest, error) {
	digest, err := s.fetch(ctx, symbol)
	if err != nil {
		return types.NewsDigest{}, err
	}
	s.cache.set(symbol, digest)
	return digest, nil
}

// CachedSymbols lists symbols currently holding a live digest.
func (s *Service) CachedSymbols() []string {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()

	symbols := make([]string, 0, len(s.cache.data))
	for symbol := range s.cache.data {
		symbols = append(symbols, symbol)
	}
	return symbols
}
