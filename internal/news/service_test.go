package news

import (
	"context"
	"testing"
	"time"

	"llm-autotrader/internal/types"
)

func TestDigestCache(t *testing.T) {
	cache := newDigestCache(time.Hour)

	symbol := "RELIANCE"
	digest := types.NewsDigest{
		Symbol:    symbol,
		Articles:  []types.NewsArticle{{Title: "Reliance posts record profit", Source: "test"}},
		FetchedAt: time.Now(),
	}

	cache.set(symbol, digest)

	retrieved, found := cache.get(symbol)
	if !found {
		t.Fatal("Expected to find cached digest")
	}
	if retrieved.Symbol != symbol {
		t.Errorf("Expected symbol %s, got %s", symbol, retrieved.Symbol)
	}
	if len(retrieved.Articles) != 1 {
		t.Errorf("Expected 1 article, got %d", len(retrieved.Articles))
	}

	if _, found := cache.get("TCS"); found {
		t.Error("Expected miss for uncached symbol")
	}
}

func TestDigestCacheExpiry(t *testing.T) {
	cache := newDigestCache(50 * time.Millisecond)
	cache.set("RELIANCE", types.NewsDigest{Symbol: "RELIANCE"})

	time.Sleep(100 * time.Millisecond)
	if _, found := cache.get("RELIANCE"); found {
		t.Error("Expected cache entry to be expired")
	}
}

func TestServiceConfig(t *testing.T) {
	cfg := DefaultServiceConfig()

	if cfg.MaxArticles != 15 {
		t.Errorf("Expected MaxArticles to be 15, got %d", cfg.MaxArticles)
	}
	if cfg.CacheDuration != 1*time.Hour {
		t.Errorf("Expected CacheDuration to be 1 hour, got %v", cfg.CacheDuration)
	}
	if !cfg.Enabled {
		t.Error("Expected Enabled to be true")
	}
}

func TestGetDigestDisabledService(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.Enabled = false
	svc := NewService(cfg)

	digest, err := svc.GetDigest(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatalf("GetDigest failed: %v", err)
	}
	if digest.Symbol != "RELIANCE" {
		t.Errorf("Expected symbol on empty digest, got %s", digest.Symbol)
	}
	if len(digest.Articles) != 0 {
		t.Error("Disabled service should return an empty digest")
	}
}

func TestCachedSymbols(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	if symbols := svc.CachedSymbols(); len(symbols) != 0 {
		t.Errorf("Expected no cached symbols, got %v", symbols)
	}

	svc.cache.set("RELIANCE", types.NewsDigest{Symbol: "RELIANCE"})
	symbols := svc.CachedSymbols()
	if len(symbols) != 1 || symbols[0] != "RELIANCE" {
		t.Errorf("Expected [RELIANCE], got %v", symbols)
	}
}
