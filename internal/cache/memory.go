package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	payload   []byte
	writtenAt time.Time
	ttl       time.Duration
}

func (m *memoryItem) expiredAt(now time.Time) bool {
	return now.Sub(m.writtenAt) > m.ttl
}

func (m *memoryItem) evictableAt(now time.Time) bool {
	return now.Sub(m.writtenAt) > m.ttl*retainFactor
}

// MemoryStore is the in-process Store. Values are stored as JSON so reads in
// concurrent goroutines always get their own copy.
type MemoryStore struct {
	data          map[string]*memoryItem
	mu            sync.RWMutex
	janitorTicker *time.Ticker
	done          chan struct{}
}

func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:          make(map[string]*memoryItem),
		janitorTicker: time.NewTicker(time.Minute),
		done:          make(chan struct{}),
	}
	go ms.sweep()
	return ms
}

func (ms *MemoryStore) Put(_ context.Context, key Key, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.data[key.String()] = &memoryItem{
		payload:   b,
		writtenAt: time.Now(),
		ttl:       key.Kind.TTL(),
	}
	return nil
}

func (ms *MemoryStore) Get(_ context.Context, key Key, dest any) (Hit, error) {
	ms.mu.RLock()
	item, ok := ms.data[key.String()]
	ms.mu.RUnlock()

	now := time.Now()
	if !ok || item.expiredAt(now) {
		return Hit{}, ErrMiss
	}
	if err := json.Unmarshal(item.payload, dest); err != nil {
		return Hit{}, err
	}
	return Hit{WrittenAt: item.writtenAt, Age: now.Sub(item.writtenAt)}, nil
}

func (ms *MemoryStore) GetLenient(_ context.Context, key Key, dest any) (Hit, error) {
	ms.mu.RLock()
	item, ok := ms.data[key.String()]
	ms.mu.RUnlock()

	now := time.Now()
	if !ok || item.evictableAt(now) {
		return Hit{}, ErrMiss
	}
	if err := json.Unmarshal(item.payload, dest); err != nil {
		return Hit{}, err
	}
	return Hit{
		WrittenAt: item.writtenAt,
		Age:       now.Sub(item.writtenAt),
		Stale:     item.expiredAt(now),
	}, nil
}

func (ms *MemoryStore) Keys(_ context.Context, namespace string) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	now := time.Now()
	prefix := namespace + ":"
	keys := make([]string, 0, len(ms.data))
	for k, item := range ms.data {
		if strings.HasPrefix(k, prefix) && !item.expiredAt(now) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (ms *MemoryStore) sweep() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.janitorTicker.C:
			now := time.Now()
			ms.mu.Lock()
			for k, item := range ms.data {
				if item.evictableAt(now) {
					delete(ms.data, k)
				}
			}
			ms.mu.Unlock()
		}
	}
}

func (ms *MemoryStore) Close() error {
	ms.janitorTicker.Stop()
	close(ms.done)
	return nil
}
