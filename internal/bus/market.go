package bus

import (
	"sync"

	"llm-autotrader/internal/types"
)

// MarketBroadcaster fans marketUpdate snapshots out to listeners. Snapshots
// are replaced wholesale each tick, so a slow listener may skip intermediate
// updates but never blocks the scheduler.
type MarketBroadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan types.MarketData
	nextID int
}

func NewMarketBroadcaster() *MarketBroadcaster {
	return &MarketBroadcaster{subs: make(map[int]chan types.MarketData)}
}

// Publish delivers the snapshot to every listener without blocking. A full
// listener buffer drops the oldest pending snapshot first.
func (mb *MarketBroadcaster) Publish(md types.MarketData) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, ch := range mb.subs {
		select {
		case ch <- md:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- md:
			default:
			}
		}
	}
}

// Subscribe registers a listener. Cancel releases it.
func (mb *MarketBroadcaster) Subscribe() (<-chan types.MarketData, func()) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	id := mb.nextID
	mb.nextID++
	ch := make(chan types.MarketData, 16)
	mb.subs[id] = ch

	cancel := func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		if _, ok := mb.subs[id]; ok {
			delete(mb.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
