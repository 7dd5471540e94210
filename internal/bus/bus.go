package bus

import (
	"context"
	"sync"
	"time"

	"llm-autotrader/internal/errs"
)

// Event is one entry in a run's progress log. Seq is assigned by the bus and
// is strictly increasing per run with no gaps.
type Event struct {
	Seq        int64          `json:"seq"`
	RunID      string         `json:"run_id"`
	Stage      string         `json:"stage"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Terminal   bool           `json:"terminal,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
}

type subscriber struct {
	out    chan Event
	notify chan struct{}
	cursor int
}

type runLog struct {
	mu       sync.Mutex
	events   []Event
	sealed   bool
	sealedAt time.Time
	subs     map[int]*subscriber
	nextSub  int
}

// Bus keeps an append-only event log per run and fans live events out to
// subscribers. Sealed logs stay readable until the retention window passes.
type Bus struct {
	mu        sync.Mutex
	logs      map[string]*runLog
	retention time.Duration
	sweepTick *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

func New(retention time.Duration) *Bus {
	b := &Bus{
		logs:      make(map[string]*runLog),
		retention: retention,
		sweepTick: time.NewTicker(time.Hour),
		done:      make(chan struct{}),
	}
	go b.sweep()
	return b
}

func (b *Bus) log(runID string, create bool) *runLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	rl, ok := b.logs[runID]
	if !ok && create {
		rl = &runLog{subs: make(map[int]*subscriber)}
		b.logs[runID] = rl
	}
	return rl
}

// Publish appends an event to the run's log and notifies subscribers. The log
// is created on first publish. Publishing to a sealed log fails with
// AlreadySealed.
func (b *Bus) Publish(runID string, ev Event) error {
	rl := b.log(runID, true)

	rl.mu.Lock()
	if rl.sealed {
		rl.mu.Unlock()
		return errs.Newf(errs.AlreadySealed, "run %s log is sealed", runID)
	}
	ev.Seq = int64(len(rl.events)) + 1
	ev.RunID = runID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Terminal {
		rl.sealed = true
		rl.sealedAt = ev.At
	}
	rl.events = append(rl.events, ev)
	for _, sub := range rl.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	rl.mu.Unlock()
	return nil
}

// Terminate publishes the terminal event and seals the log.
func (b *Bus) Terminate(runID string, ev Event) error {
	ev.Terminal = true
	return b.Publish(runID, ev)
}

// Sealed reports whether the run's log has received its terminal event.
func (b *Bus) Sealed(runID string) bool {
	rl := b.log(runID, false)
	if rl == nil {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sealed
}

// Events returns a copy of the run's log from fromSeq (exclusive of nothing:
// events with Seq >= fromSeq are included).
func (b *Bus) Events(runID string, fromSeq int64) ([]Event, error) {
	rl := b.log(runID, false)
	if rl == nil {
		return nil, errs.Newf(errs.NotFound, "run %s has no event log", runID)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return copyFrom(rl.events, fromSeq), nil
}

// Subscribe replays events with Seq >= fromSeq, then follows the live tail.
// The returned channel closes after the terminal event is delivered, or when
// ctx is cancelled. A cancelled subscriber never affects delivery to others.
func (b *Bus) Subscribe(ctx context.Context, runID string, fromSeq int64) (<-chan Event, error) {
	rl := b.log(runID, false)
	if rl == nil {
		return nil, errs.Newf(errs.NotFound, "run %s has no event log", runID)
	}

	sub := &subscriber{
		out:    make(chan Event, 16),
		notify: make(chan struct{}, 1),
	}
	if fromSeq < 1 {
		fromSeq = 1
	}

	rl.mu.Lock()
	id := rl.nextSub
	rl.nextSub++
	sub.cursor = int(fromSeq) - 1
	if sub.cursor > len(rl.events) {
		// Replay from beyond the current tail is an empty replay.
		sub.cursor = len(rl.events)
	}
	rl.subs[id] = sub
	rl.mu.Unlock()

	go b.pump(ctx, rl, id, sub)
	return sub.out, nil
}

// pump drains the log into the subscriber channel in order. It reads under
// the log lock but never sends while holding it.
func (b *Bus) pump(ctx context.Context, rl *runLog, id int, sub *subscriber) {
	defer func() {
		rl.mu.Lock()
		delete(rl.subs, id)
		rl.mu.Unlock()
		close(sub.out)
	}()

	for {
		rl.mu.Lock()
		pending := make([]Event, len(rl.events)-sub.cursor)
		copy(pending, rl.events[sub.cursor:])
		sub.cursor = len(rl.events)
		sealed := rl.sealed
		rl.mu.Unlock()

		for _, ev := range pending {
			select {
			case sub.out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if sealed {
			return
		}

		select {
		case <-sub.notify:
		case <-ctx.Done():
			return
		case <-b.done:
			return
		}
	}
}

func copyFrom(events []Event, fromSeq int64) []Event {
	if fromSeq < 1 {
		fromSeq = 1
	}
	start := int(fromSeq) - 1
	if start >= len(events) {
		return nil
	}
	out := make([]Event, len(events)-start)
	copy(out, events[start:])
	return out
}

func (b *Bus) sweep() {
	for {
		select {
		case <-b.done:
			return
		case <-b.sweepTick.C:
			cutoff := time.Now().Add(-b.retention)
			b.mu.Lock()
			for runID, rl := range b.logs {
				rl.mu.Lock()
				expired := rl.sealed && rl.sealedAt.Before(cutoff) && len(rl.subs) == 0
				rl.mu.Unlock()
				if expired {
					delete(b.logs, runID)
				}
			}
			b.mu.Unlock()
		}
	}
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.sweepTick.Stop()
		close(b.done)
	})
}
