package feed

import (
	"context"
	"sync"
	"time"
)

const defaultPollInterval = 100 * time.Millisecond

// Log is an in-memory append-only event log. Appends assign dense offsets;
// subscribers replay history from any offset and then follow the live tail.
// A subscriber that reconnects from an old offset observes redelivery, so
// consumers must be idempotent (at-least-once delivery).
type Log struct {
	mu           sync.RWMutex
	events       []Event
	pollInterval time.Duration
}

// NewLog creates an empty event log. pollInterval controls how often
// subscribers check for new entries past the tail; zero selects the default.
func NewLog(pollInterval time.Duration) *Log {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Log{pollInterval: pollInterval}
}

// Append adds an event to the log and returns its assigned offset.
func (l *Log) Append(ev Event) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev.Offset = uint64(len(l.events))
	l.events = append(l.events, ev)
	return ev.Offset
}

// Head returns the offset one past the last appended event, i.e. the number
// of events in the log.
func (l *Log) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// eventsFrom copies the events at offsets [from, head)
func (l *Log) eventsFrom(from uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from >= uint64(len(l.events)) {
		return nil
	}
	out := make([]Event, len(l.events)-int(from))
	copy(out, l.events[from:])
	return out
}

// Subscribe streams events starting from the given offset. Historical events
// are replayed first, then the channel follows the live tail until ctx is
// canceled. The channels are closed when the subscription ends.
func (l *Log) Subscribe(ctx context.Context, fromOffset uint64) (<-chan Event, <-chan error) {
	outCh := make(chan Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		next := fromOffset
		ticker := time.NewTicker(l.pollInterval)
		defer ticker.Stop()

		for {
			for _, ev := range l.eventsFrom(next) {
				select {
				case outCh <- ev:
					next = ev.Offset + 1
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return outCh, errCh
}

// Replay invokes fn for each event at offsets [from, head) in order,
// stopping at the first error. It reads a snapshot of the log; events
// appended during the replay are not included.
func (l *Log) Replay(ctx context.Context, from uint64, fn func(Event) error) error {
	for _, ev := range l.eventsFrom(from) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}
