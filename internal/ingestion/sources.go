package ingestion

import (
	"context"
	"sync"
)

// Notification is a transaction touching the watched program.
type Notification struct {
	Signature string
	Slot      int64
	Logs      []string
	Failed    bool
	// Unfiltered is set when the source could not supply logs; the
	// marker is then checked against the fetched transaction.
	Unfiltered bool
}

// StateChange reports a stream connection transition.
type StateChange struct {
	Connected bool
	Err       error // cause of a disconnect, may be nil
}

// LogSource delivers notifications for a program.
type LogSource interface {
	// Subscribe starts delivery. The returned channel is closed when the
	// source stops. onState is called on every connection transition.
	Subscribe(ctx context.Context, onState func(StateChange)) (<-chan Notification, error)

	// Close stops the source.
	Close() error
}

// ChannelSource is a LogSource fed by the caller. Used for replays and tests.
// Notifications still queued when the source closes are discarded.
type ChannelSource struct {
	in   chan Notification
	done chan struct{}
	once sync.Once
}

// NewChannelSource creates a source with the given buffer.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		in:   make(chan Notification, buffer),
		done: make(chan struct{}),
	}
}

// Push queues n for delivery, blocking while the buffer is full. It returns
// false once the source is closed, including when Close interrupts a blocked
// Push.
func (s *ChannelSource) Push(n Notification) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.in <- n:
		return true
	case <-s.done:
		return false
	}
}

// Subscribe returns the feed, closed after Close. The source reports itself
// connected immediately.
func (s *ChannelSource) Subscribe(_ context.Context, onState func(StateChange)) (<-chan Notification, error) {
	out := make(chan Notification)
	go func() {
		defer close(out)
		for {
			select {
			case <-s.done:
				return
			case n := <-s.in:
				select {
				case out <- n:
				case <-s.done:
					return
				}
			}
		}
	}()
	if onState != nil {
		onState(StateChange{Connected: true})
	}
	return out, nil
}

// Close stops the feed and releases blocked pushers. It is idempotent.
func (s *ChannelSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
