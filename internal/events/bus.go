package events

import (
	"log/slog"
	"sync"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
)

// DefaultBufferSize is used when NewBus is given a non-positive size.
const DefaultBufferSize = 1024

// Bus is a non-blocking event bus that fans out events to subscribers.
// The event channel is buffered: if full, events are dropped with a warning.
type Bus struct {
	ch          chan Event
	subscribers []chan Event
	mu          sync.RWMutex
	logger      *slog.Logger
	drops       uint64
	dropsMu     sync.Mutex
	done        chan struct{}
	stopOnce    sync.Once
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		ch:     make(chan Event, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start begins dispatching events to subscribers. Call in a goroutine.
func (b *Bus) Start() {
	for {
		select {
		case evt := <-b.ch:
			b.dispatch(evt)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) dispatch(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- evt:
		default:
			b.logger.Warn("subscriber event buffer full, dropping event",
				"event_type", string(evt.Type))
		}
	}
}

// Stop shuts down the event bus. Publishing after Stop is a no-op.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Publish sends an event to the bus. Non-blocking: drops if buffer is full.
func (b *Bus) Publish(evt Event) {
	select {
	case <-b.done:
		return
	default:
	}

	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	select {
	case b.ch <- evt:
	default:
		b.dropsMu.Lock()
		b.drops++
		drops := b.drops
		b.dropsMu.Unlock()
		metrics.EventBufferDrops.Inc()
		b.logger.Warn("event bus buffer full, dropping event",
			"event_type", string(evt.Type),
			"total_drops", drops)
	}
}

// Subscribe returns a new channel that receives all events from the bus.
// The caller should read from the channel to avoid blocking.
func (b *Bus) Subscribe(bufferSize int) chan Event {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ch := make(chan Event, bufferSize)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel from the bus and closes it.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Drops returns the total number of dropped events.
func (b *Bus) Drops() uint64 {
	b.dropsMu.Lock()
	defer b.dropsMu.Unlock()
	return b.drops
}
