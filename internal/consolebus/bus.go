// Package consolebus fans console pipeline events out to subscribers, one
// subscription channel per consumer.
package consolebus

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventOutput carries a flushed batch of console lines.
	EventOutput EventType = "output"
	// EventImportant carries a single highlighted line.
	EventImportant EventType = "important"
	// EventSessionState carries a session start or stop notification.
	EventSessionState EventType = "session"
	// EventClear signals the console display was cleared.
	EventClear EventType = "clear"
)

// Event is one consumer-facing console notification.
type Event struct {
	Type      EventType
	Output    schema.OutputEvent
	Important schema.ImportantLineEvent
	Session   schema.SessionStateEvent
	Clear     schema.ClearEvent
}

// Bus fans console events out to per-console subscribers. Publishing never
// blocks; a subscriber that stops draining loses events.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.ConsoleID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.ConsoleID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the console and returns a channel plus
// a cancel func. Cancel closes the channel.
func (b *Bus) Subscribe(console schema.ConsoleID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	consoleSubs := b.subs[console]
	if consoleSubs == nil {
		consoleSubs = make(map[chan Event]struct{})
		b.subs[console] = consoleSubs
	}
	consoleSubs[ch] = struct{}{}
	count := len(consoleSubs)
	b.mu.Unlock()
	b.log.With("console", console).Debug("consolebus subscribe", "subs", count)
	return ch, func() {
		b.mu.Lock()
		if subs := b.subs[console]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, console)
			}
		}
		b.mu.Unlock()
		close(ch)
		b.log.With("console", console).Debug("consolebus unsubscribe")
	}
}

// OnOutput implements console.EventSink.
func (b *Bus) OnOutput(event schema.OutputEvent) {
	b.publish(event.Console, Event{Type: EventOutput, Output: event})
}

// OnImportantLine implements console.EventSink.
func (b *Bus) OnImportantLine(event schema.ImportantLineEvent) {
	b.publish(event.Console, Event{Type: EventImportant, Important: event})
}

// OnSessionState implements console.EventSink.
func (b *Bus) OnSessionState(event schema.SessionStateEvent) {
	b.publish(event.Console, Event{Type: EventSessionState, Session: event})
}

// OnClear implements console.EventSink.
func (b *Bus) OnClear(event schema.ClearEvent) {
	b.publish(event.Console, Event{Type: EventClear, Clear: event})
}

func (b *Bus) publish(console schema.ConsoleID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	consoleSubs := b.subs[console]
	subs := make([]chan Event, 0, len(consoleSubs))
	for sub := range consoleSubs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.With("console", console).Trace("consolebus dropped", "count", dropped)
	}
}
