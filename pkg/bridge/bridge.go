// Package bridge decouples the session core from presentation code. It
// fans state snapshots and discrete events out to registered subscribers;
// a misbehaving subscriber can neither block nor crash delivery.
package bridge

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventConnected         EventType = "connected"
	EventDisconnected      EventType = "disconnected"
	EventTranscript        EventType = "transcript"
	EventTurnComplete      EventType = "turn_complete"
	EventFunctionResult    EventType = "function_result"
	EventError             EventType = "error"
	EventTourStart         EventType = "tour_start"
	EventTourEnd           EventType = "tour_end"
	EventAsyncTaskStarted  EventType = "async_task_started"
	EventAsyncTaskComplete EventType = "async_task_complete"
)

// Event is one discrete occurrence for consumers that react to specific
// happenings instead of diffing state snapshots.
type Event struct {
	Type    EventType
	Payload any
	Time    time.Time
}

// Unsubscribe removes the matching subscriber. Safe to call more than once.
type Unsubscribe func()

// Bridge fans out snapshots of type S and discrete events. The zero value is
// not usable; construct with New.
type Bridge[S any] struct {
	logger *zap.Logger

	mu       sync.Mutex
	nextID   int
	stateSub map[int]func(S)
	eventSub map[int]func(Event)
}

func New[S any](logger *zap.Logger) *Bridge[S] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge[S]{
		logger:   logger,
		stateSub: make(map[int]func(S)),
		eventSub: make(map[int]func(Event)),
	}
}

// SubscribeState registers a callback invoked with the full state snapshot
// after every mutation.
func (b *Bridge[S]) SubscribeState(fn func(S)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.stateSub[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.stateSub, id)
	}
}

// SubscribeEvents registers a callback for discrete events.
func (b *Bridge[S]) SubscribeEvents(fn func(Event)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.eventSub[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.eventSub, id)
	}
}

// PublishState delivers a snapshot to every state subscriber.
func (b *Bridge[S]) PublishState(snapshot S) {
	for _, fn := range b.stateSubscribers() {
		b.deliver(func() { fn(snapshot) })
	}
}

// PublishEvent delivers a discrete event to every event subscriber.
func (b *Bridge[S]) PublishEvent(typ EventType, payload any) {
	event := Event{Type: typ, Payload: payload, Time: time.Now()}
	for _, fn := range b.eventSubscribers() {
		fn := fn
		b.deliver(func() { fn(event) })
	}
}

func (b *Bridge[S]) stateSubscribers() []func(S) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]func(S), 0, len(b.stateSub))
	for _, fn := range b.stateSub {
		subs = append(subs, fn)
	}
	return subs
}

func (b *Bridge[S]) eventSubscribers() []func(Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]func(Event), 0, len(b.eventSub))
	for _, fn := range b.eventSub {
		subs = append(subs, fn)
	}
	return subs
}

// deliver shields the publisher from subscriber panics.
func (b *Bridge[S]) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
