package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// queueSize is how many undelivered events one subscriber may fall behind
// before further events for it are dropped.
const queueSize = 256

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is an asynchronous publish-subscribe bus. The relay loop emits
// onto it and observers (telemetry, history, live feed) consume from it.
// Every subscriber has its own queue drained by one goroutine, so it sees
// events in emit order and Emit never blocks.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]*subscriber
	stopped  bool

	pending sync.WaitGroup // queued or running deliveries
	workers sync.WaitGroup
	dropped atomic.Uint64
}

type subscriber struct {
	name    string
	handler HandlerFunc
	queue   chan delivery
}

type delivery struct {
	ctx   context.Context
	event Event
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]*subscriber),
	}
}

// Subscribe registers a handler for one event type, or for every event when
// eventType is EventAny. The name is used in logs.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &subscriber{name: name, handler: handler}
	if !eb.stopped {
		sub.queue = make(chan delivery, queueSize)
		eb.workers.Add(1)
		go eb.drain(sub)
	}
	eb.handlers[eventType] = append(eb.handlers[eventType], sub)

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// Emit queues event for every matching subscriber without blocking. A
// subscriber whose queue is full misses the event.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return
	}

	for _, subs := range [][]*subscriber{eb.handlers[event.Type], eb.handlers[EventAny]} {
		for _, sub := range subs {
			eb.pending.Add(1)
			select {
			case sub.queue <- delivery{ctx: ctx, event: event}:
			default:
				eb.pending.Done()
				eb.dropped.Add(1)
				log.Warn().
					Str("event", string(event.Type)).
					Str("handler", sub.name).
					Msg("subscriber queue full, event dropped")
			}
		}
	}
}

func (eb *EventBus) drain(sub *subscriber) {
	defer eb.workers.Done()
	for d := range sub.queue {
		eb.deliver(sub, d)
	}
}

func (eb *EventBus) deliver(sub *subscriber, d delivery) {
	defer eb.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(d.event.Type)).
				Str("handler", sub.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err := sub.handler(d.ctx, d.event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(d.event.Type)).
			Str("handler", sub.name).
			Msg("handler returned error")
	}
}

// Stop stops accepting new events, delivers what is already queued and
// waits for the subscriber goroutines to exit.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	for _, subs := range eb.handlers {
		for _, sub := range subs {
			if sub.queue != nil {
				close(sub.queue)
			}
		}
	}
	eb.mu.Unlock()

	eb.workers.Wait()
	log.Info().Msg("event bus stopped")
}

// Wait blocks until every event emitted so far has been handled.
func (eb *EventBus) Wait() {
	eb.pending.Wait()
}

// Dropped returns how many deliveries were lost to full queues.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

// HandlerCount returns the number of handlers registered for a specific event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
