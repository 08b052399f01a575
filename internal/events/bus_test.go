package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestEmitReachesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	got := map[string]int{}
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[name]++
			return nil
		}
	}

	bus.Subscribe(EventClientJoined, "joined", record("joined"))
	bus.Subscribe(EventChat, "chat", record("chat"))
	bus.Subscribe(EventAny, "all", record("all"))

	bus.Emit(context.Background(), New(EventClientJoined, "test", ClientPayload{Name: "X"}))
	bus.Emit(context.Background(), New(EventLoadRace, "test", nil))
	bus.Wait()

	if got["joined"] != 1 || got["chat"] != 0 || got["all"] != 2 {
		t.Errorf("handler calls = %v, want joined=1 chat=0 all=2", got)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	bus := NewEventBus()
	done := make(chan struct{})
	bus.Subscribe(EventChat, "panics", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe(EventChat, "errors", func(ctx context.Context, e Event) error {
		return errors.New("nope")
	})
	bus.Subscribe(EventChat, "ok", func(ctx context.Context, e Event) error {
		close(done)
		return nil
	})

	bus.Emit(context.Background(), New(EventChat, "test", ChatPayload{Text: "hi"}))
	bus.Wait()
	<-done
}

func TestStopDropsEvents(t *testing.T) {
	bus := NewEventBus()
	called := false
	bus.Subscribe(EventChat, "h", func(ctx context.Context, e Event) error {
		called = true
		return nil
	})
	bus.Stop()
	bus.Emit(context.Background(), New(EventChat, "test", nil))
	bus.Wait()
	if called {
		t.Error("handler called after Stop")
	}
	if n := bus.HandlerCount(EventChat); n != 1 {
		t.Errorf("HandlerCount() = %d, want 1", n)
	}
}

func TestMatchPhaseJSON(t *testing.T) {
	data, err := PhaseRacing.MarshalJSON()
	if err != nil || string(data) != `"racing"` {
		t.Errorf("MarshalJSON() = %s, %v", data, err)
	}
	if got := MatchPhase(42).String(); got != "lobby" {
		t.Errorf("String() = %q, want lobby", got)
	}
}

func TestSubscriberSeesEmitOrder(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var got []string
	bus.Subscribe(EventChat, "order", func(ctx context.Context, e Event) error {
		got = append(got, e.Payload.(ChatPayload).Text)
		return nil
	})

	want := []string{"a", "b", "c", "d"}
	for _, text := range want {
		bus.Emit(context.Background(), New(EventChat, "test", ChatPayload{Text: text}))
	}
	bus.Wait()

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFullQueueDropsEvents(t *testing.T) {
	bus := NewEventBus()
	release := make(chan struct{})
	bus.Subscribe(EventChat, "slow", func(ctx context.Context, e Event) error {
		<-release
		return nil
	})

	// One event is held by the handler, queueSize more fill the queue.
	for i := 0; i < queueSize+10; i++ {
		bus.Emit(context.Background(), New(EventChat, "test", nil))
	}
	close(release)
	bus.Wait()
	bus.Stop()

	if d := bus.Dropped(); d < 9 || d > 10 {
		t.Errorf("Dropped() = %d, want 9 or 10", d)
	}
}
