package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanicball-project/sanicrelay/internal/events"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryStore error: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecordAndRecent(t *testing.T) {
	h := newTestStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	records := []events.Event{
		{Type: events.EventClientJoined, Source: "relay", Time: base, Payload: events.ClientPayload{GUID: "g", Name: "Sonic"}},
		{Type: events.EventChat, Source: "relay", Time: base.Add(time.Second), Payload: events.ChatPayload{From: "Sonic", Text: "hi"}},
		{Type: events.EventLoadRace, Source: "relay", Time: base.Add(2 * time.Second)},
	}
	for _, e := range records {
		if err := h.Record(e); err != nil {
			t.Fatalf("Record(%s) error: %v", e.Type, err)
		}
	}

	got, err := h.Recent(2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(got))
	}
	if got[0].Type != string(events.EventLoadRace) || got[1].Type != string(events.EventChat) {
		t.Errorf("order = %s, %s; want load_race, chat", got[0].Type, got[1].Type)
	}
	if got[0].Payload != nil {
		t.Errorf("empty payload = %s, want nil", got[0].Payload)
	}

	var chat events.ChatPayload
	if err := json.Unmarshal(got[1].Payload, &chat); err != nil || chat.Text != "hi" {
		t.Errorf("chat payload = %s (%v)", got[1].Payload, err)
	}
	if !got[1].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", got[1].CreatedAt, base.Add(time.Second))
	}
}

func TestRaceResults(t *testing.T) {
	h := newTestStore(t)
	err := h.Record(events.Event{
		Type:    events.EventRaceFinished,
		Time:    time.Now(),
		Payload: events.RacePayload{GUID: "g", CtrlType: "Keyboard", RaceTime: 83.5, Position: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := h.Results(10)
	if err != nil {
		t.Fatalf("Results error: %v", err)
	}
	if len(results) != 1 || results[0].RaceTime != 83.5 || results[0].Position != 1 {
		t.Errorf("results = %+v", results)
	}
}

func TestPrune(t *testing.T) {
	h := newTestStore(t)
	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()

	h.Record(events.Event{Type: events.EventChat, Time: old})
	h.Record(events.Event{Type: events.EventRaceFinished, Time: old, Payload: events.RacePayload{GUID: "g"}})
	h.Record(events.Event{Type: events.EventChat, Time: fresh})

	removed, err := h.Prune(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune removed %d rows, want 3", removed)
	}
	left, _ := h.Recent(10)
	if len(left) != 1 {
		t.Errorf("events left = %d, want 1", len(left))
	}
}

func TestSubscribeSkipsDecodeErrors(t *testing.T) {
	h := newTestStore(t)
	bus := events.NewEventBus()
	h.Subscribe(bus)

	bus.Emit(context.Background(), events.New(events.EventDecodeError, "relay", events.DecodeErrorPayload{Reason: "truncated"}))
	bus.Emit(context.Background(), events.New(events.EventStartRace, "relay", events.PhasePayload{Phase: events.PhaseRacing}))
	bus.Wait()

	got, err := h.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != string(events.EventStartRace) {
		t.Errorf("recorded = %+v, want only start_race", got)
	}
}
