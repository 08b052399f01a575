package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) Prune(cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 2, p.err
}

func (p *fakePruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestPruneHistoryCutoff(t *testing.T) {
	p := &fakePruner{}
	s := NewScheduler(Config{Retention: 30 * 24 * time.Hour}, p, nil)
	fixed := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.pruneHistory()

	want := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoffs = %v, want [%v]", p.cutoffs, want)
	}
}

func TestPruneErrorIsLogged(t *testing.T) {
	p := &fakePruner{err: errors.New("disk full")}
	s := NewScheduler(Config{Retention: time.Hour}, p, nil)
	s.pruneHistory()
	if p.calls() != 1 {
		t.Errorf("Prune calls = %d, want 1", p.calls())
	}
}

func TestStartRunsPruneAndStops(t *testing.T) {
	p := &fakePruner{}
	s := NewScheduler(Config{PruneInterval: 10 * time.Millisecond, Retention: time.Hour}, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if p.calls() < 2 {
		t.Errorf("Prune calls = %d, want at least 2", p.calls())
	}
}

func TestCollectStatsUsesStatus(t *testing.T) {
	called := false
	s := NewScheduler(Config{}, nil, func() (int, int) {
		called = true
		return 2, 3
	})
	s.collectStats()
	if !called {
		t.Error("status func not called")
	}
}
