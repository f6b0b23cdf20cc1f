package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type recordDrainer struct {
	drained atomic.Bool
	block   chan struct{}
}

func (d *recordDrainer) Drain() error {
	if d.block != nil {
		<-d.block
	}
	d.drained.Store(true)
	return nil
}

func waitState(t *testing.T, r *LifecycleRunner, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached state %d, at %d", want, r.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopDrainsBeforeStopping(t *testing.T) {
	d := &recordDrainer{}
	var stopped atomic.Bool
	r := NewLifecycleRunner(d, Hooks{OnStop: func() { stopped.Store(true) }}, time.Second)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()
	waitState(t, r, StateRunning)

	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !d.drained.Load() || !stopped.Load() {
		t.Fatalf("drained=%v stopped=%v, want both", d.drained.Load(), stopped.Load())
	}
	if r.State() != StateStopped {
		t.Fatalf("state = %d, want stopped", r.State())
	}
}

func TestContextCancelStopsRunner(t *testing.T) {
	d := &recordDrainer{}
	r := NewLifecycleRunner(d, Hooks{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	waitState(t, r, StateRunning)

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !d.drained.Load() {
		t.Fatalf("expected drain on context cancel")
	}
}

func TestSlowDrainerHitsTimeout(t *testing.T) {
	d := &recordDrainer{block: make(chan struct{})}
	defer close(d.block)
	r := NewLifecycleRunner(d, Hooks{}, 20*time.Millisecond)

	go func() { _ = r.Run(context.Background()) }()
	waitState(t, r, StateRunning)

	if err := r.Stop(); err == nil {
		t.Fatalf("expected drain timeout error")
	}
}

func TestRunRejectsSecondStart(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	go func() { _ = r.Run(context.Background()) }()
	waitState(t, r, StateRunning)
	defer func() { _ = r.Stop() }()

	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected second Run to fail")
	}
}
