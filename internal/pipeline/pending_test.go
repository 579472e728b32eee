package pipeline

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestPendingOperationsDrainRunsQueuedOps(t *testing.T) {
	var p PendingOperations
	var calls atomic.Int32
	p.Add(func() error { calls.Add(1); return nil })
	p.Add(func() error { calls.Add(1); return nil })

	if err := p.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestPendingOperationsDrainRepeatsUntilNoneQueued(t *testing.T) {
	var p PendingOperations
	var rounds atomic.Int32

	p.Add(func() error {
		rounds.Add(1)
		if rounds.Load() < 3 {
			p.Add(func() error {
				rounds.Add(1)
				return nil
			})
		}
		return nil
	})

	if err := p.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rounds.Load() < 2 {
		t.Fatalf("expected Drain to pick up operations queued mid-drain, got %d rounds", rounds.Load())
	}
}

func TestPendingOperationsDrainPropagatesError(t *testing.T) {
	var p PendingOperations
	wantErr := errors.New("boom")
	p.Add(func() error { return wantErr })

	if err := p.Drain(); !errors.Is(err, wantErr) {
		t.Fatalf("expected Drain to propagate the op's error, got %v", err)
	}
}

func TestPendingOperationsDrainWithNothingQueuedReturnsNil(t *testing.T) {
	var p PendingOperations
	if err := p.Drain(); err != nil {
		t.Fatalf("expected nil for an empty drain, got %v", err)
	}
}

func TestPendingOperationsAddAfterCloseIsNoop(t *testing.T) {
	var p PendingOperations
	p.Close()

	var called atomic.Bool
	p.Add(func() error { called.Store(true); return nil })

	if err := p.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if called.Load() {
		t.Fatal("expected op queued after Close to never run")
	}
}
