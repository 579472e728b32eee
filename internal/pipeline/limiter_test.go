package pipeline

import (
	"sync"
	"testing"
)

func TestLimiterAdmitsUpToMaxPlusOneThenRejectsExactlyOne(t *testing.T) {
	l := NewLimiter(2)

	r1, ok1 := l.Admit()
	r2, ok2 := l.Admit()
	r3, ok3 := l.Admit()
	_, ok4 := l.Admit()

	if !ok1 || !ok2 || !ok3 {
		t.Fatalf("expected first three admissions to succeed (count checked before increment), got %v %v %v", ok1, ok2, ok3)
	}
	if ok4 {
		t.Fatal("expected the fourth concurrent admission to be rejected")
	}
	if l.Count() != 3 {
		t.Fatalf("expected count 3, got %d", l.Count())
	}

	r1()
	r2()
	r3()
	if l.Count() != 0 {
		t.Fatalf("expected count 0 after releasing all, got %d", l.Count())
	}
}

func TestLimiterReleaseIsIdempotent(t *testing.T) {
	l := NewLimiter(5)
	release, ok := l.Admit()
	if !ok {
		t.Fatal("expected admission to succeed")
	}
	release()
	release()
	if l.Count() != 0 {
		t.Fatalf("expected count 0 after double release, got %d", l.Count())
	}
}

func TestLimiterAdmitAfterReleaseReopensSlot(t *testing.T) {
	l := NewLimiter(1)
	r1, ok1 := l.Admit()
	r2, ok2 := l.Admit()
	if !ok1 || !ok2 {
		t.Fatal("expected first two admissions to succeed under maxOpen=1 (count > maxOpen rejects)")
	}
	if _, ok := l.Admit(); ok {
		t.Fatal("expected third admission to be rejected")
	}
	r1()
	r2()

	if _, ok := l.Admit(); !ok {
		t.Fatal("expected admission to succeed again once slots are released")
	}
}

func TestLimiterConcurrentAdmitRespectsCeiling(t *testing.T) {
	const maxOpen = 10
	l := NewLimiter(maxOpen)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var accepted int
	releases := make([]Release, 0, maxOpen+20)

	for i := 0; i < maxOpen+20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok := l.Admit()
			if ok {
				mu.Lock()
				accepted++
				releases = append(releases, release)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if int64(accepted) != l.Count() {
		t.Fatalf("accepted count %d does not match limiter count %d", accepted, l.Count())
	}
	if accepted > maxOpen+1 {
		t.Fatalf("expected at most maxOpen+1 (%d) admissions, got %d", maxOpen+1, accepted)
	}

	for _, r := range releases {
		r()
	}
	if l.Count() != 0 {
		t.Fatalf("expected count 0 after releasing all accepted, got %d", l.Count())
	}
}
