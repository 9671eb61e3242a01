package pump

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onidzelskyi/stereo-camera/internal/store"
)

type push struct {
	pts time.Duration
	dur time.Duration
	len int
}

// recordSink records every Push/Close for assertion. errFor lets a test
// inject a (possibly fatal) error for a given Push call index.
type recordSink struct {
	mu     sync.Mutex
	calls  int
	pushes []push
	closes int
	errFor func(callIndex int) error
}

func (r *recordSink) Push(data []byte, pts, dur time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.calls
	r.calls++
	if r.errFor != nil {
		if err := r.errFor(idx); err != nil {
			return err
		}
	}
	r.pushes = append(r.pushes, push{pts: pts, dur: dur, len: len(data)})
	return nil
}

func (r *recordSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func (r *recordSink) snapshot() ([]push, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]push, len(r.pushes))
	copy(out, r.pushes)
	return out, r.closes
}

func newStoreWithFrame(t *testing.T, size int) *store.Store {
	t.Helper()
	s := store.New(store.Geometry{Width: 4, Height: 4, Stride: 16, Format: store.FormatBGRx})
	data := make([]byte, size)
	if _, err := s.Write(data, size); err != nil {
		t.Fatalf("seed Write() failed: %v", err)
	}
	return s
}

// TestPump_TimestampArithmetic validates the synthetic timestamp contract.
//
// Contract:
//   - Each emitting tick advances the timestamp by exactly the period
//   - Output timestamps form an arithmetic sequence starting at 0
//   - Duration of every emitted frame equals the period
func TestPump_TimestampArithmetic(t *testing.T) {
	const period = 2 * time.Millisecond
	s := newStoreWithFrame(t, 64)
	sink := &recordSink{}

	p, err := New(period, s.Read, sink)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Let a few dozen ticks elapse, then stop.
	time.Sleep(60 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	pushes, closes := sink.snapshot()
	if len(pushes) < 10 {
		t.Fatalf("expected at least 10 pushes, got %d", len(pushes))
	}
	for i, got := range pushes {
		want := time.Duration(i) * period
		if got.pts != want {
			t.Fatalf("push %d: pts=%v, want %v (drift!)", i, got.pts, want)
		}
		if got.dur != period {
			t.Errorf("push %d: duration=%v, want %v", i, got.dur, period)
		}
	}
	if closes != 1 {
		t.Errorf("Close() called %d times, want exactly 1", closes)
	}

	t.Logf("✅ %d pushes with uniform %v spacing, one Close()", len(pushes), period)
}

// TestPump_EmptyStoreSkipsTick validates the empty-store tick policy.
//
// Contract:
//   - Ticks with an empty store emit nothing and do not advance the timestamp
//   - The first emitted frame still carries pts=0
func TestPump_EmptyStoreSkipsTick(t *testing.T) {
	const period = 2 * time.Millisecond
	s := store.New(store.Geometry{Width: 4, Height: 4, Stride: 16, Format: store.FormatBGRx})
	sink := &recordSink{}

	p, err := New(period, s.Read, sink)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Leave the store empty for a while, then write the first frame.
	time.Sleep(20 * time.Millisecond)
	data := make([]byte, 32)
	if _, err := s.Write(data, len(data)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	pushes, _ := sink.snapshot()
	if len(pushes) == 0 {
		t.Fatal("no pushes after first write")
	}
	if pushes[0].pts != 0 {
		t.Errorf("first emitted pts=%v, want 0 (empty ticks must not advance clock)", pushes[0].pts)
	}

	stats := p.Stats()
	if stats.EmptyTicks == 0 {
		t.Error("EmptyTicks = 0, expected some skipped ticks before first write")
	}

	t.Logf("✅ %d empty ticks skipped, first pts=0, emitted=%d", stats.EmptyTicks, stats.Emitted)
}

// TestPump_BackpressureSkipsWithoutAdvancing validates the backpressure policy.
//
// Contract: ErrBackpressure means "skip this tick, not wait" — the tick emits
// nothing and the next successful push reuses the same timestamp.
func TestPump_BackpressureSkipsWithoutAdvancing(t *testing.T) {
	const period = 2 * time.Millisecond
	s := newStoreWithFrame(t, 64)

	// Refuse pushes 2, 3, 4 (after two successes).
	sink := &recordSink{errFor: func(i int) error {
		if i == 2 {
			return ErrBackpressure
		}
		return nil
	}}

	p, err := New(period, s.Read, sink)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	pushes, _ := sink.snapshot()
	if len(pushes) < 4 {
		t.Fatalf("expected at least 4 pushes, got %d", len(pushes))
	}
	// Timestamps must still be a gapless arithmetic sequence: the refused
	// tick consumed wall time but not stream time.
	for i, got := range pushes {
		want := time.Duration(i) * period
		if got.pts != want {
			t.Fatalf("push %d: pts=%v, want %v", i, got.pts, want)
		}
	}

	stats := p.Stats()
	if stats.BackpressureSkips == 0 {
		t.Error("BackpressureSkips = 0, want at least 1")
	}

	t.Logf("✅ Backpressure skipped %d ticks without advancing the clock", stats.BackpressureSkips)
}

// TestPump_FatalPushStopsAndEmitsEOS validates the fatal sub-state.
//
// Contract:
//   - A fatal push failure stops ticking
//   - End-of-stream is still emitted (exactly one Close)
//   - The terminal error is surfaced via Err() after Done()
func TestPump_FatalPushStopsAndEmitsEOS(t *testing.T) {
	const period = 2 * time.Millisecond
	s := newStoreWithFrame(t, 64)

	fatal := errors.New("transport permanently broken")
	sink := &recordSink{errFor: func(i int) error {
		if i >= 3 {
			return fatal
		}
		return nil
	}}

	p, err := New(period, s.Read, sink)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after fatal push failure")
	}

	if got := p.Err(); !errors.Is(got, fatal) {
		t.Errorf("Err() = %v, want %v", got, fatal)
	}
	if p.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}

	pushes, closes := sink.snapshot()
	if len(pushes) != 3 {
		t.Errorf("pushes after fatal = %d, want exactly 3", len(pushes))
	}
	if closes != 1 {
		t.Errorf("Close() called %d times, want exactly 1 (EOS before returning)", closes)
	}

	// Stop after a fatal stop must remain safe.
	if err := p.Stop(); err != nil {
		t.Errorf("Stop() after fatal stop failed: %v", err)
	}

	t.Logf("✅ Fatal push stopped pump, EOS emitted once, Err()=%v", p.Err())
}

// TestPump_StopIdempotent validates repeated and premature Stop calls.
func TestPump_StopIdempotent(t *testing.T) {
	s := newStoreWithFrame(t, 8)
	sink := &recordSink{}

	p, err := New(time.Millisecond, s.Read, sink)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// Stop before Start is a no-op.
	if err := p.Stop(); err != nil {
		t.Errorf("Stop() before Start failed: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := p.Stop(); err != nil {
			t.Errorf("Stop() #%d failed: %v", i+1, err)
		}
	}

	_, closes := sink.snapshot()
	if closes != 1 {
		t.Errorf("Close() called %d times, want exactly 1", closes)
	}

	t.Log("✅ Stop() idempotent, single EOS")
}

// TestPump_NoPushAfterStop validates the shutdown sequencing property.
//
// Contract: after Stop() returns, zero further Push calls occur on the sink.
func TestPump_NoPushAfterStop(t *testing.T) {
	s := newStoreWithFrame(t, 8)
	sink := &recordSink{}

	p, err := New(time.Millisecond, s.Read, sink)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	before, closes := sink.snapshot()

	time.Sleep(20 * time.Millisecond)
	after, _ := sink.snapshot()

	if len(after) != len(before) {
		t.Errorf("pushes continued after Stop(): %d → %d", len(before), len(after))
	}
	if closes != 1 {
		t.Errorf("Close() called %d times, want 1", closes)
	}

	t.Logf("✅ No pushes after Stop() (%d total)", len(before))
}

// TestNew_FailFast validates constructor validation.
func TestNew_FailFast(t *testing.T) {
	s := newStoreWithFrame(t, 8)
	sink := &recordSink{}

	testCases := []struct {
		name      string
		period    time.Duration
		read      ReadFunc
		sink      Sink
		shouldErr bool
	}{
		{"valid", 33 * time.Millisecond, s.Read, sink, false},
		{"zero_period", 0, s.Read, sink, true},
		{"negative_period", -time.Second, s.Read, sink, true},
		{"nil_read", 33 * time.Millisecond, nil, sink, true},
		{"nil_sink", 33 * time.Millisecond, s.Read, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.period, tc.read, tc.sink)
			if tc.shouldErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.shouldErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
