package store

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func testGeometry() Geometry {
	return Geometry{Width: 800, Height: 600, Stride: 3200, Format: FormatBGRx}
}

// TestRead_EmptyBeforeFirstWrite validates the empty-store contract.
//
// Contract:
//   - Read() before any Write() returns (zero Frame, false)
//   - No crash, no default image
func TestRead_EmptyBeforeFirstWrite(t *testing.T) {
	s := New(testGeometry())

	frame, ok := s.Read()
	if ok {
		t.Fatalf("Read() on empty store returned ok=true, frame=%+v", frame)
	}
	if frame.Data != nil {
		t.Errorf("Read() on empty store returned non-nil data (%d bytes)", len(frame.Data))
	}

	t.Log("✅ Empty store read returns (zero, false)")
}

// TestWrite_SizeSwitch validates the size-change contract.
//
// Contract:
//   - write(F1, 100 bytes) → read returns F1/100
//   - write(F2, 50 bytes) → read returns F2/50
//     (never F1 truncated to 50, never F2 padded to 100)
func TestWrite_SizeSwitch(t *testing.T) {
	s := New(testGeometry())

	f1 := bytes.Repeat([]byte{0xAA}, 100)
	f2 := bytes.Repeat([]byte{0xBB}, 50)

	if _, err := s.Write(f1, len(f1)); err != nil {
		t.Fatalf("Write(F1) failed: %v", err)
	}
	frame, ok := s.Read()
	if !ok || len(frame.Data) != 100 {
		t.Fatalf("after Write(F1): ok=%v len=%d, want 100", ok, len(frame.Data))
	}
	if !bytes.Equal(frame.Data, f1) {
		t.Fatal("after Write(F1): read bytes differ from F1")
	}

	if _, err := s.Write(f2, len(f2)); err != nil {
		t.Fatalf("Write(F2) failed: %v", err)
	}
	frame, ok = s.Read()
	if !ok || len(frame.Data) != 50 {
		t.Fatalf("after Write(F2): ok=%v len=%d, want 50", ok, len(frame.Data))
	}
	if !bytes.Equal(frame.Data, f2) {
		t.Fatal("after Write(F2): read bytes differ from F2")
	}

	t.Logf("✅ Size switch 100 → 50 bytes observed cleanly (seq=%d)", frame.Seq)
}

// TestRead_Idempotent validates repeated reads without an intervening write.
//
// Contract: same bytes, same length, same sequence number each time.
func TestRead_Idempotent(t *testing.T) {
	s := New(testGeometry())

	payload := []byte("frame-payload")
	if _, err := s.Write(payload, len(payload)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	first, ok := s.Read()
	if !ok {
		t.Fatal("first Read() returned false")
	}
	for i := 0; i < 10; i++ {
		again, ok := s.Read()
		if !ok {
			t.Fatalf("Read() #%d returned false", i+2)
		}
		if again.Seq != first.Seq || !bytes.Equal(again.Data, first.Data) {
			t.Fatalf("Read() #%d differs: seq=%d len=%d, want seq=%d len=%d",
				i+2, again.Seq, len(again.Data), first.Seq, len(first.Data))
		}
	}

	t.Log("✅ Repeated reads returned identical frame")
}

// TestWrite_TruncationPolicy validates the clamped-copy truncation policy.
//
// Contract:
//   - Write(150-byte plane, reported=200) stores exactly 150 bytes
//   - Truncation counter increments, no error, no crash
func TestWrite_TruncationPolicy(t *testing.T) {
	s := New(testGeometry())

	plane := bytes.Repeat([]byte{0x42}, 150)
	seq, err := s.Write(plane, 200)
	if err != nil {
		t.Fatalf("Write(reported=200) returned error: %v", err)
	}
	if seq != 1 {
		t.Errorf("Write() seq = %d, want 1", seq)
	}

	frame, ok := s.Read()
	if !ok {
		t.Fatal("Read() returned false after truncated write")
	}
	if len(frame.Data) != 150 {
		t.Errorf("stored length = %d, want exactly 150 (clamped)", len(frame.Data))
	}

	stats := s.Stats()
	if stats.Truncations != 1 {
		t.Errorf("Truncations = %d, want 1", stats.Truncations)
	}

	t.Logf("✅ Truncation clamped to %d bytes, counter=%d", len(frame.Data), stats.Truncations)
}

// TestWrite_RejectsEmptyPlane validates malformed-plane handling.
//
// Contract: zero-length or zero-reported planes are skipped (ErrEmptyPlane),
// not fatal, and do not disturb the current frame.
func TestWrite_RejectsEmptyPlane(t *testing.T) {
	s := New(testGeometry())

	good := []byte("good")
	if _, err := s.Write(good, len(good)); err != nil {
		t.Fatalf("Write(good) failed: %v", err)
	}

	if _, err := s.Write(nil, 10); !errors.Is(err, ErrEmptyPlane) {
		t.Errorf("Write(nil) error = %v, want ErrEmptyPlane", err)
	}
	if _, err := s.Write([]byte("data"), 0); !errors.Is(err, ErrEmptyPlane) {
		t.Errorf("Write(reported=0) error = %v, want ErrEmptyPlane", err)
	}

	frame, ok := s.Read()
	if !ok || !bytes.Equal(frame.Data, good) {
		t.Fatal("rejected writes disturbed the stored frame")
	}
	if stats := s.Stats(); stats.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", stats.Rejected)
	}

	t.Log("✅ Empty planes rejected without disturbing stored frame")
}

// TestConcurrent_NoTornReads validates the central synchronization property.
//
// Property: for all interleavings of Write and concurrent Read, every Read
// returns either empty or a (buffer, length) pair that was the argument to
// some completed Write — never a mix of two writes' data.
//
// Scenario: a writer alternates between two self-consistent frames of
// DIFFERENT sizes (every byte equals a frame marker, length is a function of
// the marker). A torn read would surface as a length/marker mismatch or a
// mixed-marker buffer.
func TestConcurrent_NoTornReads(t *testing.T) {
	s := New(testGeometry())

	const (
		markerA = 0xA1
		lenA    = 4096
		markerB = 0xB2
		lenB    = 1024
		writes  = 5000
	)

	frameA := bytes.Repeat([]byte{markerA}, lenA)
	frameB := bytes.Repeat([]byte{markerB}, lenB)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(stop)
		for i := 0; i < writes; i++ {
			if i%2 == 0 {
				s.Write(frameA, lenA)
			} else {
				s.Write(frameB, lenB)
			}
		}
	}()

	// Two concurrent readers hammering Read() while the writer runs.
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				frame, ok := s.Read()
				if ok {
					marker := frame.Data[0]
					wantLen := lenA
					if marker == markerB {
						wantLen = lenB
					} else if marker != markerA {
						t.Errorf("unknown marker 0x%02X", marker)
						return
					}
					if len(frame.Data) != wantLen {
						t.Errorf("torn read: marker=0x%02X len=%d, want %d",
							marker, len(frame.Data), wantLen)
						return
					}
					for _, b := range frame.Data {
						if b != marker {
							t.Errorf("torn read: mixed bytes (marker=0x%02X found 0x%02X)", marker, b)
							return
						}
					}
				}
				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}

	wg.Wait()

	stats := s.Stats()
	if stats.Writes != writes {
		t.Errorf("Writes = %d, want %d", stats.Writes, writes)
	}

	t.Logf("✅ %d interleaved writes, no torn reads (overwrites=%d)", writes, stats.Overwrites)
}

// TestWrite_SequenceMonotonic validates arrival sequence numbering.
func TestWrite_SequenceMonotonic(t *testing.T) {
	s := New(testGeometry())

	payload := []byte{1, 2, 3}
	for want := uint64(1); want <= 5; want++ {
		seq, err := s.Write(payload, len(payload))
		if err != nil {
			t.Fatalf("Write() #%d failed: %v", want, err)
		}
		if seq != want {
			t.Errorf("Write() #%d seq = %d, want %d", want, seq, want)
		}
	}

	t.Log("✅ Sequence numbers monotonic from 1")
}
