// Package store implements the single-slot frame hand-off point between the
// capture callback and the cadence pump.
//
// The store is a mailbox, not a queue: a new frame overwrites the previous
// one, so a slow reader only ever pays for the latest frame. Both sides
// synchronize on one mutex guarding the (buffer, length) pair, which is what
// rules out torn reads when consecutive writes change the frame size.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyPlane is returned by Write for zero-length or zero-reported planes.
// Malformed planes are recoverable: the caller logs, skips, and carries on.
var ErrEmptyPlane = errors.New("store: empty plane")

// Stats is a snapshot of store operational counters.
type Stats struct {
	// Writes is the total number of frames written (completed captures seen).
	Writes uint64
	// Overwrites counts writes that replaced a frame no reader had consumed.
	Overwrites uint64
	// Truncations counts writes whose reported size exceeded plane capacity.
	Truncations uint64
	// Rejected counts malformed (empty) planes that were skipped.
	Rejected uint64
	// LastSeq is the sequence number of the most recent frame, 0 if none.
	LastSeq uint64
}

// Store holds the single most-recently-completed frame.
//
// Thread-safety: one writer (the capture completion callback) and any number
// of readers (in practice one, the cadence pump) may call concurrently.
type Store struct {
	geo Geometry

	mu         sync.Mutex
	buf        []byte // owned storage; nil until first write
	length     int
	seq        uint64
	capturedAt time.Time
	traceID    string
	fresh      bool // true until the current frame is read once

	// Counters (atomic so Stats never contends with the swap).
	writes      uint64
	overwrites  uint64
	truncations uint64
	rejected    uint64
}

// New creates an empty store for the given negotiated geometry.
func New(geo Geometry) *Store {
	return &Store{geo: geo}
}

// Write atomically replaces the current frame with a copy of data.
//
// reported is the producer-reported payload size; it is clamped to len(data)
// so the store never overreads a plane. A reported size larger than the plane
// capacity records a truncation warning and proceeds with the clamped bytes.
//
// The internal buffer is reused when the incoming size matches and replaced
// under the same lock otherwise, so a concurrent Read always observes a
// consistent (buffer, length) pair.
//
// Returns the assigned arrival sequence number.
func (s *Store) Write(data []byte, reported int) (uint64, error) {
	if len(data) == 0 || reported <= 0 {
		atomic.AddUint64(&s.rejected, 1)
		slog.Warn("store: skipping malformed plane",
			"capacity", len(data),
			"reported", reported,
		)
		return 0, fmt.Errorf("%w (capacity=%d reported=%d)", ErrEmptyPlane, len(data), reported)
	}

	n := reported
	if n > len(data) {
		// Never overread: clamp to capacity and keep streaming.
		atomic.AddUint64(&s.truncations, 1)
		slog.Warn("store: payload larger than plane, truncating",
			"reported", reported,
			"capacity", len(data),
		)
		n = len(data)
	}

	s.mu.Lock()
	if s.buf != nil && s.fresh {
		atomic.AddUint64(&s.overwrites, 1)
	}
	if len(s.buf) != n {
		// Size change: install a fresh buffer while holding the lock so no
		// reader is mid-copy on the old one when it goes away.
		s.buf = make([]byte, n)
	}
	copy(s.buf, data[:n])
	s.length = n
	s.seq++
	s.capturedAt = time.Now()
	s.traceID = uuid.New().String()
	s.fresh = true
	seq := s.seq
	s.mu.Unlock()

	atomic.AddUint64(&s.writes, 1)
	return seq, nil
}

// Read returns a snapshot of the latest frame, or false if no frame has ever
// arrived. Non-blocking; callers skip their tick on false.
//
// Repeated reads with no intervening write return identical bytes and length.
func (s *Store) Read() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil {
		return Frame{}, false
	}

	data := make([]byte, s.length)
	copy(data, s.buf[:s.length])
	s.fresh = false

	return Frame{
		Data:       data,
		Geometry:   s.geo,
		Seq:        s.seq,
		CapturedAt: s.capturedAt,
		TraceID:    s.traceID,
	}, true
}

// Geometry returns the negotiated geometry the store was created with.
func (s *Store) Geometry() Geometry {
	return s.geo
}

// Stats returns a snapshot of operational counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	lastSeq := s.seq
	s.mu.Unlock()

	return Stats{
		Writes:      atomic.LoadUint64(&s.writes),
		Overwrites:  atomic.LoadUint64(&s.overwrites),
		Truncations: atomic.LoadUint64(&s.truncations),
		Rejected:    atomic.LoadUint64(&s.rejected),
		LastSeq:     lastSeq,
	}
}
