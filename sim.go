package camstream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onidzelskyi/stereo-camera/internal/capture"
	"github.com/onidzelskyi/stereo-camera/internal/store"
)

// SimConfig configures a simulated capture source.
type SimConfig struct {
	// Geometry is the simulated frame geometry (required).
	Geometry Geometry

	// Interval is the mean completion interval (required).
	Interval time.Duration

	// Jitter is the maximum deviation applied uniformly around Interval.
	// Zero produces a perfectly regular source.
	Jitter time.Duration

	// Buffers is the request pool size. Default 4, mirroring the small
	// in-flight pool of a real capture subsystem.
	Buffers int

	// Fill paints frame content before completion. Receives the frame
	// counter and the plane buffer. Default fills every byte with the
	// low byte of the counter, which makes repeats and drops visible.
	Fill func(n uint64, data []byte)
}

// SimSource is an in-process capture source producing synthetic frames at a
// jittered interval. It honours the full capture contract — completion
// callbacks on its own goroutine, a finite request pool, mandatory requeue —
// so the bridge cannot tell it apart from a real camera.
//
// Used by tests and for running the binary without camera hardware.
type SimSource struct {
	cfg  SimConfig
	free chan *capture.Request

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	completions uint64
	poolMisses  uint64
}

// NewSimSource creates a simulated source with fail-fast validation.
func NewSimSource(cfg SimConfig) (*SimSource, error) {
	if !cfg.Geometry.Valid() {
		return nil, fmt.Errorf("camstream: invalid sim geometry %+v", cfg.Geometry)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("camstream: invalid sim interval %v (must be > 0)", cfg.Interval)
	}
	if cfg.Jitter < 0 || cfg.Jitter >= cfg.Interval {
		return nil, fmt.Errorf("camstream: invalid sim jitter %v (must be in [0, interval))", cfg.Jitter)
	}
	if cfg.Buffers == 0 {
		cfg.Buffers = 4
	}
	if cfg.Fill == nil {
		cfg.Fill = func(n uint64, data []byte) {
			b := byte(n)
			for i := range data {
				data[i] = b
			}
		}
	}

	s := &SimSource{
		cfg:  cfg,
		free: make(chan *capture.Request, cfg.Buffers),
	}
	size := cfg.Geometry.FrameSize()
	for i := 0; i < cfg.Buffers; i++ {
		s.free <- &capture.Request{
			ID:     uint32(i),
			Planes: []capture.Plane{{Data: make([]byte, size)}},
		}
	}
	return s, nil
}

// Geometry implements CaptureSource.
func (s *SimSource) Geometry() store.Geometry {
	return s.cfg.Geometry
}

// Start launches the completion goroutine. Implements CaptureSource.
func (s *SimSource) Start(ctx context.Context, complete capture.CompletionHandler) error {
	if complete == nil {
		return fmt.Errorf("camstream: sim source needs a completion handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("camstream: sim source already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx, complete)

	slog.Debug("camstream: sim source started",
		"interval", s.cfg.Interval,
		"jitter", s.cfg.Jitter,
		"buffers", s.cfg.Buffers,
	)
	return nil
}

func (s *SimSource) run(ctx context.Context, complete capture.CompletionHandler) {
	defer s.wg.Done()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var n uint64

	for {
		wait := s.cfg.Interval
		if s.cfg.Jitter > 0 {
			wait += time.Duration(rng.Int63n(int64(2*s.cfg.Jitter))) - s.cfg.Jitter
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		var req *capture.Request
		select {
		case req = <-s.free:
		default:
			// Pool exhausted: a real subsystem would stall here; the sim
			// drops the frame instead and keeps going.
			atomic.AddUint64(&s.poolMisses, 1)
			slog.Debug("camstream: sim pool exhausted, dropping frame")
			continue
		}

		n++
		plane := &req.Planes[0]
		s.cfg.Fill(n, plane.Data)
		plane.BytesUsed = len(plane.Data)
		req.Status = capture.RequestComplete

		atomic.AddUint64(&s.completions, 1)
		complete(req)
	}
}

// Requeue returns a request to the pool. Implements CaptureSource.
func (s *SimSource) Requeue(req *capture.Request) error {
	if req == nil {
		return fmt.Errorf("camstream: cannot requeue nil request")
	}
	for i := range req.Planes {
		req.Planes[i].BytesUsed = 0
	}
	select {
	case s.free <- req:
		return nil
	default:
		// Requests are single-owner; a full pool means a double requeue.
		return fmt.Errorf("camstream: request %d requeued twice", req.ID)
	}
}

// Stop halts the completion goroutine and blocks until it has exited, so no
// handler invocation can race teardown. Implements CaptureSource. Idempotent.
func (s *SimSource) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()

	slog.Debug("camstream: sim source stopped",
		"completions", atomic.LoadUint64(&s.completions),
		"pool_misses", atomic.LoadUint64(&s.poolMisses),
	)
	return nil
}

// Completions returns the number of completed captures delivered so far.
func (s *SimSource) Completions() uint64 {
	return atomic.LoadUint64(&s.completions)
}
