package gstout

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// ErrClosed is returned by Push after the sink has been closed.
var ErrClosed = errors.New("gstout: sink closed")

// ErrBackpressure is returned by Push when the downstream pipeline has
// signalled enough-data and cannot accept a buffer right now. Callers are
// expected to drop the frame and retry on their next cycle, not to wait.
var ErrBackpressure = errors.New("gstout: pipeline saturated")

const (
	// busPollInterval bounds how long Close waits between bus polls.
	busPollInterval = 50 * time.Millisecond
	// eosTimeout bounds how long Close waits for the EOS to travel
	// through the encoder before forcing the pipeline to NULL.
	eosTimeout = 3 * time.Second
)

// Sink streams raw frames to a UDP destination as RTP/H.264.
//
// Push hands a frame to the pipeline with an explicit timestamp and
// duration. The sink never blocks on a saturated pipeline: Push returns
// ErrBackpressure and the frame is dropped. Close sends EOS, waits for it
// to drain, and tears the pipeline down.
type Sink struct {
	cfg      Config
	elements *PipelineElements
	logger   *slog.Logger

	saturated atomic.Bool
	closed    atomic.Bool
	fatal     atomic.Pointer[error]

	pushed  atomic.Uint64
	dropped atomic.Uint64

	eosReached chan struct{}
	monitorWG  sync.WaitGroup
	cancelBus  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewSink creates the outbound pipeline, starts it, and begins monitoring
// its bus. The returned sink is ready for Push.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("gstout: destination host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("gstout: invalid destination port %d", cfg.Port)
	}

	elements, err := CreatePipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("gstout: %w", err)
	}

	s := &Sink{
		cfg:        cfg,
		elements:   elements,
		logger:     logger,
		eosReached: make(chan struct{}),
		cancelBus:  make(chan struct{}),
	}

	// The appsrc raises enough-data when its internal queue fills and
	// need-data once it drains again. Track that as a saturation flag so
	// Push can refuse without blocking.
	elements.AppSrc.SetCallbacks(&app.SourceCallbacks{
		NeedDataFunc: func(_ *app.Source, _ uint) {
			s.saturated.Store(false)
		},
		EnoughDataFunc: func(_ *app.Source) {
			s.saturated.Store(true)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		DestroyPipeline(elements)
		return nil, fmt.Errorf("gstout: failed to start pipeline: %w", err)
	}

	s.monitorWG.Add(1)
	go s.monitorBus()

	logger.Info("stream-out: pipeline started",
		"destination", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		"bitrate_kbps", cfg.BitrateKbps)

	return s, nil
}

// Push sends one frame into the pipeline with the given presentation
// timestamp and duration. Returns ErrBackpressure when the pipeline cannot
// take the buffer (caller drops the frame), ErrClosed after Close, and a
// terminal error when the pipeline itself has failed.
func (s *Sink) Push(data []byte, pts, duration time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if errp := s.fatal.Load(); errp != nil {
		return *errp
	}
	if s.saturated.Load() {
		s.dropped.Add(1)
		return ErrBackpressure
	}

	buffer := gst.NewBufferFromBytes(data)
	buffer.SetPresentationTimestamp(pts)
	buffer.SetDuration(duration)

	switch ret := s.elements.AppSrc.PushBuffer(buffer); ret {
	case gst.FlowOK:
		s.pushed.Add(1)
		return nil
	case gst.FlowFlushing:
		s.dropped.Add(1)
		return ErrBackpressure
	default:
		err := fmt.Errorf("gstout: push rejected: flow return %v", ret)
		s.fatal.CompareAndSwap(nil, &err)
		return err
	}
}

// Close sends EOS through the pipeline, waits for it to drain (bounded),
// and destroys the pipeline. Idempotent.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		// EndStream queues EOS behind the buffers already pushed, so the
		// encoder flushes its lookahead before the pipeline stops.
		s.elements.AppSrc.EndStream()

		select {
		case <-s.eosReached:
		case <-time.After(eosTimeout):
			s.logger.Warn("stream-out: timeout waiting for EOS, forcing teardown")
		}

		close(s.cancelBus)
		s.monitorWG.Wait()

		if err := DestroyPipeline(s.elements); err != nil {
			s.closeErr = err
			return
		}
		s.logger.Info("stream-out: pipeline stopped",
			"frames_pushed", s.pushed.Load(),
			"frames_dropped", s.dropped.Load())
	})
	return s.closeErr
}

// Err returns the terminal pipeline error, if any.
func (s *Sink) Err() error {
	if errp := s.fatal.Load(); errp != nil {
		return *errp
	}
	return nil
}

// Stats returns cumulative push counters.
func (s *Sink) Stats() (pushed, dropped uint64) {
	return s.pushed.Load(), s.dropped.Load()
}

// monitorBus watches pipeline bus messages until cancelled, recording
// errors and signalling EOS completion.
func (s *Sink) monitorBus() {
	defer s.monitorWG.Done()

	bus := s.elements.Pipeline.GetPipelineBus()
	eosSignalled := false

	for {
		select {
		case <-s.cancelBus:
			return
		default:
		}

		// Poll for messages with short timeout for responsive shutdown
		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			if !eosSignalled {
				eosSignalled = true
				close(s.eosReached)
			}
		case gst.MessageError:
			gerr := msg.ParseError()
			err := fmt.Errorf("gstout: pipeline error: %s", gerr.Error())
			s.fatal.CompareAndSwap(nil, &err)
			s.logger.Error("stream-out: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString())
		}
	}
}
