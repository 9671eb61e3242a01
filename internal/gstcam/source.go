package gstcam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/onidzelskyi/stereo-camera/internal/capture"
	"github.com/onidzelskyi/stereo-camera/internal/store"
)

const (
	defaultBuffers = 4

	// busPollInterval bounds bus monitor latency on shutdown.
	busPollInterval = 50 * time.Millisecond
)

// ErrNotStarted is returned by Requeue before Start has been called.
var ErrNotStarted = errors.New("gstcam: source not started")

// Source captures frames from a camera device and delivers them to a
// completion handler. It implements the capture contract: every completed
// request is owned by the handler until Requeue returns it to the pool.
type Source struct {
	cfg      Config
	geometry store.Geometry
	logger   *slog.Logger

	elements *PipelineElements

	// free holds requests awaiting capture. onNewSample draws from it
	// without blocking: pool exhaustion means the handler is holding all
	// requests, so the sample is dropped.
	free chan *capture.Request

	started  atomic.Bool
	stopping atomic.Bool
	fatal    atomic.Pointer[error]

	delivered atomic.Uint64
	dropped   atomic.Uint64

	cancelBus chan struct{}
	monitorWG sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// NewSource validates the configuration and derives the capture geometry.
// The pipeline is not created until Start.
func NewSource(cfg Config, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	format := store.PixelFormat(cfg.Format)
	if format == "" {
		format = store.FormatBGRx
	}
	geo := store.Geometry{
		Width:  cfg.Width,
		Height: cfg.Height,
		Stride: cfg.Width * format.BytesPerPixel(),
		Format: format,
	}
	if !geo.Valid() {
		return nil, fmt.Errorf("gstcam: invalid capture geometry %s", geo)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("gstcam: fps must be positive, got %v", cfg.FPS)
	}
	if cfg.Buffers == 0 {
		cfg.Buffers = defaultBuffers
	}
	if cfg.Buffers < 1 {
		return nil, fmt.Errorf("gstcam: buffers must be at least 1, got %d", cfg.Buffers)
	}
	cfg.Format = string(format)
	return &Source{
		cfg:      cfg,
		geometry: geo,
		logger:   logger,
	}, nil
}

// Geometry returns the negotiated capture geometry.
func (s *Source) Geometry() store.Geometry {
	return s.geometry
}

// Start creates the camera pipeline, allocates the request pool and begins
// delivering completed requests to the handler. The handler runs on the
// GStreamer streaming thread and must not block for long.
func (s *Source) Start(ctx context.Context, complete capture.CompletionHandler) error {
	if complete == nil {
		return errors.New("gstcam: completion handler is required")
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("gstcam: source already started")
	}

	elements, err := CreatePipeline(s.cfg)
	if err != nil {
		return fmt.Errorf("gstcam: %w", err)
	}
	s.elements = elements

	frameSize := s.geometry.FrameSize()
	s.free = make(chan *capture.Request, s.cfg.Buffers)
	for i := 0; i < s.cfg.Buffers; i++ {
		s.free <- &capture.Request{
			ID:     uint32(i),
			Planes: []capture.Plane{{Data: make([]byte, frameSize)}},
		}
	}

	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onNewSample(sink, complete)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		DestroyPipeline(elements)
		return fmt.Errorf("gstcam: failed to start pipeline: %w", err)
	}

	s.cancelBus = make(chan struct{})
	s.monitorWG.Add(1)
	go s.monitorBus()

	s.logger.Info("camera: capture started",
		"element", elements.Source.GetName(),
		"geometry", s.geometry.String(),
		"fps", s.cfg.FPS,
		"buffers", s.cfg.Buffers)

	return nil
}

// onNewSample copies the newest camera buffer into a pooled request and
// hands it to the completion handler. Runs on the GStreamer streaming
// thread.
func (s *Source) onNewSample(sink *app.Sink, complete capture.CompletionHandler) gst.FlowReturn {
	if s.stopping.Load() {
		return gst.FlowEOS
	}

	sample := sink.PullSample()
	if sample == nil {
		// Graceful degradation: skip frame instead of terminating stream
		s.logger.Warn("camera: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		s.logger.Warn("camera: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		s.logger.Warn("camera: empty buffer received")
		return gst.FlowOK
	}

	var req *capture.Request
	select {
	case req = <-s.free:
	default:
		// All requests are held by the consumer. Drop the sample; the
		// next one carries fresher pixels anyway.
		buffer.Unmap()
		s.dropped.Add(1)
		return gst.FlowOK
	}

	// Copy into the pooled plane (GStreamer will reuse its buffer). The
	// plane keeps its capacity; BytesUsed reports what the device
	// actually produced, which the consumer clamps on ingest.
	copy(req.Planes[0].Data, data)
	req.Planes[0].BytesUsed = len(data)
	req.Status = capture.RequestComplete
	buffer.Unmap()

	s.delivered.Add(1)
	complete(req)

	return gst.FlowOK
}

// Requeue returns a completed request to the pool, making it available for
// the next capture. Every delivered request must be requeued exactly once.
func (s *Source) Requeue(req *capture.Request) error {
	if req == nil {
		return errors.New("gstcam: cannot requeue nil request")
	}
	if s.free == nil {
		return ErrNotStarted
	}
	req.Planes[0].BytesUsed = 0
	select {
	case s.free <- req:
		return nil
	default:
		// Pool full means this request was requeued twice.
		return fmt.Errorf("gstcam: double requeue of request %d", req.ID)
	}
}

// Stop halts capture. When Stop returns the completion handler will not be
// invoked again: setting the pipeline to NULL blocks until the streaming
// thread has exited. Idempotent.
func (s *Source) Stop() error {
	s.stopOnce.Do(func() {
		if !s.started.Load() {
			return
		}
		s.stopping.Store(true)

		if err := DestroyPipeline(s.elements); err != nil {
			s.stopErr = err
		}

		if s.cancelBus != nil {
			close(s.cancelBus)
		}
		s.monitorWG.Wait()

		s.logger.Info("camera: capture stopped",
			"frames_delivered", s.delivered.Load(),
			"frames_dropped", s.dropped.Load())
	})
	return s.stopErr
}

// Err returns the terminal pipeline error, if any.
func (s *Source) Err() error {
	if errp := s.fatal.Load(); errp != nil {
		return *errp
	}
	return nil
}

// Stats returns cumulative delivery counters.
func (s *Source) Stats() (delivered, dropped uint64) {
	return s.delivered.Load(), s.dropped.Load()
}

func (s *Source) monitorBus() {
	defer s.monitorWG.Done()

	bus := s.elements.Pipeline.GetPipelineBus()

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
			s.logger.Info("camera: end of stream")
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			err := fmt.Errorf("gstcam: pipeline error: %s", gerr.Error())
			s.fatal.CompareAndSwap(nil, &err)
			s.logger.Error("camera: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString())
		}
	}
}
