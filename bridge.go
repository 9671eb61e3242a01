package camstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onidzelskyi/stereo-camera/internal/capture"
	"github.com/onidzelskyi/stereo-camera/internal/observe"
	"github.com/onidzelskyi/stereo-camera/internal/pump"
	"github.com/onidzelskyi/stereo-camera/internal/store"
)

// Bridge joins a capture source and a streaming sink across their two
// independent timing domains. It owns the single-slot frame store, registers
// the capture completion handler, and drives the fixed-cadence pump; the
// capture source and the sink are collaborators it references but does not
// own beyond start/stop.
//
// Lifecycle: NewBridge → Start → (streaming) → Stop. The bridge is
// single-session: once stopped it stays stopped.
type Bridge struct {
	fps     float64
	period  time.Duration
	source  capture.Source
	sink    pump.Sink
	store   *store.Store
	pump    *pump.Pump
	metrics *observe.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	started time.Time

	framesStored    uint64
	planesRejected  uint64
	requeueFailures uint64
}

// BridgeOption configures optional bridge collaborators.
type BridgeOption func(*Bridge)

// WithMetrics attaches OpenTelemetry instruments to the bridge. Without it
// the bridge runs metrics-free.
func WithMetrics(m *observe.Metrics) BridgeOption {
	return func(b *Bridge) { b.metrics = m }
}

// NewBridge creates a bridge with fail-fast validation.
//
// Validates at construction time:
//   - source and sink must be non-nil
//   - FPS must be within 0.1-60 (0 selects DefaultFPS)
//   - the source's negotiated geometry must be valid
func NewBridge(cfg BridgeConfig, source CaptureSource, sink Sink, opts ...BridgeOption) (*Bridge, error) {
	if source == nil {
		return nil, fmt.Errorf("camstream: capture source is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("camstream: sink is required")
	}

	fps := cfg.FPS
	if fps == 0 {
		fps = DefaultFPS
	}
	if fps < 0.1 || fps > 60 {
		return nil, fmt.Errorf("camstream: invalid FPS %.2f (must be 0.1-60)", fps)
	}

	geo := source.Geometry()
	if !geo.Valid() {
		return nil, fmt.Errorf("camstream: invalid negotiated geometry %+v", geo)
	}

	b := &Bridge{
		fps:    fps,
		period: time.Duration(float64(time.Second) / fps),
		source: source,
		sink:   sink,
		store:  store.New(geo),
	}
	for _, o := range opts {
		o(b)
	}

	// When metrics are attached, observe the sink from the pump's side.
	emitSink := b.sink
	if b.metrics != nil {
		emitSink = &meteredSink{next: b.sink, metrics: b.metrics}
	}

	p, err := pump.New(b.period, b.store.Read, emitSink)
	if err != nil {
		return nil, fmt.Errorf("camstream: %w", err)
	}
	b.pump = p

	slog.Info("camstream: bridge created",
		"resolution", geo.String(),
		"target_fps", fps,
		"period", b.period,
	)
	return b, nil
}

// Start begins the streaming session: the capture source starts delivering
// completions into the store and the pump starts emitting at the fixed
// cadence. Returns immediately; failures of either start are fatal.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return fmt.Errorf("camstream: bridge already started")
	}

	runCtx, cancel := context.WithCancel(ctx)

	if err := b.source.Start(runCtx, b.onRequestComplete); err != nil {
		cancel()
		return fmt.Errorf("camstream: failed to start capture source: %w", err)
	}
	if err := b.pump.Start(runCtx); err != nil {
		// Unwind the capture side so its callback can never fire against a
		// bridge that never ran.
		if serr := b.source.Stop(); serr != nil {
			slog.Error("camstream: capture stop failed during unwind", "error", serr)
		}
		cancel()
		return fmt.Errorf("camstream: failed to start pump: %w", err)
	}

	b.cancel = cancel
	b.started = time.Now()

	slog.Info("camstream: bridge started",
		"resolution", b.store.Geometry().String(),
		"target_fps", b.fps,
	)
	return nil
}

// onRequestComplete is the capture completion handler. It runs on the
// capture subsystem's goroutine and must stay bounded: clamp, copy, requeue.
func (b *Bridge) onRequestComplete(req *capture.Request) {
	// The request goes back to the subsystem on every path — the pool is
	// finite and requests are single-owner.
	defer func() {
		if err := b.source.Requeue(req); err != nil {
			atomic.AddUint64(&b.requeueFailures, 1)
			slog.Error("camstream: failed to requeue capture request",
				"request_id", req.ID,
				"error", err,
			)
		}
	}()

	if req.Status != capture.RequestComplete {
		slog.Debug("camstream: ignoring non-complete request",
			"request_id", req.ID,
			"status", req.Status.String(),
		)
		return
	}

	for i := range req.Planes {
		plane := &req.Planes[i]
		if _, err := b.store.Write(plane.Data, plane.BytesUsed); err != nil {
			// Malformed plane: the store logged it; skip, not fatal.
			atomic.AddUint64(&b.planesRejected, 1)
			if b.metrics != nil {
				b.metrics.PlanesRejected.Add(context.Background(), 1)
			}
			continue
		}
		atomic.AddUint64(&b.framesStored, 1)
		if b.metrics != nil {
			b.metrics.FramesCaptured.Add(context.Background(), 1)
			if plane.BytesUsed > len(plane.Data) {
				// The store clamped this write to plane capacity.
				b.metrics.PlanesTruncated.Add(context.Background(), 1)
			}
		}
	}
}

// Stop tears the session down in dependency order: capture first (so no
// completion callback can race the teardown), then the pump (which emits
// end-of-stream to the sink). Idempotent.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()

	if cancel == nil {
		slog.Debug("camstream: bridge not started, nothing to stop")
		return nil
	}

	slog.Info("camstream: stopping bridge")

	// Capture stop must complete before anything downstream is torn down.
	srcErr := b.source.Stop()
	if srcErr != nil {
		srcErr = fmt.Errorf("camstream: capture stop: %w", srcErr)
	}

	pumpErr := b.pump.Stop()
	if pumpErr != nil {
		pumpErr = fmt.Errorf("camstream: pump stop: %w", pumpErr)
	}

	cancel()

	stats := b.Stats()
	slog.Info("camstream: bridge stopped",
		"frames_stored", stats.FramesStored,
		"frames_emitted", stats.FramesEmitted,
		"overwrites", stats.FramesOverwritten,
		"uptime", stats.Uptime,
	)

	return errors.Join(srcErr, pumpErr)
}

// Done is closed once the pump has stopped — either via Stop or on a fatal
// sink failure — and end-of-stream has been emitted.
func (b *Bridge) Done() <-chan struct{} {
	return b.pump.Done()
}

// Err returns the pump's terminal error after a fatal sink failure, nil for
// a clean shutdown. Meaningful once Done is closed.
func (b *Bridge) Err() error {
	return b.pump.Err()
}

// Stats returns a snapshot of bridge statistics. Thread-safe.
func (b *Bridge) Stats() BridgeStats {
	ss := b.store.Stats()
	ps := b.pump.Stats()

	b.mu.Lock()
	started := b.started
	b.mu.Unlock()

	var uptime time.Duration
	var fpsReal float64
	if !started.IsZero() {
		uptime = time.Since(started)
		if secs := uptime.Seconds(); secs > 0 {
			fpsReal = float64(ps.Emitted) / secs
		}
	}

	return BridgeStats{
		FramesStored:      atomic.LoadUint64(&b.framesStored),
		FramesOverwritten: ss.Overwrites,
		PlanesTruncated:   ss.Truncations,
		PlanesRejected:    atomic.LoadUint64(&b.planesRejected),
		RequeueFailures:   atomic.LoadUint64(&b.requeueFailures),

		Ticks:             ps.Ticks,
		FramesEmitted:     ps.Emitted,
		EmptyTicks:        ps.EmptyTicks,
		BackpressureSkips: ps.BackpressureSkips,

		Timestamp: ps.Timestamp,
		PumpState: ps.State.String(),

		FPSTarget:  b.fps,
		FPSReal:    fpsReal,
		Resolution: b.store.Geometry().String(),
		Uptime:     uptime,
	}
}

// meteredSink decorates a sink with push metrics.
type meteredSink struct {
	next    pump.Sink
	metrics *observe.Metrics
}

func (m *meteredSink) Push(data []byte, pts, dur time.Duration) error {
	start := time.Now()
	err := m.next.Push(data, pts, dur)
	ctx := context.Background()
	m.metrics.PushDuration.Record(ctx, time.Since(start).Seconds())

	switch {
	case err == nil:
		m.metrics.FramesEmitted.Add(ctx, 1)
	case errors.Is(err, pump.ErrBackpressure):
		m.metrics.TicksSkipped.Add(ctx, 1, observe.ReasonAttr("reason", "backpressure"))
		m.metrics.PushFailures.Add(ctx, 1, observe.ReasonAttr("kind", "backpressure"))
	default:
		m.metrics.PushFailures.Add(ctx, 1, observe.ReasonAttr("kind", "fatal"))
	}
	return err
}

func (m *meteredSink) Close() error {
	return m.next.Close()
}
