// Package pump implements the fixed-cadence emission loop that feeds stored
// frames into the downstream sink.
//
// The pump and the capture callback live in independent timing domains; the
// pump only ever sees the store's latest snapshot. Output timestamps are
// synthetic (tick count × period), so the emitted stream has perfectly
// uniform spacing no matter how much the capture or the scheduler jitters.
package pump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onidzelskyi/stereo-camera/internal/store"
)

// ErrBackpressure is returned by a Sink whose queue is momentarily full.
// The pump treats it as "skip this tick", never as "wait": blocking the tick
// handler longer than one period would delay the whole timer loop.
var ErrBackpressure = errors.New("pump: sink backpressure")

// Sink is the opaque consumer of timestamped raw frames. It owns all encode
// and transport concerns.
//
// Push must not retain data after returning. A nil return advances the
// stream; ErrBackpressure skips the tick; any other error is fatal and stops
// the pump. Close signals end-of-stream and is called exactly once.
type Sink interface {
	Push(data []byte, pts, duration time.Duration) error
	Close() error
}

// ReadFunc returns the latest stored frame, or false when none has arrived.
type ReadFunc func() (store.Frame, bool)

// State is the pump lifecycle state.
type State int32

const (
	// StateIdle means Start has not been called yet.
	StateIdle State = iota
	// StateRunning means the tick loop is live.
	StateRunning
	// StateStopped is terminal: no further ticks are scheduled and
	// end-of-stream has been emitted to the sink.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of pump counters.
type Stats struct {
	// Ticks is the total number of timer ticks handled.
	Ticks uint64
	// Emitted is the number of frames successfully pushed to the sink.
	Emitted uint64
	// EmptyTicks counts ticks skipped because no frame had arrived yet.
	EmptyTicks uint64
	// BackpressureSkips counts ticks skipped because the sink refused data.
	BackpressureSkips uint64
	// Timestamp is the next presentation timestamp to be emitted.
	Timestamp time.Duration
	// State is the current lifecycle state.
	State State
}

// Pump drives the sink at a fixed period with synthetic timestamps.
//
// Lifecycle: New → Start → (ticks) → Stop. Stop is idempotent. A fatal sink
// error stops the pump on its own; either way end-of-stream is emitted to
// the sink exactly once, and the terminal error (if any) is available via
// Err after Done is closed.
type Pump struct {
	period time.Duration
	read   ReadFunc
	sink   Sink

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	state    atomic.Int32
	stopping atomic.Bool
	closed   sync.Once

	errMu sync.Mutex
	err   error

	ticks      uint64
	emitted    uint64
	emptyTicks uint64
	bpSkips    uint64
	timestamp  atomic.Int64 // next pts, nanoseconds
}

// New creates a pump with fail-fast validation.
func New(period time.Duration, read ReadFunc, sink Sink) (*Pump, error) {
	if period <= 0 {
		return nil, fmt.Errorf("pump: invalid period %v (must be > 0)", period)
	}
	if read == nil {
		return nil, fmt.Errorf("pump: read function is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("pump: sink is required")
	}
	return &Pump{
		period: period,
		read:   read,
		sink:   sink,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the tick loop. Returns an error if already started.
func (p *Pump) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return fmt.Errorf("pump: already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state.Store(int32(StateRunning))

	slog.Info("pump: started", "period", p.period)

	go p.run(loopCtx)
	return nil
}

// run is the single-goroutine tick loop.
func (p *Pump) run(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finish(nil)
			return

		case <-ticker.C:
			// Stop may have raced the ticker; never push after shutdown.
			if p.stopping.Load() {
				p.finish(nil)
				return
			}

			atomic.AddUint64(&p.ticks, 1)

			frame, ok := p.read()
			if !ok {
				// No frame has ever arrived: skip the tick, keep the clock.
				atomic.AddUint64(&p.emptyTicks, 1)
				slog.Debug("pump: store empty, skipping tick")
				continue
			}

			pts := time.Duration(p.timestamp.Load())
			err := p.sink.Push(frame.Data, pts, p.period)
			switch {
			case err == nil:
				p.timestamp.Add(int64(p.period))
				atomic.AddUint64(&p.emitted, 1)

			case errors.Is(err, ErrBackpressure):
				atomic.AddUint64(&p.bpSkips, 1)
				slog.Warn("pump: sink backpressure, skipping tick",
					"seq", frame.Seq,
					"pts", pts,
				)

			default:
				slog.Error("pump: fatal sink push failure",
					"error", err,
					"seq", frame.Seq,
					"pts", pts,
					"emitted", atomic.LoadUint64(&p.emitted),
				)
				p.finish(err)
				return
			}
		}
	}
}

// finish transitions to STOPPED and emits end-of-stream exactly once.
func (p *Pump) finish(err error) {
	if err != nil {
		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()
	}

	p.closed.Do(func() {
		if cerr := p.sink.Close(); cerr != nil {
			slog.Error("pump: sink close failed", "error", cerr)
		} else {
			slog.Info("pump: end-of-stream emitted",
				"emitted", atomic.LoadUint64(&p.emitted),
				"ticks", atomic.LoadUint64(&p.ticks),
			)
		}
	})

	p.state.Store(int32(StateStopped))
	close(p.done)
}

// Stop halts the tick loop and waits for end-of-stream to be emitted.
// Idempotent; safe to call before Start (no-op) or after a fatal stop.
func (p *Pump) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		slog.Debug("pump: not started, nothing to stop")
		return nil
	}

	p.stopping.Store(true)
	cancel()

	select {
	case <-p.done:
	case <-time.After(3 * time.Second):
		return fmt.Errorf("pump: stop timeout exceeded")
	}
	return nil
}

// Done is closed once the pump has reached STOPPED and end-of-stream has
// been emitted.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Err returns the terminal error after a fatal sink failure, or nil for a
// clean shutdown. Meaningful once Done is closed.
func (p *Pump) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// State returns the current lifecycle state.
func (p *Pump) State() State {
	return State(p.state.Load())
}

// Stats returns a snapshot of pump counters.
func (p *Pump) Stats() Stats {
	return Stats{
		Ticks:             atomic.LoadUint64(&p.ticks),
		Emitted:           atomic.LoadUint64(&p.emitted),
		EmptyTicks:        atomic.LoadUint64(&p.emptyTicks),
		BackpressureSkips: atomic.LoadUint64(&p.bpSkips),
		Timestamp:         time.Duration(p.timestamp.Load()),
		State:             p.State(),
	}
}
