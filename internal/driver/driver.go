// Package driver forces the chat UI's virtualization layer to materialize
// the full message history: it repeatedly scrolls the conversation
// container to its origin, waits for the layer to mount older messages,
// rescans, and stops once the captured count stops growing.
package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrNoScrollContainer is reported when no scrollable conversation
// container can be located. It indicates a host-site structural change,
// not a transient state, and is never retried within a run.
var ErrNoScrollContainer = errors.New("no scrollable conversation container found")

// ErrRunInProgress is returned when a completion run is requested while
// one is already active. Callers treat it as a no-op, not a failure.
var ErrRunInProgress = errors.New("history completion already running")

// State of the completion state machine.
type State int32

const (
	StateIdle State = iota
	StateScrolling
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateScrolling:
		return "scrolling"
	case StateSettled:
		return "settled"
	default:
		return "idle"
	}
}

// Surface is the scrollable view under capture.
type Surface interface {
	// LocateScrollContainer resolves the container once per run; failure
	// aborts the run before the loop starts.
	LocateScrollContainer(ctx context.Context) error
	ScrollToTop(ctx context.Context) error
	ScrollToBottom(ctx context.Context) error
}

// Rescanner triggers one full rescan of the visible candidates.
type Rescanner interface {
	Rescan(ctx context.Context) (int, error)
}

// Counter reports the total captured record count.
type Counter interface {
	Count() int
}

// Result of a completed run.
type Result struct {
	Total  int `json:"total"`
	Rounds int `json:"rounds"`
}

// Driver owns one scroll-and-wait completion loop at a time.
type Driver struct {
	surface Surface
	scanner Rescanner
	counter Counter
	logger  *zap.Logger

	// The settle delay and stability threshold are empirically chosen;
	// the true end-of-history condition is not observable through this
	// interface, so both stay tunable.
	settle       time.Duration
	stableRounds int
	maxRounds    int

	running atomic.Bool
	state   atomic.Int32
}

// Option tunes a Driver.
type Option func(*Driver)

// WithSettleDelay sets the per-iteration wait for the virtualization
// layer to mount newly revealed nodes.
func WithSettleDelay(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.settle = d
		}
	}
}

// WithStableRounds sets how many consecutive unchanged iterations count
// as stability. Fewer than the default risks stopping on a transient
// render plateau.
func WithStableRounds(n int) Option {
	return func(dr *Driver) {
		if n > 0 {
			dr.stableRounds = n
		}
	}
}

// WithMaxRounds bounds the loop regardless of stability.
func WithMaxRounds(n int) Option {
	return func(dr *Driver) {
		if n > 0 {
			dr.maxRounds = n
		}
	}
}

func New(surface Surface, scanner Rescanner, counter Counter, logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		surface:      surface,
		scanner:      scanner,
		counter:      counter,
		logger:       logger,
		settle:       600 * time.Millisecond,
		stableRounds: 3,
		maxRounds:    500,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State reports the current machine state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Running reports whether a run is active.
func (d *Driver) Running() bool {
	return d.running.Load()
}

// Run executes one completion run. A concurrent call while a run is
// active returns ErrRunInProgress. On success the scroll position is
// restored to the bottom and the final captured count reported.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Result{}, ErrRunInProgress
	}
	defer d.running.Store(false)

	res, err := d.run(ctx)
	if err != nil {
		// A failed run must not leave the machine reporting mid-scroll.
		d.state.Store(int32(StateIdle))
	}
	return res, err
}

func (d *Driver) run(ctx context.Context) (Result, error) {
	d.state.Store(int32(StateIdle))
	if err := d.surface.LocateScrollContainer(ctx); err != nil {
		return Result{}, err
	}

	d.state.Store(int32(StateScrolling))
	d.logger.Info("history completion started",
		zap.Duration("settle", d.settle), zap.Int("stable_rounds", d.stableRounds))

	last := d.counter.Count()
	stable := 0
	rounds := 0
	for stable < d.stableRounds && rounds < d.maxRounds {
		if err := ctx.Err(); err != nil {
			return Result{Total: d.counter.Count(), Rounds: rounds}, err
		}
		if err := d.surface.ScrollToTop(ctx); err != nil {
			return Result{Total: d.counter.Count(), Rounds: rounds}, err
		}
		if err := sleep(ctx, d.settle); err != nil {
			return Result{Total: d.counter.Count(), Rounds: rounds}, err
		}
		if _, err := d.scanner.Rescan(ctx); err != nil {
			// Capture-path errors are local: skip the round, keep looping.
			d.logger.Warn("rescan failed mid-run", zap.Error(err))
		}

		cur := d.counter.Count()
		if cur == last {
			stable++
		} else {
			stable = 0
		}
		last = cur
		rounds++
		d.logger.Debug("completion round",
			zap.Int("round", rounds), zap.Int("total", cur), zap.Int("stable", stable))
	}

	// Give the reader back their place before reporting.
	if err := d.surface.ScrollToBottom(ctx); err != nil {
		d.logger.Warn("restore scroll position failed", zap.Error(err))
	}

	d.state.Store(int32(StateSettled))
	d.logger.Info("history completion settled",
		zap.Int("total", last), zap.Int("rounds", rounds))
	return Result{Total: last, Rounds: rounds}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
