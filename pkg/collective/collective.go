// Package collective implements the rendezvous barrier that backs the
// coordinator: callers arrive in cohorts of worldSize, block until the cohort
// is complete, and all leave with the same result.
package collective

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	DefTimeout      = 30 * time.Minute
	DefWarnInterval = time.Minute

	// WarnIntervalEnv is the environment variable deployments set to change
	// the stall warning cadence. The warning itself names it so operators
	// can find the knob.
	WarnIntervalEnv = "RENDEZVOUS_BARRIER_WARN_INTERVAL"
)

// Op identifies the collective operation a round performs. Every participant
// of a round must call the same one.
type Op string

const (
	OpBroadcast Op = "broadcast"
	OpReduce    Op = "reduce"
)

// Vote is one rank's contribution to a reduce round.
type Vote[T any] struct {
	Rank int
	Data T
}

// ReduceFunc folds the cohort's votes, given in rank order, into a single
// value. It runs once per round, on the last arrival's goroutine.
type ReduceFunc[T any] func(votes []Vote[T]) (T, error)

// Round is the snapshot of a released round handed to OnRelease.
type Round struct {
	Sequence   uint64    `json:"sequence"`
	Op         Op        `json:"op"`
	WorldSize  int       `json:"world_size"`
	StartedAt  time.Time `json:"started_at"`
	ReleasedAt time.Time `json:"released_at"`
}

type Config[T any] struct {
	// Timeout bounds each caller's wait for the rest of its cohort.
	// Zero means DefTimeout.
	Timeout time.Duration
	// WarnInterval is the stall diagnostic cadence. Zero means DefWarnInterval.
	WarnInterval time.Duration
	// Reduce is required for Reduce calls and unused otherwise.
	Reduce ReduceFunc[T]
	// OnRelease, if set, runs once per successfully released round, on the
	// goroutine of the arrival that completed it.
	OnRelease func(Round)
}

// Barrier synchronizes cohorts of callers into rounds. A round starts with
// the first arrival, fills one arrival at a time and releases everyone at
// once when the last one shows up. The zero value is not usable; call New.
type Barrier[T any] struct {
	timeout      time.Duration
	warnInterval time.Duration
	reduce       ReduceFunc[T]
	onRelease    func(Round)
	logger       *slog.Logger

	mu         sync.Mutex
	seq        uint64
	op         Op
	counter    int
	worldSize  int
	data       T
	hasData    bool
	votes      []T
	voted      []bool
	arrivals   []time.Time
	startedAt  time.Time
	releasedAt time.Time
	release    chan struct{}
	released   bool
	err        error
}

func New[T any](cfg Config[T], logger *slog.Logger) *Barrier[T] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefTimeout
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = DefWarnInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Barrier[T]{
		timeout:      cfg.Timeout,
		warnInterval: cfg.WarnInterval,
		reduce:       cfg.Reduce,
		onRelease:    cfg.OnRelease,
		logger:       logger,
	}
}

// Broadcast blocks until worldSize callers have arrived, then returns rank
// 0's data to all of them. The first arrival fixes the round's world size;
// a caller that disagrees with it fails with ErrWorldSizeMismatch and the
// round carries on without it. Waiting ends early on ctx cancellation or
// after the configured timeout, either of which fails only this caller.
func (b *Barrier[T]) Broadcast(ctx context.Context, worldRank, worldSize int, data T) (T, error) {
	return b.rendezvous(ctx, OpBroadcast, worldRank, worldSize, data)
}

// Reduce blocks like Broadcast, but every rank's data is collected and the
// configured ReduceFunc's result is returned to all of them. A reduce
// failure fails the whole cohort.
func (b *Barrier[T]) Reduce(ctx context.Context, worldRank, worldSize int, data T) (T, error) {
	var zero T
	if b.reduce == nil {
		return zero, ErrNoReducer
	}

	return b.rendezvous(ctx, OpReduce, worldRank, worldSize, data)
}

// Counter reports how many callers are inside the active round. Diagnostics
// only: the value can be stale the moment it returns.
func (b *Barrier[T]) Counter() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counter
}

// WorldSize reports the active round's world size, zero if no round is
// active. Diagnostics only.
func (b *Barrier[T]) WorldSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.worldSize
}

// ReducedData reports the payload held by the active round, if any: rank 0's
// data once it arrived in a broadcast round, or the reduction once a reduce
// round released. Diagnostics only.
func (b *Barrier[T]) ReducedData() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.data, b.hasData
}

func (b *Barrier[T]) rendezvous(ctx context.Context, op Op, worldRank, worldSize int, data T) (T, error) {
	var zero T
	if worldSize <= 0 {
		return zero, fmt.Errorf("%w: %d", ErrInvalidWorldSize, worldSize)
	}
	if worldRank < 0 || worldRank >= worldSize {
		return zero, fmt.Errorf("%w: rank %d with world size %d", ErrRankOutOfRange, worldRank, worldSize)
	}

	b.mu.Lock()
	if err := b.setupOrValidate(op, worldSize); err != nil {
		b.mu.Unlock()
		return zero, err
	}

	admitted := b.enter(worldRank, data)
	defer func() {
		b.mu.Lock()
		b.leave(admitted)
		b.mu.Unlock()
	}()

	if b.counter == b.worldSize {
		releasedNow := false
		if !b.released {
			b.finish()
			releasedNow = true
		}
		out, err := b.data, b.err
		fire := releasedNow && err == nil && b.onRelease != nil
		var round Round
		if fire {
			round = b.snapshot()
		}
		b.mu.Unlock()
		if fire {
			b.onRelease(round)
		}

		return out, err
	}

	b.arrivals[worldRank] = time.Now()
	release := b.release
	b.mu.Unlock()

	return b.wait(ctx, worldRank, release)
}

// setupOrValidate starts a round on first arrival and checks that later
// arrivals agree with it. Caller holds b.mu.
func (b *Barrier[T]) setupOrValidate(op Op, worldSize int) error {
	if b.worldSize == 0 {
		b.seq++
		b.op = op
		b.worldSize = worldSize
		b.arrivals = make([]time.Time, worldSize)
		if op == OpReduce {
			b.votes = make([]T, worldSize)
			b.voted = make([]bool, worldSize)
		}
		b.release = make(chan struct{})
		b.startedAt = time.Now()

		return nil
	}

	if worldSize != b.worldSize {
		return fmt.Errorf("%w: got %d, expected %d", ErrWorldSizeMismatch, worldSize, b.worldSize)
	}
	if op != b.op {
		return fmt.Errorf("%w: got %s, expected %s", ErrOpMismatch, op, b.op)
	}

	return nil
}

// enter records an arrival. Rank 0's payload is captured eagerly so the
// round can release the moment the last caller shows up, whoever that is.
// An arrival beyond the world size is tolerated as a no-op: it reads the
// released result but is reported as not admitted, so leave won't drain it.
// Caller holds b.mu.
func (b *Barrier[T]) enter(worldRank int, data T) bool {
	if b.counter == b.worldSize {
		return false
	}

	switch b.op {
	case OpBroadcast:
		if worldRank == 0 {
			b.data, b.hasData = data, true
		}
	case OpReduce:
		b.votes[worldRank] = data
		b.voted[worldRank] = true
	}
	b.counter++

	return true
}

// leave undoes enter on every exit path. The last participant out resets the
// barrier so the next round starts clean. Caller holds b.mu.
func (b *Barrier[T]) leave(admitted bool) {
	if !admitted {
		return
	}

	b.counter--
	if b.counter > 0 {
		return
	}

	var zero T
	b.op = ""
	b.worldSize = 0
	b.data, b.hasData = zero, false
	b.votes, b.voted = nil, nil
	b.arrivals = nil
	b.release = nil
	b.released = false
	b.err = nil
}

// finish completes the round: reduce rounds fold their votes, then the
// release channel is closed to wake every waiter at once. Caller holds b.mu.
func (b *Barrier[T]) finish() {
	if b.op == OpReduce {
		if out, err := b.reduce(b.collectVotes()); err != nil {
			b.err = fmt.Errorf("reduce: %w", err)
		} else {
			b.data, b.hasData = out, true
		}
	}
	b.released = true
	b.releasedAt = time.Now()
	close(b.release)
}

// collectVotes returns the votes cast in this round, in rank order. Caller
// holds b.mu.
func (b *Barrier[T]) collectVotes() []Vote[T] {
	votes := make([]Vote[T], 0, b.worldSize)
	for rank, ok := range b.voted {
		if ok {
			votes = append(votes, Vote[T]{Rank: rank, Data: b.votes[rank]})
		}
	}

	return votes
}

// snapshot captures the released round for OnRelease. Caller holds b.mu.
func (b *Barrier[T]) snapshot() Round {
	return Round{
		Sequence:   b.seq,
		Op:         b.op,
		WorldSize:  b.worldSize,
		StartedAt:  b.startedAt,
		ReleasedAt: b.releasedAt,
	}
}

// wait blocks on the round's release channel in warnInterval slices, logging
// a stall diagnostic each slice, until release, timeout or ctx cancellation.
func (b *Barrier[T]) wait(ctx context.Context, worldRank int, release <-chan struct{}) (T, error) {
	var zero T

	timeout := time.NewTimer(b.timeout)
	defer timeout.Stop()
	warn := time.NewTicker(b.warnInterval)
	defer warn.Stop()

	for {
		select {
		case <-release:
			b.mu.Lock()
			out, err := b.data, b.err
			b.mu.Unlock()

			return out, err
		case <-warn.C:
			b.logStall(worldRank)
		case <-timeout.C:
			// A round released right at the deadline counts as released.
			select {
			case <-release:
				b.mu.Lock()
				out, err := b.data, b.err
				b.mu.Unlock()

				return out, err
			default:
			}

			return zero, b.timeoutError()
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (b *Barrier[T]) logStall(worldRank int) {
	b.mu.Lock()
	worldSize := b.worldSize
	counter := b.counter
	waited := make(map[int]float64, counter)
	now := time.Now()
	for rank, at := range b.arrivals {
		if !at.IsZero() {
			waited[rank] = math.Round(now.Sub(at).Seconds()*10) / 10
		}
	}
	b.mu.Unlock()

	b.logger.Warn("still waiting for the collective to complete",
		slog.Int("world_rank", worldRank),
		slog.Int("world_size", worldSize),
		slog.Int("arrived", counter),
		slog.Any("waited_s", waited),
		slog.String("hint", "set "+WarnIntervalEnv+" to change how often this is logged"),
	)
}

func (b *Barrier[T]) timeoutError() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	waiting := make(map[int]time.Duration, b.counter)
	for rank, at := range b.arrivals {
		if !at.IsZero() {
			waiting[rank] = now.Sub(at)
		}
	}

	return &TimeoutError{
		WorldSize: b.worldSize,
		Timeout:   b.timeout,
		Waiting:   waiting,
	}
}
