package collective_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/rendezvous/pkg/collective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())

	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *recordHandler) WithGroup(string) slog.Handler { return h }

func (h *recordHandler) warnings() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]slog.Record, 0, len(h.records))
	for _, r := range h.records {
		if r.Level == slog.LevelWarn {
			out = append(out, r)
		}
	}

	return out
}

func TestBroadcastReleasesCohort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		worldSize int
	}{
		{name: "single caller", worldSize: 1},
		{name: "pair", worldSize: 2},
		{name: "three ranks", worldSize: 3},
		{name: "eight ranks", worldSize: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := collective.New(collective.Config[string]{Timeout: 5 * time.Second}, slog.Default())
			payload := "checkpoint-1"
			outs := make([]string, tt.worldSize)

			var g errgroup.Group
			for rank := 0; rank < tt.worldSize; rank++ {
				g.Go(func() error {
					data := ""
					if rank == 0 {
						data = payload
					}
					out, err := b.Broadcast(context.Background(), rank, tt.worldSize, data)
					outs[rank] = out

					return err
				})
			}
			require.NoError(t, g.Wait())

			for rank, out := range outs {
				assert.Equal(t, payload, out, "rank %d", rank)
			}
			assert.Equal(t, 0, b.Counter())
			assert.Equal(t, 0, b.WorldSize())
			_, ok := b.ReducedData()
			assert.False(t, ok)
		})
	}
}

func TestBroadcastEagerRankZeroCapture(t *testing.T) {
	t.Parallel()

	b := collective.New(collective.Config[string]{Timeout: 5 * time.Second}, slog.Default())
	payload := "model-weights-v2"
	outs := make([]string, 3)

	var g errgroup.Group
	g.Go(func() error {
		out, err := b.Broadcast(context.Background(), 0, 3, payload)
		outs[0] = out

		return err
	})

	require.Eventually(t, func() bool { return b.Counter() == 1 }, time.Second, 5*time.Millisecond)
	got, ok := b.ReducedData()
	require.True(t, ok, "rank 0's payload should be held as soon as it arrives")
	assert.Equal(t, payload, got)
	assert.Equal(t, 3, b.WorldSize())

	g.Go(func() error {
		out, err := b.Broadcast(context.Background(), 1, 3, "")
		outs[1] = out

		return err
	})
	require.Eventually(t, func() bool { return b.Counter() == 2 }, time.Second, 5*time.Millisecond)

	out, err := b.Broadcast(context.Background(), 2, 3, "")
	require.NoError(t, err)
	outs[2] = out

	require.NoError(t, g.Wait())
	for rank, out := range outs {
		assert.Equal(t, payload, out, "rank %d", rank)
	}
	assert.Equal(t, 0, b.Counter())
	assert.Equal(t, 0, b.WorldSize())
}

func TestBroadcastWorldSizeMismatch(t *testing.T) {
	t.Parallel()

	b := collective.New(collective.Config[string]{Timeout: 5 * time.Second}, slog.Default())
	payload := "round-config"

	var g errgroup.Group
	g.Go(func() error {
		out, err := b.Broadcast(context.Background(), 0, 2, payload)
		if err != nil {
			return err
		}
		if out != payload {
			return fmt.Errorf("rank 0 got %q", out)
		}

		return nil
	})
	require.Eventually(t, func() bool { return b.Counter() == 1 }, time.Second, 5*time.Millisecond)

	_, err := b.Broadcast(context.Background(), 1, 3, "")
	require.ErrorIs(t, err, collective.ErrWorldSizeMismatch)
	assert.Contains(t, err.Error(), "got 3, expected 2")

	// The round is untouched by the rejected caller.
	assert.Equal(t, 1, b.Counter())
	assert.Equal(t, 2, b.WorldSize())

	out, err := b.Broadcast(context.Background(), 1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, payload, out)
	require.NoError(t, g.Wait())
}

func TestBroadcastTimeout(t *testing.T) {
	t.Parallel()

	b := collective.New(collective.Config[int]{Timeout: 300 * time.Millisecond}, slog.Default())

	_, err := b.Broadcast(context.Background(), 0, 2, 7)
	require.ErrorIs(t, err, collective.ErrTimeout)

	var terr *collective.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.WorldSize)
	assert.Equal(t, 300*time.Millisecond, terr.Timeout)

	waited, ok := terr.Waiting[0]
	require.True(t, ok, "rank 0 arrived and must be in the snapshot")
	assert.GreaterOrEqual(t, waited, 200*time.Millisecond)
	assert.Less(t, waited, 2*time.Second)

	_, ok = terr.Waiting[1]
	assert.False(t, ok, "rank 1 never arrived")
	assert.Equal(t, []int{1}, terr.Missing())

	assert.Equal(t, 0, b.Counter())
	assert.Equal(t, 0, b.WorldSize())
}

func TestBroadcastTimeoutFailsOnlyThatCaller(t *testing.T) {
	t.Parallel()

	b := collective.New(collective.Config[string]{Timeout: 10 * time.Second}, slog.Default())
	payload := "survivor"
	outs := make([]string, 3)

	var g errgroup.Group
	g.Go(func() error {
		out, err := b.Broadcast(context.Background(), 1, 3, "")
		outs[1] = out

		return err
	})
	require.Eventually(t, func() bool { return b.Counter() == 1 }, time.Second, 5*time.Millisecond)

	short, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := b.Broadcast(short, 2, 3, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The straggler drained out alone; rank 1 is still waiting in a live round.
	assert.Equal(t, 1, b.Counter())
	assert.Equal(t, 3, b.WorldSize())

	g.Go(func() error {
		out, gerr := b.Broadcast(context.Background(), 2, 3, "")
		outs[2] = out

		return gerr
	})
	require.Eventually(t, func() bool { return b.Counter() == 2 }, time.Second, 5*time.Millisecond)

	out, err := b.Broadcast(context.Background(), 0, 3, payload)
	require.NoError(t, err)
	outs[0] = out

	require.NoError(t, g.Wait())
	for rank, got := range outs {
		assert.Equal(t, payload, got, "rank %d", rank)
	}
	assert.Equal(t, 0, b.Counter())
	assert.Equal(t, 0, b.WorldSize())
}

func TestBroadcastStallWarning(t *testing.T) {
	t.Parallel()

	h := &recordHandler{}
	b := collective.New(collective.Config[string]{
		Timeout:      5 * time.Second,
		WarnInterval: 60 * time.Millisecond,
	}, slog.New(h))

	outs := make([]string, 3)
	var g errgroup.Group
	for _, rank := range []int{1, 2} {
		g.Go(func() error {
			out, err := b.Broadcast(context.Background(), rank, 3, "")
			outs[rank] = out

			return err
		})
	}
	require.Eventually(t, func() bool { return b.Counter() == 2 }, time.Second, 5*time.Millisecond)

	time.Sleep(200 * time.Millisecond)

	out, err := b.Broadcast(context.Background(), 0, 3, "ckpt-42")
	require.NoError(t, err)
	outs[0] = out
	require.NoError(t, g.Wait())

	for rank, out := range outs {
		assert.Equal(t, "ckpt-42", out, "rank %d", rank)
	}

	warnings := h.warnings()
	require.NotEmpty(t, warnings, "waiters should have logged at least one stall warning")

	var worldSize int64
	var hint string
	warnings[0].Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "world_size":
			worldSize = a.Value.Int64()
		case "hint":
			hint = a.Value.String()
		}

		return true
	})
	assert.Equal(t, int64(3), worldSize)
	assert.Contains(t, hint, collective.WarnIntervalEnv)
}

func TestBroadcastSuccessiveRounds(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var rounds []collective.Round
	b := collective.New(collective.Config[string]{
		Timeout: 5 * time.Second,
		OnRelease: func(r collective.Round) {
			mu.Lock()
			defer mu.Unlock()
			rounds = append(rounds, r)
		},
	}, slog.Default())

	out, err := b.Broadcast(context.Background(), 0, 1, "first")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	outs := make([]string, 2)
	var g errgroup.Group
	for rank := 0; rank < 2; rank++ {
		g.Go(func() error {
			data := ""
			if rank == 0 {
				data = "second"
			}
			got, gerr := b.Broadcast(context.Background(), rank, 2, data)
			outs[rank] = got

			return gerr
		})
	}
	require.NoError(t, g.Wait())
	for rank, got := range outs {
		assert.Equal(t, "second", got, "rank %d: no payload may leak between rounds", rank)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, rounds, 2)
	assert.Equal(t, uint64(1), rounds[0].Sequence)
	assert.Equal(t, uint64(2), rounds[1].Sequence)
	assert.Equal(t, collective.OpBroadcast, rounds[0].Op)
	assert.Equal(t, 1, rounds[0].WorldSize)
	assert.Equal(t, 2, rounds[1].WorldSize)
	for _, r := range rounds {
		assert.False(t, r.ReleasedAt.Before(r.StartedAt))
	}
}

func TestBroadcastExtraArrivalDuringDrain(t *testing.T) {
	t.Parallel()

	released := make(chan struct{})
	proceed := make(chan struct{})
	b := collective.New(collective.Config[string]{
		Timeout: 5 * time.Second,
		OnRelease: func(collective.Round) {
			close(released)
			<-proceed
		},
	}, slog.Default())

	var g errgroup.Group
	for rank := 0; rank < 2; rank++ {
		g.Go(func() error {
			data := ""
			if rank == 0 {
				data = "payload"
			}
			out, err := b.Broadcast(context.Background(), rank, 2, data)
			if err != nil {
				return err
			}
			if out != "payload" {
				return fmt.Errorf("rank %d got %q", rank, out)
			}

			return nil
		})
	}

	<-released

	// The round has released but not drained. One more arrival must read the
	// released payload as a no-op instead of corrupting the round.
	out, err := b.Broadcast(context.Background(), 1, 2, "intruder")
	require.NoError(t, err)
	assert.Equal(t, "payload", out)

	close(proceed)
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, b.Counter())
	assert.Equal(t, 0, b.WorldSize())
}

func TestBroadcastArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		worldRank int
		worldSize int
		err       error
	}{
		{name: "zero world size", worldRank: 0, worldSize: 0, err: collective.ErrInvalidWorldSize},
		{name: "negative world size", worldRank: 0, worldSize: -2, err: collective.ErrInvalidWorldSize},
		{name: "negative rank", worldRank: -1, worldSize: 2, err: collective.ErrRankOutOfRange},
		{name: "rank equals world size", worldRank: 2, worldSize: 2, err: collective.ErrRankOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := collective.New(collective.Config[int]{Timeout: time.Second}, slog.Default())
			_, err := b.Broadcast(context.Background(), tt.worldRank, tt.worldSize, 0)
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, 0, b.Counter())
			assert.Equal(t, 0, b.WorldSize())
		})
	}
}

func TestReduceFoldsAllVotes(t *testing.T) {
	t.Parallel()

	sum := func(votes []collective.Vote[int]) (int, error) {
		if len(votes) != 3 {
			return 0, fmt.Errorf("expected 3 votes, got %d", len(votes))
		}
		total := 0
		for i, v := range votes {
			if v.Rank != i {
				return 0, fmt.Errorf("votes out of rank order: %v", votes)
			}
			total += v.Data
		}

		return total, nil
	}

	b := collective.New(collective.Config[int]{Timeout: 5 * time.Second, Reduce: sum}, slog.Default())

	outs := make([]int, 3)
	var g errgroup.Group
	for rank := 0; rank < 3; rank++ {
		g.Go(func() error {
			out, err := b.Reduce(context.Background(), rank, 3, rank+1)
			outs[rank] = out

			return err
		})
	}
	require.NoError(t, g.Wait())

	for rank, out := range outs {
		assert.Equal(t, 6, out, "rank %d", rank)
	}
	assert.Equal(t, 0, b.Counter())
	assert.Equal(t, 0, b.WorldSize())
}

func TestReduceErrorFailsWholeCohort(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := func([]collective.Vote[int]) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("boom")
		}

		return 42, nil
	}

	b := collective.New(collective.Config[int]{Timeout: 5 * time.Second, Reduce: boom}, slog.Default())

	var g errgroup.Group
	for rank := 0; rank < 2; rank++ {
		g.Go(func() error {
			_, err := b.Reduce(context.Background(), rank, 2, rank)
			if err == nil || err.Error() != "reduce: boom" {
				return fmt.Errorf("rank %d expected reduce failure, got %v", rank, err)
			}

			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, b.Counter())
	assert.Equal(t, 0, b.WorldSize())

	// The failure drains with the round; the next one is clean.
	outs := make([]int, 2)
	var next errgroup.Group
	for rank := 0; rank < 2; rank++ {
		next.Go(func() error {
			out, err := b.Reduce(context.Background(), rank, 2, rank)
			outs[rank] = out

			return err
		})
	}
	require.NoError(t, next.Wait())
	assert.Equal(t, []int{42, 42}, outs)
}

func TestReduceWithoutReducer(t *testing.T) {
	t.Parallel()

	b := collective.New(collective.Config[int]{Timeout: time.Second}, slog.Default())
	_, err := b.Reduce(context.Background(), 0, 1, 1)
	require.ErrorIs(t, err, collective.ErrNoReducer)
	assert.Equal(t, 0, b.Counter())
}

func TestOpMismatch(t *testing.T) {
	t.Parallel()

	sum := func(votes []collective.Vote[int]) (int, error) {
		total := 0
		for _, v := range votes {
			total += v.Data
		}

		return total, nil
	}
	b := collective.New(collective.Config[int]{Timeout: 5 * time.Second, Reduce: sum}, slog.Default())

	var g errgroup.Group
	g.Go(func() error {
		_, err := b.Reduce(context.Background(), 0, 2, 1)

		return err
	})
	require.Eventually(t, func() bool { return b.Counter() == 1 }, time.Second, 5*time.Millisecond)

	_, err := b.Broadcast(context.Background(), 1, 2, 0)
	require.ErrorIs(t, err, collective.ErrOpMismatch)

	out, err := b.Reduce(context.Background(), 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, out)
	require.NoError(t, g.Wait())
}
