package coordinator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/rendezvous/coordinator"
	"github.com/absmach/rendezvous/pkg/collective"
	pkgerrors "github.com/absmach/rendezvous/pkg/errors"
	mqttmocks "github.com/absmach/rendezvous/pkg/mqtt/mocks"
	"github.com/absmach/rendezvous/pkg/reduce"
	"github.com/absmach/rendezvous/pkg/storage"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const baseTopic = "m/domain/c/channel/messages"

func newService(t *testing.T, cfg coordinator.Config) (coordinator.Service, storage.Storage) {
	t.Helper()

	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = baseTopic
	}
	roundsDB := storage.NewInMemoryStorage()

	return coordinator.NewService(cfg, roundsDB, nil, slog.Default()), roundsDB
}

func TestBroadcastFromRankZeroReleasesCohort(t *testing.T) {
	t.Parallel()

	pubsub := mqttmocks.NewPubSub(t)
	pubsub.On("Publish", mock.Anything, baseTopic+"/rounds/released", mock.Anything).Return(nil).Once()

	roundsDB := storage.NewInMemoryStorage()
	svc := coordinator.NewService(coordinator.Config{
		Timeout:   5 * time.Second,
		BaseTopic: baseTopic,
	}, roundsDB, pubsub, slog.Default())

	const worldSize = 3
	payload := json.RawMessage(`{"checkpoint":"ckpt-42"}`)

	outs := make([]json.RawMessage, worldSize)
	var g errgroup.Group
	for rank := range worldSize {
		g.Go(func() error {
			var data json.RawMessage
			if rank == 0 {
				data = payload
			}
			out, err := svc.BroadcastFromRankZero(context.Background(), rank, worldSize, data)
			if err != nil {
				return err
			}
			outs[rank] = out

			return nil
		})
	}
	require.NoError(t, g.Wait())

	for rank := range worldSize {
		assert.JSONEq(t, string(payload), string(outs[rank]))
	}

	page, err := svc.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Rounds, 1)
	assert.Equal(t, uint64(1), page.Rounds[0].Sequence)
	assert.Equal(t, collective.OpBroadcast, page.Rounds[0].Op)
	assert.Equal(t, worldSize, page.Rounds[0].WorldSize)
	assert.False(t, page.Rounds[0].ReleasedAt.Before(page.Rounds[0].StartedAt))
}

func TestListRoundsPaging(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, coordinator.Config{})

	for i := 1; i <= 3; i++ {
		data := json.RawMessage(fmt.Sprintf(`{"round":%d}`, i))
		_, err := svc.BroadcastFromRankZero(context.Background(), 0, 1, data)
		require.NoError(t, err)
	}

	page, err := svc.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	require.Len(t, page.Rounds, 3)
	for i, r := range page.Rounds {
		assert.Equal(t, uint64(i+1), r.Sequence)
	}

	page, err = svc.ListRounds(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	require.Len(t, page.Rounds, 1)
	assert.Equal(t, uint64(2), page.Rounds[0].Sequence)
	assert.Equal(t, uint64(1), page.Offset)
	assert.Equal(t, uint64(1), page.Limit)
}

func TestBroadcastTimeoutPublishesEvent(t *testing.T) {
	t.Parallel()

	pubsub := mqttmocks.NewPubSub(t)
	pubsub.On("Publish", mock.Anything, baseTopic+"/rounds/timeout", mock.Anything).Return(nil).Once()

	svc := coordinator.NewService(coordinator.Config{
		Timeout:   200 * time.Millisecond,
		BaseTopic: baseTopic,
	}, storage.NewInMemoryStorage(), pubsub, slog.Default())

	_, err := svc.BroadcastFromRankZero(context.Background(), 0, 2, json.RawMessage(`"lonely"`))
	require.ErrorIs(t, err, collective.ErrTimeout)

	var terr *collective.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.WorldSize)
	assert.Contains(t, terr.Waiting, 0)

	page, err := svc.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Rounds)
}

func TestBroadcastFromRankZeroCBOR(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, coordinator.Config{})

	var g errgroup.Group
	g.Go(func() error {
		_, err := svc.BroadcastFromRankZero(context.Background(), 0, 2, json.RawMessage(`{"step":7}`))

		return err
	})

	payload, err := cbor.Marshal(map[string]any{
		"world_rank": 1,
		"world_size": 2,
	})
	require.NoError(t, err)

	reply, err := svc.BroadcastFromRankZeroCBOR(context.Background(), payload)
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	var decoded struct {
		Data map[string]any `cbor:"data"`
	}
	require.NoError(t, cbor.Unmarshal(reply, &decoded))
	assert.Equal(t, float64(7), decoded.Data["step"])
}

func TestBroadcastFromRankZeroCBORDataCrossesIntoJSONRound(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, coordinator.Config{})

	payload, err := cbor.Marshal(map[string]any{
		"world_rank": 0,
		"world_size": 2,
		"data":       map[string]any{"lr": 0.1},
	})
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		_, err := svc.BroadcastFromRankZeroCBOR(context.Background(), payload)

		return err
	})

	out, err := svc.BroadcastFromRankZero(context.Background(), 1, 2, nil)
	require.NoError(t, err)
	require.NoError(t, g.Wait())
	assert.JSONEq(t, `{"lr":0.1}`, string(out))
}

func TestBroadcastFromRankZeroCBORInvalidPayload(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, coordinator.Config{})

	_, err := svc.BroadcastFromRankZeroCBOR(context.Background(), []byte{0xff})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidPayload)
}

func TestReduceFromAll(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, coordinator.Config{Reducer: reduce.NewConcat()})

	outs := make([]json.RawMessage, 2)
	var g errgroup.Group
	for rank := range 2 {
		g.Go(func() error {
			data := json.RawMessage(fmt.Sprintf(`{"rank":%d}`, rank))
			out, err := svc.ReduceFromAll(context.Background(), rank, 2, data)
			if err != nil {
				return err
			}
			outs[rank] = out

			return nil
		})
	}
	require.NoError(t, g.Wait())

	for rank := range 2 {
		assert.JSONEq(t, `[{"rank":0},{"rank":1}]`, string(outs[rank]))
	}

	page, err := svc.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Rounds, 1)
	assert.Equal(t, collective.OpReduce, page.Rounds[0].Op)
}

func TestReduceFromAllWithoutReducer(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, coordinator.Config{})

	_, err := svc.ReduceFromAll(context.Background(), 0, 1, json.RawMessage(`1`))
	require.ErrorIs(t, err, collective.ErrNoReducer)
}

func TestBarrierDiagnostics(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, coordinator.Config{})

	counter, err := svc.Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counter)

	done := make(chan error, 1)
	go func() {
		_, err := svc.BroadcastFromRankZero(context.Background(), 0, 2, json.RawMessage(`"v"`))
		done <- err
	}()

	require.Eventually(t, func() bool {
		counter, err := svc.Counter(context.Background())

		return err == nil && counter == 1
	}, time.Second, 5*time.Millisecond)

	worldSize, err := svc.WorldSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, worldSize)

	reduced, err := svc.ReducedData(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `"v"`, string(reduced))

	_, err = svc.BroadcastFromRankZero(context.Background(), 1, 2, nil)
	require.NoError(t, err)
	require.NoError(t, <-done)

	counter, err = svc.Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counter)

	reduced, err = svc.ReducedData(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reduced)
}

func TestListRoundsInvalidData(t *testing.T) {
	t.Parallel()

	svc, roundsDB := newService(t, coordinator.Config{})
	require.NoError(t, roundsDB.Create(context.Background(), "000000000001", "not a round"))

	_, err := svc.ListRounds(context.Background(), 0, 10)
	require.ErrorIs(t, err, pkgerrors.ErrInvalidData)
}
