package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/absmach/rendezvous/pkg/collective"
	pkgerrors "github.com/absmach/rendezvous/pkg/errors"
	"github.com/absmach/rendezvous/pkg/mqtt"
	"github.com/absmach/rendezvous/pkg/reduce"
	"github.com/absmach/rendezvous/pkg/storage"
	"github.com/fxamacker/cbor/v2"
)

// Round history keys are zero padded so the store lists them in sequence order.
const roundKeyFmt = "%012d"

// cborDec decodes CBOR maps as map[string]any so constrained-worker payloads
// can join the same rounds as JSON callers.
var cborDec = newCBORDecMode()

func newCBORDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}

	return dm
}

type Config struct {
	Timeout      time.Duration
	WarnInterval time.Duration
	Reducer      reduce.Reducer
	BaseTopic    string
}

type service struct {
	barrier   *collective.Barrier[json.RawMessage]
	roundsDB  storage.Storage
	pubsub    mqtt.PubSub
	baseTopic string
	logger    *slog.Logger
}

func NewService(cfg Config, roundsDB storage.Storage, pubsub mqtt.PubSub, logger *slog.Logger) Service {
	svc := &service{
		roundsDB:  roundsDB,
		pubsub:    pubsub,
		baseTopic: cfg.BaseTopic,
		logger:    logger,
	}

	bcfg := collective.Config[json.RawMessage]{
		Timeout:      cfg.Timeout,
		WarnInterval: cfg.WarnInterval,
		OnRelease:    svc.recordRound,
	}
	if cfg.Reducer != nil {
		bcfg.Reduce = cfg.Reducer.Reduce
	}
	svc.barrier = collective.New(bcfg, logger)

	return svc
}

func (svc *service) BroadcastFromRankZero(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	out, err := svc.barrier.Broadcast(ctx, worldRank, worldSize, data)
	if err != nil {
		svc.publishTimeout(ctx, err)

		return nil, err
	}

	return out, nil
}

type cborEnvelope struct {
	WorldRank int             `cbor:"world_rank"`
	WorldSize int             `cbor:"world_size"`
	Data      cbor.RawMessage `cbor:"data,omitempty"`
}

func (svc *service) BroadcastFromRankZeroCBOR(ctx context.Context, payload []byte) ([]byte, error) {
	var env cborEnvelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(pkgerrors.ErrInvalidPayload, err)
	}

	var data json.RawMessage
	if len(env.Data) > 0 {
		var v any
		if err := cborDec.Unmarshal(env.Data, &v); err != nil {
			return nil, errors.Join(pkgerrors.ErrInvalidPayload, err)
		}
		jsonData, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Join(pkgerrors.ErrInvalidPayload, err)
		}
		data = jsonData
	}

	out, err := svc.BroadcastFromRankZero(ctx, env.WorldRank, env.WorldSize, data)
	if err != nil {
		return nil, err
	}

	var v any
	if len(out) > 0 {
		if err := json.Unmarshal(out, &v); err != nil {
			return nil, err
		}
	}
	reply, err := cbor.Marshal(map[string]any{"data": v})
	if err != nil {
		return nil, err
	}

	return reply, nil
}

func (svc *service) ReduceFromAll(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	out, err := svc.barrier.Reduce(ctx, worldRank, worldSize, data)
	if err != nil {
		svc.publishTimeout(ctx, err)

		return nil, err
	}

	return out, nil
}

func (svc *service) Counter(ctx context.Context) (int, error) {
	return svc.barrier.Counter(), nil
}

func (svc *service) WorldSize(ctx context.Context) (int, error) {
	return svc.barrier.WorldSize(), nil
}

func (svc *service) ReducedData(ctx context.Context) (json.RawMessage, error) {
	data, ok := svc.barrier.ReducedData()
	if !ok {
		return nil, nil
	}

	return data, nil
}

func (svc *service) ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error) {
	data, total, err := svc.roundsDB.List(ctx, offset, limit)
	if err != nil {
		return RoundPage{}, err
	}

	rounds := make([]collective.Round, len(data))
	for i := range data {
		r, ok := data[i].(collective.Round)
		if !ok {
			return RoundPage{}, pkgerrors.ErrInvalidData
		}
		rounds[i] = r
	}

	return RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Rounds: rounds,
	}, nil
}

// recordRound runs on the releasing caller's goroutine once per round. The
// history write and the MQTT event are advisory, failures are logged and the
// release itself is never blocked on them.
func (svc *service) recordRound(r collective.Round) {
	ctx := context.Background()

	if err := svc.roundsDB.Create(ctx, fmt.Sprintf(roundKeyFmt, r.Sequence), r); err != nil {
		svc.logger.Warn("Failed to record released round",
			slog.Uint64("sequence", r.Sequence),
			slog.Any("error", err))
	}

	if svc.pubsub == nil {
		return
	}
	topic := svc.baseTopic + "/rounds/released"
	if err := svc.pubsub.Publish(ctx, topic, r); err != nil {
		svc.logger.Warn("Failed to publish round release",
			slog.Uint64("sequence", r.Sequence),
			slog.String("topic", topic),
			slog.Any("error", err))
	}
}

func (svc *service) publishTimeout(ctx context.Context, err error) {
	var terr *collective.TimeoutError
	if !errors.As(err, &terr) || svc.pubsub == nil {
		return
	}

	waiting := make(map[int]float64, len(terr.Waiting))
	for rank, waited := range terr.Waiting {
		waiting[rank] = waited.Seconds()
	}
	msg := map[string]any{
		"world_size": terr.WorldSize,
		"timeout_s":  terr.Timeout.Seconds(),
		"waiting_s":  waiting,
		"missing":    terr.Missing(),
	}

	topic := svc.baseTopic + "/rounds/timeout"
	if err := svc.pubsub.Publish(ctx, topic, msg); err != nil {
		svc.logger.Warn("Failed to publish round timeout",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
}
