package middleware

import (
	"context"
	"encoding/json"

	"github.com/absmach/rendezvous/coordinator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) BroadcastFromRankZero(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (resp json.RawMessage, err error) {
	ctx, span := tm.tracer.Start(ctx, "broadcast", trace.WithAttributes(
		attribute.Int("world_rank", worldRank),
		attribute.Int("world_size", worldSize),
	))
	defer span.End()

	return tm.svc.BroadcastFromRankZero(ctx, worldRank, worldSize, data)
}

func (tm *tracing) BroadcastFromRankZeroCBOR(ctx context.Context, payload []byte) (resp []byte, err error) {
	ctx, span := tm.tracer.Start(ctx, "broadcast-cbor", trace.WithAttributes(
		attribute.Int("payload_bytes", len(payload)),
	))
	defer span.End()

	return tm.svc.BroadcastFromRankZeroCBOR(ctx, payload)
}

func (tm *tracing) ReduceFromAll(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (resp json.RawMessage, err error) {
	ctx, span := tm.tracer.Start(ctx, "reduce", trace.WithAttributes(
		attribute.Int("world_rank", worldRank),
		attribute.Int("world_size", worldSize),
	))
	defer span.End()

	return tm.svc.ReduceFromAll(ctx, worldRank, worldSize, data)
}

func (tm *tracing) Counter(ctx context.Context) (resp int, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-counter")
	defer span.End()

	return tm.svc.Counter(ctx)
}

func (tm *tracing) WorldSize(ctx context.Context) (resp int, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-world-size")
	defer span.End()

	return tm.svc.WorldSize(ctx)
}

func (tm *tracing) ReducedData(ctx context.Context) (resp json.RawMessage, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-reduced-data")
	defer span.End()

	return tm.svc.ReducedData(ctx)
}

func (tm *tracing) ListRounds(ctx context.Context, offset, limit uint64) (resp coordinator.RoundPage, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, offset, limit)
}
