package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/absmach/rendezvous/coordinator"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) BroadcastFromRankZero(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "broadcast").Add(1)
		mm.latency.With("method", "broadcast").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.BroadcastFromRankZero(ctx, worldRank, worldSize, data)
}

func (mm *metricsMiddleware) BroadcastFromRankZeroCBOR(ctx context.Context, payload []byte) ([]byte, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "broadcast-cbor").Add(1)
		mm.latency.With("method", "broadcast-cbor").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.BroadcastFromRankZeroCBOR(ctx, payload)
}

func (mm *metricsMiddleware) ReduceFromAll(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "reduce").Add(1)
		mm.latency.With("method", "reduce").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ReduceFromAll(ctx, worldRank, worldSize, data)
}

func (mm *metricsMiddleware) Counter(ctx context.Context) (int, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-counter").Add(1)
		mm.latency.With("method", "get-counter").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Counter(ctx)
}

func (mm *metricsMiddleware) WorldSize(ctx context.Context) (int, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-world-size").Add(1)
		mm.latency.With("method", "get-world-size").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.WorldSize(ctx)
}

func (mm *metricsMiddleware) ReducedData(ctx context.Context) (json.RawMessage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-reduced-data").Add(1)
		mm.latency.With("method", "get-reduced-data").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ReducedData(ctx)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, offset, limit)
}
