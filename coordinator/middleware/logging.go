package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/absmach/rendezvous/coordinator"
)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) BroadcastFromRankZero(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (resp json.RawMessage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("barrier",
				slog.Int("world_rank", worldRank),
				slog.Int("world_size", worldSize),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Broadcast from rank zero failed", args...)

			return
		}
		lm.logger.Info("Broadcast from rank zero completed successfully", args...)
	}(time.Now())

	return lm.svc.BroadcastFromRankZero(ctx, worldRank, worldSize, data)
}

func (lm *loggingMiddleware) BroadcastFromRankZeroCBOR(ctx context.Context, payload []byte) (resp []byte, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("payload_bytes", len(payload)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Broadcast from rank zero (CBOR) failed", args...)

			return
		}
		lm.logger.Info("Broadcast from rank zero (CBOR) completed successfully", args...)
	}(time.Now())

	return lm.svc.BroadcastFromRankZeroCBOR(ctx, payload)
}

func (lm *loggingMiddleware) ReduceFromAll(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (resp json.RawMessage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("barrier",
				slog.Int("world_rank", worldRank),
				slog.Int("world_size", worldSize),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Reduce from all failed", args...)

			return
		}
		lm.logger.Info("Reduce from all completed successfully", args...)
	}(time.Now())

	return lm.svc.ReduceFromAll(ctx, worldRank, worldSize, data)
}

func (lm *loggingMiddleware) Counter(ctx context.Context) (resp int, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("counter", resp),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get counter failed", args...)

			return
		}
		lm.logger.Info("Get counter completed successfully", args...)
	}(time.Now())

	return lm.svc.Counter(ctx)
}

func (lm *loggingMiddleware) WorldSize(ctx context.Context) (resp int, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("world_size", resp),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get world size failed", args...)

			return
		}
		lm.logger.Info("Get world size completed successfully", args...)
	}(time.Now())

	return lm.svc.WorldSize(ctx)
}

func (lm *loggingMiddleware) ReducedData(ctx context.Context) (resp json.RawMessage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get reduced data failed", args...)

			return
		}
		lm.logger.Info("Get reduced data completed successfully", args...)
	}(time.Now())

	return lm.svc.ReducedData(ctx)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (resp coordinator.RoundPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, offset, limit)
}
