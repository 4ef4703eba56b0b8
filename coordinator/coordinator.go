package coordinator

import (
	"context"
	"encoding/json"

	"github.com/absmach/rendezvous/pkg/collective"
)

type Service interface {
	// BroadcastFromRankZero blocks until world_size callers have arrived and
	// then returns rank 0's payload to every one of them.
	BroadcastFromRankZero(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error)

	// BroadcastFromRankZeroCBOR is the broadcast entry point for constrained
	// workers. The payload is a CBOR map {world_rank, world_size, data} and
	// the reply is CBOR as well; callers share rounds with JSON workers.
	BroadcastFromRankZeroCBOR(ctx context.Context, payload []byte) ([]byte, error)

	// ReduceFromAll blocks like a broadcast but folds every rank's payload
	// through the configured reducer and hands the result to all of them.
	ReduceFromAll(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error)

	// Diagnostics for the active round, if any.
	Counter(ctx context.Context) (int, error)
	WorldSize(ctx context.Context) (int, error)
	ReducedData(ctx context.Context) (json.RawMessage, error)

	ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error)
}

type RoundPage struct {
	Offset uint64             `json:"offset"`
	Limit  uint64             `json:"limit"`
	Total  uint64             `json:"total"`
	Rounds []collective.Round `json:"rounds"`
}
