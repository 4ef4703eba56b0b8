package api

import (
	"encoding/json"

	"github.com/absmach/rendezvous/pkg/collective"
	pkgerrors "github.com/absmach/rendezvous/pkg/errors"
)

type collectiveReq struct {
	WorldRank int             `json:"world_rank"`
	WorldSize int             `json:"world_size"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (r *collectiveReq) validate() error {
	if r.WorldSize < 1 {
		return collective.ErrInvalidWorldSize
	}
	if r.WorldRank < 0 || r.WorldRank >= r.WorldSize {
		return collective.ErrRankOutOfRange
	}

	return nil
}

type cborReq struct {
	payload []byte
}

func (r *cborReq) validate() error {
	if len(r.payload) == 0 {
		return pkgerrors.ErrInvalidPayload
	}

	return nil
}

type barrierReq struct{}

type listRoundsReq struct {
	offset, limit uint64
}

func (r *listRoundsReq) validate() error {
	return nil
}
