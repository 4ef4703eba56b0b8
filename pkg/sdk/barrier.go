package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	barrierEndpoint = "/barrier"
	roundsEndpoint  = "/rounds"
)

type collectiveReq struct {
	WorldRank int             `json:"world_rank"`
	WorldSize int             `json:"world_size"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type collectiveRes struct {
	Data json.RawMessage `json:"data"`
}

type BarrierStatus struct {
	Counter     int             `json:"counter"`
	WorldSize   int             `json:"world_size"`
	ReducedData json.RawMessage `json:"reduced_data,omitempty"`
}

type Round struct {
	Sequence   uint64    `json:"sequence"`
	Op         string    `json:"op"`
	WorldSize  int       `json:"world_size"`
	StartedAt  time.Time `json:"started_at"`
	ReleasedAt time.Time `json:"released_at"`
}

type RoundPage struct {
	Offset uint64  `json:"offset"`
	Limit  uint64  `json:"limit"`
	Total  uint64  `json:"total"`
	Rounds []Round `json:"rounds"`
}

func (sdk *rendSDK) Broadcast(worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	return sdk.collective(barrierEndpoint+"/broadcast", worldRank, worldSize, data)
}

func (sdk *rendSDK) Reduce(worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	return sdk.collective(barrierEndpoint+"/reduce", worldRank, worldSize, data)
}

func (sdk *rendSDK) collective(endpoint string, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	payload, err := json.Marshal(collectiveReq{
		WorldRank: worldRank,
		WorldSize: worldSize,
		Data:      data,
	})
	if err != nil {
		return nil, err
	}

	url := sdk.coordinatorURL + endpoint

	body, err := sdk.processRequest(http.MethodPost, url, payload, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res collectiveRes
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.Data, nil
}

func (sdk *rendSDK) Barrier() (BarrierStatus, error) {
	url := sdk.coordinatorURL + barrierEndpoint

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return BarrierStatus{}, err
	}

	var status BarrierStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return BarrierStatus{}, err
	}

	return status, nil
}

func (sdk *rendSDK) ListRounds(offset, limit uint64) (RoundPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.coordinatorURL + roundsEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return RoundPage{}, err
	}

	var page RoundPage
	if err := json.Unmarshal(body, &page); err != nil {
		return RoundPage{}, err
	}

	return page, nil
}
