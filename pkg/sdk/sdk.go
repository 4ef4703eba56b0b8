package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const CTJSON string = "application/json"

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// Broadcast joins the collective as worldRank of worldSize and blocks
	// until every rank has arrived, then returns rank 0's payload. data is
	// ignored for every rank except 0.
	//
	// example:
	//  out, _ := sdk.Broadcast(3, 8, nil)
	//  fmt.Println(string(out))
	Broadcast(worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error)

	// Reduce joins the collective like Broadcast but submits data as this
	// rank's vote and returns the coordinator's reduction over all votes.
	//
	// example:
	//  out, _ := sdk.Reduce(0, 2, json.RawMessage(`{"loss":0.25}`))
	//  fmt.Println(string(out))
	Reduce(worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error)

	// Barrier reports the state of the active round, if any.
	//
	// example:
	//  status, _ := sdk.Barrier()
	//  fmt.Println(status.Counter, status.WorldSize)
	Barrier() (BarrierStatus, error)

	// ListRounds pages through released rounds, oldest first.
	//
	// example:
	//  page, _ := sdk.ListRounds(0, 10)
	//  fmt.Println(page.Total)
	ListRounds(offset uint64, limit uint64) (RoundPage, error)
}

type rendSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

// NewSDK builds a client for the coordinator API. The client carries no
// request timeout, collective calls block until the coordinator releases or
// cancels the round server-side.
func NewSDK(cfg Config) SDK {
	return &rendSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *rendSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if err := json.Unmarshal(body, &e); err == nil && e.Err != "" {
			return []byte{}, fmt.Errorf("status %d: %s", resp.StatusCode, e.Err)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
