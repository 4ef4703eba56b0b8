package api

import (
	"encoding/json"
	"net/http"

	"github.com/absmach/rendezvous/coordinator"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*collectiveRes)(nil)
	_ supermq.Response = (*barrierRes)(nil)
	_ supermq.Response = (*listRoundsRes)(nil)
)

type collectiveRes struct {
	Data json.RawMessage `json:"data"`
}

func (r collectiveRes) Code() int {
	return http.StatusOK
}

func (r collectiveRes) Headers() map[string]string {
	return map[string]string{}
}

func (r collectiveRes) Empty() bool {
	return false
}

// cborRes bypasses the JSON encoder, the transport writes the raw bytes.
type cborRes struct {
	payload []byte
}

type barrierRes struct {
	Counter     int             `json:"counter"`
	WorldSize   int             `json:"world_size"`
	ReducedData json.RawMessage `json:"reduced_data,omitempty"`
}

func (r barrierRes) Code() int {
	return http.StatusOK
}

func (r barrierRes) Headers() map[string]string {
	return map[string]string{}
}

func (r barrierRes) Empty() bool {
	return false
}

type listRoundsRes struct {
	coordinator.RoundPage
}

func (r listRoundsRes) Code() int {
	return http.StatusOK
}

func (r listRoundsRes) Headers() map[string]string {
	return map[string]string{}
}

func (r listRoundsRes) Empty() bool {
	return false
}
