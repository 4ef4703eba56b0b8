package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/absmach/rendezvous/pkg/collective"
	pkgerrors "github.com/absmach/rendezvous/pkg/errors"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType     = "application/json"
	ContentTypeCBOR = "application/cbor"

	MaxLimitSize = 100
)

type errorRes struct {
	Err string `json:"error"`
}

type timeoutRes struct {
	Err       string          `json:"error"`
	WorldSize int             `json:"world_size"`
	TimeoutS  float64         `json:"timeout_s"`
	WaitingS  map[int]float64 `json:"waiting_s"`
	Missing   []int           `json:"missing"`
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response interface{}) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)

	var terr *collective.TimeoutError
	if errors.As(err, &terr) {
		w.WriteHeader(http.StatusRequestTimeout)
		res := timeoutRes{
			Err:       terr.Error(),
			WorldSize: terr.WorldSize,
			TimeoutS:  terr.Timeout.Seconds(),
			WaitingS:  make(map[int]float64, len(terr.Waiting)),
			Missing:   terr.Missing(),
		}
		for rank, waited := range terr.Waiting {
			res.WaitingS[rank] = waited.Seconds()
		}
		if err := json.NewEncoder(w).Encode(res); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}

		return
	}

	switch {
	case errors.Is(err, apiutil.ErrUnsupportedContentType):
		w.WriteHeader(http.StatusUnsupportedMediaType)
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, collective.ErrInvalidWorldSize),
		errors.Is(err, collective.ErrRankOutOfRange),
		errors.Is(err, pkgerrors.ErrInvalidPayload),
		errors.Is(err, pkgerrors.ErrEmptyKey):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, collective.ErrWorldSizeMismatch),
		errors.Is(err, collective.ErrOpMismatch),
		errors.Is(err, pkgerrors.ErrEntityExists):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, collective.ErrTimeout):
		w.WriteHeader(http.StatusRequestTimeout)
	case errors.Is(err, pkgerrors.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if err := json.NewEncoder(w).Encode(errorRes{Err: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
