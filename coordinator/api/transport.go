package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/rendezvous/coordinator"
	"github.com/absmach/rendezvous/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/barrier", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			barrierEndpoint(svc),
			decodeBarrierReq,
			api.EncodeResponse,
			opts...,
		), "get-barrier").ServeHTTP)
		r.Post("/broadcast", otelhttp.NewHandler(kithttp.NewServer(
			broadcastEndpoint(svc),
			decodeCollectiveReq,
			api.EncodeResponse,
			opts...,
		), "broadcast").ServeHTTP)
		r.Post("/broadcast_cbor", otelhttp.NewHandler(kithttp.NewServer(
			broadcastCBOREndpoint(svc),
			decodeCBORReq,
			encodeCBORResponse,
			opts...,
		), "broadcast-cbor").ServeHTTP)
		r.Post("/reduce", otelhttp.NewHandler(kithttp.NewServer(
			reduceEndpoint(svc),
			decodeCollectiveReq,
			api.EncodeResponse,
			opts...,
		), "reduce").ServeHTTP)
	})

	mux.Get("/rounds", otelhttp.NewHandler(kithttp.NewServer(
		listRoundsEndpoint(svc),
		decodeListRoundsReq,
		api.EncodeResponse,
		opts...,
	), "list-rounds").ServeHTTP)

	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeCollectiveReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req collectiveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeCBORReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentTypeCBOR) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return cborReq{payload: payload}, nil
}

func decodeBarrierReq(_ context.Context, _ *http.Request) (any, error) {
	return barrierReq{}, nil
}

func decodeListRoundsReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listRoundsReq{
		offset: o,
		limit:  l,
	}, nil
}

func encodeCBORResponse(_ context.Context, w http.ResponseWriter, response any) error {
	res, ok := response.(cborRes)
	if !ok {
		return apiutil.ErrValidation
	}
	w.Header().Set("Content-Type", api.ContentTypeCBOR)
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(res.payload)

	return err
}
