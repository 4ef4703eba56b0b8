package api

import (
	"context"
	"errors"

	"github.com/absmach/rendezvous/coordinator"
	pkgerrors "github.com/absmach/rendezvous/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func broadcastEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(collectiveReq)
		if !ok {
			return collectiveRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return collectiveRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		data, err := svc.BroadcastFromRankZero(ctx, req.WorldRank, req.WorldSize, req.Data)
		if err != nil {
			return collectiveRes{}, err
		}

		return collectiveRes{
			Data: data,
		}, nil
	}
}

func broadcastCBOREndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(cborReq)
		if !ok {
			return cborRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return cborRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		reply, err := svc.BroadcastFromRankZeroCBOR(ctx, req.payload)
		if err != nil {
			return cborRes{}, err
		}

		return cborRes{
			payload: reply,
		}, nil
	}
}

func reduceEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(collectiveReq)
		if !ok {
			return collectiveRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return collectiveRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		data, err := svc.ReduceFromAll(ctx, req.WorldRank, req.WorldSize, req.Data)
		if err != nil {
			return collectiveRes{}, err
		}

		return collectiveRes{
			Data: data,
		}, nil
	}
}

func barrierEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if _, ok := request.(barrierReq); !ok {
			return barrierRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}

		counter, err := svc.Counter(ctx)
		if err != nil {
			return barrierRes{}, err
		}
		worldSize, err := svc.WorldSize(ctx)
		if err != nil {
			return barrierRes{}, err
		}
		reduced, err := svc.ReducedData(ctx)
		if err != nil {
			return barrierRes{}, err
		}

		return barrierRes{
			Counter:     counter,
			WorldSize:   worldSize,
			ReducedData: reduced,
		}, nil
	}
}

func listRoundsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listRoundsReq)
		if !ok {
			return listRoundsRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRoundsRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		rounds, err := svc.ListRounds(ctx, req.offset, req.limit)
		if err != nil {
			return listRoundsRes{}, err
		}

		return listRoundsRes{
			RoundPage: rounds,
		}, nil
	}
}
