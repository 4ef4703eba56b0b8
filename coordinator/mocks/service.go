package mocks

import (
	"context"
	"encoding/json"

	"github.com/absmach/rendezvous/coordinator"
	"github.com/stretchr/testify/mock"
)

// Service is a hand-rolled testify mock of coordinator.Service.
type Service struct {
	mock.Mock
}

func NewService(t interface {
	mock.TestingT
	Cleanup(func())
},
) *Service {
	m := &Service{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *Service) BroadcastFromRankZero(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, worldRank, worldSize, data)

	var out json.RawMessage
	if args.Get(0) != nil {
		out = args.Get(0).(json.RawMessage)
	}

	return out, args.Error(1)
}

func (m *Service) BroadcastFromRankZeroCBOR(ctx context.Context, payload []byte) ([]byte, error) {
	args := m.Called(ctx, payload)

	var out []byte
	if args.Get(0) != nil {
		out = args.Get(0).([]byte)
	}

	return out, args.Error(1)
}

func (m *Service) ReduceFromAll(ctx context.Context, worldRank, worldSize int, data json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, worldRank, worldSize, data)

	var out json.RawMessage
	if args.Get(0) != nil {
		out = args.Get(0).(json.RawMessage)
	}

	return out, args.Error(1)
}

func (m *Service) Counter(ctx context.Context) (int, error) {
	args := m.Called(ctx)

	return args.Int(0), args.Error(1)
}

func (m *Service) WorldSize(ctx context.Context) (int, error) {
	args := m.Called(ctx)

	return args.Int(0), args.Error(1)
}

func (m *Service) ReducedData(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)

	var out json.RawMessage
	if args.Get(0) != nil {
		out = args.Get(0).(json.RawMessage)
	}

	return out, args.Error(1)
}

func (m *Service) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(coordinator.RoundPage), args.Error(1)
}
