package mocks

import (
	"context"

	"github.com/absmach/rendezvous/pkg/mqtt"
	"github.com/stretchr/testify/mock"
)

// PubSub is a mock implementation of the mqtt.PubSub interface for testing
type PubSub struct {
	mock.Mock
}

// NewPubSub creates a mock whose expectations are asserted on test cleanup
func NewPubSub(t interface {
	mock.TestingT
	Cleanup(func())
},
) *PubSub {
	m := &PubSub{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// Publish publishes a message to the specified topic
func (m *PubSub) Publish(ctx context.Context, topic string, payload any) error {
	args := m.Called(ctx, topic, payload)

	return args.Error(0)
}

// Subscribe subscribes to messages on the specified topic
func (m *PubSub) Subscribe(ctx context.Context, topic string, handler mqtt.Handler) error {
	args := m.Called(ctx, topic, handler)

	return args.Error(0)
}

// Unsubscribe removes the subscription on the specified topic
func (m *PubSub) Unsubscribe(ctx context.Context, topic string) error {
	args := m.Called(ctx, topic)

	return args.Error(0)
}

// Disconnect closes the MQTT connection
func (m *PubSub) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
