// Package mocks provides testify mocks for the engine's collaborators.
package mocks

import (
	"context"
	"time"

	"github.com/flowmail/journey/pkg/email"
	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/scheduler"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// MockGateway is a mock implementation of scheduler.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) EnqueueNow(ctx context.Context, job scheduler.Job) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockGateway) EnqueueAfter(ctx context.Context, job scheduler.Job, delay time.Duration) error {
	args := m.Called(ctx, job, delay)

	return args.Error(0)
}

func (m *MockGateway) Cancel(ctx context.Context, dedupeKey string) error {
	args := m.Called(ctx, dedupeKey)

	return args.Error(0)
}

func (m *MockGateway) Close() error {
	args := m.Called()

	return args.Error(0)
}

// MockDelivery is a mock implementation of email.Delivery.
type MockDelivery struct {
	mock.Mock
}

func (m *MockDelivery) Send(ctx context.Context, message email.Message) (string, error) {
	args := m.Called(ctx, message)

	return args.String(0), args.Error(1)
}
