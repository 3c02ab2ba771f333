package mocks

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"

	"storybook-server/internal/messaging"
	"storybook-server/internal/models"
)

// MockEventPublisher is a mock type for the messaging.EventPublisher type
type MockEventPublisher struct {
	mock.Mock
}

// PublishEvent provides a mock function with given fields: ctx, event
func (_m *MockEventPublisher) PublishEvent(ctx context.Context, event models.Event) error {
	ret := _m.Called(ctx, event)
	if rf, ok := ret.Get(0).(func(context.Context, models.Event) error); ok {
		return rf(ctx, event)
	}
	return ret.Error(0)
}

// NewMockEventPublisher creates a new instance of MockEventPublisher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockEventPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockEventPublisher {
	m := &MockEventPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ messaging.EventPublisher = (*MockEventPublisher)(nil)

// MockChannel is a mock type for the messaging.Channel type
type MockChannel struct {
	mock.Mock
}

// ExchangeDeclare provides a mock function with given fields: name, kind, durable, autoDelete, internal, noWait, args
func (_m *MockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	ret := _m.Called(name, kind, durable, autoDelete, internal, noWait, args)
	return ret.Error(0)
}

// PublishWithContext provides a mock function with given fields: ctx, exchange, key, mandatory, immediate, msg
func (_m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	ret := _m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return ret.Error(0)
}

// Close provides a mock function with given fields:
func (_m *MockChannel) Close() error {
	ret := _m.Called()
	return ret.Error(0)
}

// NewMockChannel creates a new instance of MockChannel. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockChannel(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockChannel {
	m := &MockChannel{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ messaging.Channel = (*MockChannel)(nil)
