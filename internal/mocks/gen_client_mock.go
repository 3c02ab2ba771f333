package mocks

import (
	"context"
	"encoding/json"

	"storybook-server/internal/genclient"
	"storybook-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockGenClient is a mock type for the genclient.Client type
type MockGenClient struct {
	mock.Mock
}

// GenerateStoryText provides a mock function with given fields: ctx, form
func (_m *MockGenClient) GenerateStoryText(ctx context.Context, form models.StoryFormData) (json.RawMessage, error) {
	ret := _m.Called(ctx, form)

	var r0 json.RawMessage
	if rf, ok := ret.Get(0).(func(context.Context, models.StoryFormData) json.RawMessage); ok {
		r0 = rf(ctx, form)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(json.RawMessage)
	}

	return r0, ret.Error(1)
}

// GenerateImage provides a mock function with given fields: ctx, prompt
func (_m *MockGenClient) GenerateImage(ctx context.Context, prompt string) (genclient.Image, error) {
	ret := _m.Called(ctx, prompt)

	var r0 genclient.Image
	if rf, ok := ret.Get(0).(func(context.Context, string) genclient.Image); ok {
		r0 = rf(ctx, prompt)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(genclient.Image)
	}

	return r0, ret.Error(1)
}

// EditImage provides a mock function with given fields: ctx, image, instruction
func (_m *MockGenClient) EditImage(ctx context.Context, image genclient.Image, instruction string) (genclient.Image, error) {
	ret := _m.Called(ctx, image, instruction)

	var r0 genclient.Image
	if rf, ok := ret.Get(0).(func(context.Context, genclient.Image, string) genclient.Image); ok {
		r0 = rf(ctx, image, instruction)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(genclient.Image)
	}

	return r0, ret.Error(1)
}

// GenerateSpeech provides a mock function with given fields: ctx, text
func (_m *MockGenClient) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	ret := _m.Called(ctx, text)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, string) []byte); ok {
		r0 = rf(ctx, text)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	return r0, ret.Error(1)
}

// NewMockGenClient creates a new instance of MockGenClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockGenClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGenClient {
	m := &MockGenClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ genclient.Client = (*MockGenClient)(nil)
