// Package mocks provides testify mocks for the hand controller contract.
package mocks

import (
	"context"
	"time"

	"github.com/srg/myolink/internal/hand"
	"github.com/stretchr/testify/mock"
)

// MockController is a testify mock implementing hand.Controller.
type MockController struct {
	mock.Mock
}

func (m *MockController) Connect(ctx context.Context, opts *hand.ConnectOptions) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

func (m *MockController) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockController) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockController) Info(ctx context.Context) (hand.Info, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(hand.Info)
	return info, args.Error(1)
}

// SetPressures supports computed verdicts: registering
// Return(func(values []float64) error) lets a mock validate and record the
// commanded values per call.
func (m *MockController) SetPressures(ctx context.Context, values []float64) error {
	args := m.Called(ctx, values)
	if fn, ok := args.Get(0).(func([]float64) error); ok {
		return fn(values)
	}
	return args.Error(0)
}

// Telemetry supports computed frames: registering
// Return(func() hand.Telemetry, nil) makes every call produce a fresh frame.
func (m *MockController) Telemetry(ctx context.Context) (hand.Telemetry, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func() hand.Telemetry); ok {
		return fn(), args.Error(1)
	}
	tele, _ := args.Get(0).(hand.Telemetry)
	return tele, args.Error(1)
}

func (m *MockController) IMU(ctx context.Context) ([]hand.IMUSample, error) {
	args := m.Called(ctx)
	samples, _ := args.Get(0).([]hand.IMUSample)
	return samples, args.Error(1)
}

func (m *MockController) Magnetics(ctx context.Context) ([]hand.MagneticSample, error) {
	args := m.Called(ctx)
	samples, _ := args.Get(0).([]hand.MagneticSample)
	return samples, args.Error(1)
}

func (m *MockController) Subscribe(opts []*hand.SubscribeOptions, mode hand.StreamMode, maxRate time.Duration, callback func(*hand.Record)) error {
	args := m.Called(opts, mode, maxRate, callback)
	return args.Error(0)
}

// MockDiscoverer is a testify mock implementing hand.Discoverer.
type MockDiscoverer struct {
	mock.Mock
}

func (m *MockDiscoverer) Discover(ctx context.Context) ([]hand.Advertisement, error) {
	args := m.Called(ctx)
	ads, _ := args.Get(0).([]hand.Advertisement)
	return ads, args.Error(1)
}
