package registry

import (
	"context"

	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/stretchr/testify/mock"
)

// MockClient implements the Client interface for tests.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateWirelessDevice(ctx context.Context, name, destination, profileID string) (model.WirelessDeviceRecord, error) {
	args := m.Called(ctx, name, destination, profileID)
	return args.Get(0).(model.WirelessDeviceRecord), args.Error(1)
}

func (m *MockClient) CreateThing(ctx context.Context, name string, attributes map[string]string) (model.ThingRecord, error) {
	args := m.Called(ctx, name, attributes)
	return args.Get(0).(model.ThingRecord), args.Error(1)
}

func (m *MockClient) Associate(ctx context.Context, thingArn, wirelessDeviceID string) error {
	args := m.Called(ctx, thingArn, wirelessDeviceID)
	return args.Error(0)
}

func (m *MockClient) GetDeviceProfile(ctx context.Context, profileID string) (interface{}, error) {
	args := m.Called(ctx, profileID)
	return args.Get(0), args.Error(1)
}

func (m *MockClient) GetWirelessDevice(ctx context.Context, wirelessDeviceID string) (interface{}, error) {
	args := m.Called(ctx, wirelessDeviceID)
	return args.Get(0), args.Error(1)
}
