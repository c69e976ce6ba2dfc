package probe

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockDriver implements the Driver interface for tests.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Enumerate(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDriver) Connect(ctx context.Context, serial string) error {
	args := m.Called(ctx, serial)
	return args.Error(0)
}

func (m *MockDriver) Recover(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) EraseAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) ProgramFile(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockDriver) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) SysReset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Close() error {
	args := m.Called()
	return args.Error(0)
}
