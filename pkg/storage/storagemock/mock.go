package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/phantomwatt/phantomwatt/pkg/storage"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetConfig(ctx context.Context) (types.Config, int, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.Config), args.Int(1), args.Error(2)
	}
	return types.Config{}, 0, nil
}

func (m *MockDatabase) SetConfig(ctx context.Context, cfg types.Config, version int) error {
	args := m.Called(ctx, cfg, version)
	return args.Error(0)
}

func (m *MockDatabase) UpsertOutputState(ctx context.Context, st types.OutputState) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}

func (m *MockDatabase) GetOutputState(ctx context.Context, id types.OutputID) (*types.OutputState, error) {
	args := m.Called(ctx, id)
	val := args.Get(0)
	if val == nil {
		return nil, args.Error(1)
	}
	return val.(*types.OutputState), args.Error(1)
}

func (m *MockDatabase) ListOutputStates(ctx context.Context) ([]types.OutputState, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.OutputState), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) DeleteOutputState(ctx context.Context, id types.OutputID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
