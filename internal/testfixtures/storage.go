package testfixtures

import (
	"context"

	"github.com/stretchr/testify/mock"

	"couplesync/backend/internal/storage"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) Write(ctx context.Context, path string, value any) error {
	args := m.Called(ctx, path, value)
	return args.Error(0)
}

func (m *MockStorage) Patch(ctx context.Context, path string, fields map[string]any) error {
	args := m.Called(ctx, path, fields)
	return args.Error(0)
}

func (m *MockStorage) Append(ctx context.Context, path string, value any) (string, error) {
	args := m.Called(ctx, path, value)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockStorage) Subscribe(ctx context.Context, path string, fn func(storage.Snapshot)) error {
	args := m.Called(ctx, path, fn)
	return args.Error(0)
}

func (m *MockStorage) OnDisconnectWrite(ctx context.Context, path string, value any) (storage.Lease, error) {
	args := m.Called(ctx, path, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(storage.Lease), args.Error(1)
}

// MockLease is a testify mock of storage.Lease.
type MockLease struct {
	mock.Mock
}

func (m *MockLease) Renew(ctx context.Context, value any) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockLease) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
