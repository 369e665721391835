package server

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tabeth/inhouseaws/store"
)

// MockBackend is a mock implementation of store.Backend for testing.
type MockBackend struct {
	mock.Mock
}

var _ store.Backend = (*MockBackend)(nil)

func (m *MockBackend) Get(ctx context.Context, collection, id string) ([]byte, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBackend) Scan(ctx context.Context, collection, prefix string, fn func(id string, doc []byte) error) error {
	args := m.Called(ctx, collection, prefix, fn)
	return args.Error(0)
}

func (m *MockBackend) Mutate(ctx context.Context, collection, id string, fn store.MutateFunc) (bool, error) {
	args := m.Called(ctx, collection, id, fn)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}
