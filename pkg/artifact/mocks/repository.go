package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/opst/sealparams/pkg/artifact"
)

type PutArgs struct {
	Version string
	Bundle  artifact.Bundle
}

type MockRepository struct {
	Impl struct {
		Fetch func(ctx context.Context) (artifact.Bundle, error)
		Put   func(ctx context.Context, version string, b artifact.Bundle) error
	}
	Calls struct {
		Fetch []struct{}
		Put   []PutArgs
	}

	mu sync.Mutex
}

var _ artifact.Repository = &MockRepository{}

func NewMockRepository() *MockRepository {
	return &MockRepository{}
}

func (m *MockRepository) Fetch(ctx context.Context) (artifact.Bundle, error) {
	m.mu.Lock()
	m.Calls.Fetch = append(m.Calls.Fetch, struct{}{})
	m.mu.Unlock()

	if m.Impl.Fetch == nil {
		return artifact.Bundle{}, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Fetch(ctx)
}

func (m *MockRepository) Put(ctx context.Context, version string, b artifact.Bundle) error {
	m.mu.Lock()
	m.Calls.Put = append(m.Calls.Put, PutArgs{Version: version, Bundle: b})
	m.mu.Unlock()

	if m.Impl.Put == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.Put(ctx, version, b)
}
