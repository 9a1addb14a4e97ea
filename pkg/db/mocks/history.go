// this package provide "mock" implementation of database for testing.
package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/opst/sealparams/pkg/db"
	"github.com/opst/sealparams/pkg/params"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

type MockHistoryInterface struct {
	Impl struct {
		SuccessfulAttempts func(context.Context) ([]params.Example, error)
	}
	Calls struct {
		SuccessfulAttempts CallLog[struct{}]
	}

	mu sync.Mutex
}

var _ db.HistoryInterface = &MockHistoryInterface{}

func NewMockHistoryInterface() *MockHistoryInterface {
	return &MockHistoryInterface{}
}

func (m *MockHistoryInterface) SuccessfulAttempts(ctx context.Context) ([]params.Example, error) {
	m.mu.Lock()
	m.Calls.SuccessfulAttempts = append(m.Calls.SuccessfulAttempts, struct{}{})
	m.mu.Unlock()

	if m.Impl.SuccessfulAttempts == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.SuccessfulAttempts(ctx)
}
