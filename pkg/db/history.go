package db

import (
	"context"
	"errors"

	"github.com/opst/sealparams/pkg/params"
)

// ErrUpstream is returned when the training history can not be read.
var ErrUpstream = errors.New("training history is not available")

type HistoryInterface interface {
	// SuccessfulAttempts returns every successful production attempt whose
	// parameters are recorded completely.
	//
	// Errors wrap ErrUpstream.
	SuccessfulAttempts(ctx context.Context) ([]params.Example, error)
}
