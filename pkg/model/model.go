// Package model holds the serving unit of the predictor: a regressor and the
// category encoders it was trained with, and the store which hands out
// immutable snapshots of them.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/opst/sealparams/pkg/category"
	xe "github.com/opst/sealparams/pkg/errors"
	"github.com/opst/sealparams/pkg/params"
)

// Regressor maps an input vector to an output vector.
//
// Implementations should be safe for concurrent Predict.
type Regressor interface {
	Inputs() int
	Outputs() int
	Predict(x []float64) ([]float64, error)
}

var ErrInvalidArtifact = errors.New("invalid model artifact")

// Artifact is a regressor with the encoders it was trained with.
//
// They are versioned together and must be used together.
// Artifacts are not modified once they are built.
type Artifact struct {
	Regressor Regressor
	Encoders  *category.Set
	Version   string
	TrainedAt time.Time
}

// Validate checks that a can serve predictions.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil", ErrInvalidArtifact)
	}
	if a.Version == "" {
		return fmt.Errorf("%w: no version", ErrInvalidArtifact)
	}
	if a.Regressor == nil {
		return fmt.Errorf("%w: no regressor", ErrInvalidArtifact)
	}
	if in, out := a.Regressor.Inputs(), a.Regressor.Outputs(); in != params.InputWidth || out != params.OutputWidth {
		return fmt.Errorf(
			"%w: regressor maps %d -> %d, expected %d -> %d",
			ErrInvalidArtifact, in, out, params.InputWidth, params.OutputWidth,
		)
	}
	if a.Encoders == nil {
		return fmt.Errorf("%w: no encoders", ErrInvalidArtifact)
	}

	expected := params.CategoricalFields()
	if actual := a.Encoders.Fields(); len(actual) != len(expected) {
		return fmt.Errorf("%w: encoders for %v, expected %v", ErrInvalidArtifact, actual, expected)
	}
	for _, f := range expected {
		enc, err := a.Encoders.Get(f)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
		}
		if enc.Len() == 0 {
			return fmt.Errorf("%w: encoder for %s has no classes", ErrInvalidArtifact, f)
		}
	}
	return nil
}

// Predict computes sealing parameters for req.
//
// This is the only prediction path; transports should call this.
//
// Errors are
//
// - params.ErrValidation: req is malformed
//
// - category.ErrUnknownCategory: material or machine is not known to a
//
// - params.ErrInvalidCategoryCode: the regressor emitted an unusable setup
func (a *Artifact) Predict(req params.Request) (params.Result, error) {
	if err := req.Validate(); err != nil {
		return params.Result{}, err
	}
	features, err := params.Features(req, a.Encoders)
	if err != nil {
		return params.Result{}, err
	}
	raw, err := a.Regressor.Predict(features[:])
	if err != nil {
		return params.Result{}, xe.WrapWithNotef(err, "model %s", a.Version)
	}
	return params.Decode(raw, a.Encoders)
}

// Size reports the number of estimators of the regressor, when it tells.
func (a *Artifact) Size() (int, bool) {
	if s, ok := a.Regressor.(interface{ Len() int }); ok {
		return s.Len(), true
	}
	return 0, false
}
