// Package training turns successful attempts into a new model.Artifact.
//
// A Pipeline never installs what it builds; the caller decides whether to
// persist and swap it in.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/opst/sealparams/pkg/category"
	xe "github.com/opst/sealparams/pkg/errors"
	"github.com/opst/sealparams/pkg/forest"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/params"
)

var ErrInsufficientData = errors.New("insufficient training data")

type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %d samples. Need at least %d.", ErrInsufficientData, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

const (
	DefaultMinExamples       = 5
	DefaultEvaluateThreshold = 10
	DefaultTestFraction      = 0.2
	DefaultSeed              = 42
)

type Pipeline struct {
	// fewer examples than this are rejected.
	MinExamples int

	// with this many examples or more, a part of them is held out for Metrics.
	EvaluateThreshold int

	// ratio of held out examples, in (0, 1).
	TestFraction float64

	// seed of the split and of the regressor.
	Seed int64

	Now        func() time.Time
	NewVersion func() (string, error)
	Logger     model.Logger
}

type Option func(*Pipeline)

func WithMinExamples(n int) Option {
	return func(p *Pipeline) { p.MinExamples = n }
}

func WithEvaluateThreshold(n int) Option {
	return func(p *Pipeline) { p.EvaluateThreshold = n }
}

func WithTestFraction(f float64) Option {
	return func(p *Pipeline) { p.TestFraction = f }
}

func WithSeed(seed int64) Option {
	return func(p *Pipeline) { p.Seed = seed }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.Now = now }
}

func WithVersioning(newVersion func() (string, error)) Option {
	return func(p *Pipeline) { p.NewVersion = newVersion }
}

func WithLogger(l model.Logger) Option {
	return func(p *Pipeline) { p.Logger = l }
}

func New(options ...Option) *Pipeline {
	p := &Pipeline{
		MinExamples:       DefaultMinExamples,
		EvaluateThreshold: DefaultEvaluateThreshold,
		TestFraction:      DefaultTestFraction,
		Seed:              DefaultSeed,
		Now:               func() time.Time { return time.Now().UTC() },
		NewVersion:        timeOrderedVersion,
		Logger:            log.New("training"),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func timeOrderedVersion() (string, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

type Report struct {
	Artifact *model.Artifact

	// Metrics on held out examples. nil when all examples are used to fit.
	Metrics *Metrics

	TrainSamples int
	TestSamples  int
}

// Train builds an artifact from examples.
//
// Errors are
//
// - ErrInsufficientData: examples are fewer than MinExamples
//
// - context errors when ctx is done while the regressor is being fit
func (p *Pipeline) Train(ctx context.Context, examples []params.Example) (*Report, error) {
	if len(examples) < p.MinExamples {
		return nil, &InsufficientDataError{Have: len(examples), Need: p.MinExamples}
	}

	encoders, err := fitEncoders(examples)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	x := make([][]float64, len(examples))
	y := make([][]float64, len(examples))
	for i, ex := range examples {
		in, err := params.Features(ex.Order, encoders)
		if err != nil {
			return nil, xe.WrapWithNotef(err, "example #%d", i)
		}
		out, err := params.Targets(ex.Parameters, encoders)
		if err != nil {
			return nil, xe.WrapWithNotef(err, "example #%d", i)
		}
		x[i], y[i] = in[:], out[:]
	}

	trainX, trainY, testX, testY := x, y, [][]float64(nil), [][]float64(nil)
	// a single example can not be split.
	if p.EvaluateThreshold <= len(examples) && 2 <= len(examples) {
		trainX, trainY, testX, testY = split(x, y, p.TestFraction, p.Seed)
	}
	p.Logger.Infof("training samples: %d, test samples: %d", len(trainX), len(testX))

	conf := forest.ScaledConfig(len(trainX), p.Seed)
	regressor, err := forest.Fit(ctx, trainX, trainY, conf)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	var metrics *Metrics
	if len(testX) != 0 {
		pred := make([][]float64, len(testX))
		for i := range testX {
			if pred[i], err = regressor.Predict(testX[i]); err != nil {
				return nil, xe.Wrap(err)
			}
		}
		metrics = Evaluate(testY, pred)
		p.Logger.Infof("evaluation: mae = %.4f, r2 = %.4f", metrics.MAE, metrics.R2)
	}

	version, err := p.NewVersion()
	if err != nil {
		return nil, xe.WrapWithNote("issuing model version", err)
	}

	return &Report{
		Artifact: &model.Artifact{
			Regressor: regressor,
			Encoders:  encoders,
			Version:   version,
			TrainedAt: p.Now(),
		},
		Metrics:      metrics,
		TrainSamples: len(trainX),
		TestSamples:  len(testX),
	}, nil
}

// fitEncoders fits one encoder per categorical field over all examples.
func fitEncoders(examples []params.Example) (*category.Set, error) {
	observed := map[string][]string{}
	for _, ex := range examples {
		observed[params.FieldMaterialType] = append(observed[params.FieldMaterialType], ex.Order.MaterialType)
		observed[params.FieldMachineID] = append(observed[params.FieldMachineID], ex.Order.MachineID)
		for _, z := range params.SideZones {
			f := params.SetupField(z)
			observed[f] = append(observed[f], ex.Parameters.Side(z).Setup)
		}
	}

	encoders := []*category.Encoder{}
	for _, f := range params.CategoricalFields() {
		encoders = append(encoders, category.Fit(f, observed[f]))
	}
	return category.NewSet(encoders...)
}

// split shuffles rows with seed and holds out ceil(n * fraction) of them,
// at least one and leaving at least one.
func split(x, y [][]float64, fraction float64, seed int64) ([][]float64, [][]float64, [][]float64, [][]float64) {
	n := len(x)
	nTest := int(math.Ceil(float64(n) * fraction))
	nTest = max(1, min(nTest, n-1))

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	trainX, trainY := make([][]float64, 0, n-nTest), make([][]float64, 0, n-nTest)
	testX, testY := make([][]float64, 0, nTest), make([][]float64, 0, nTest)
	for i, j := range perm {
		if i < nTest {
			testX, testY = append(testX, x[j]), append(testY, y[j])
		} else {
			trainX, trainY = append(trainX, x[j]), append(trainY, y[j])
		}
	}
	return trainX, trainY, testX, testY
}
