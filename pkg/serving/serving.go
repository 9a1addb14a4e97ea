// Package serving orchestrates predictions and retraining.
//
// It knows nothing about transports: the HTTP daemon and the offline trainer
// share it.
package serving

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/sealparams/pkg/artifact"
	"github.com/opst/sealparams/pkg/db"
	xe "github.com/opst/sealparams/pkg/errors"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/params"
	"github.com/opst/sealparams/pkg/training"
)

// ErrTrainingInProgress is returned by Train while another training runs.
var ErrTrainingInProgress = errors.New("training is in progress")

type Service struct {
	loader     *model.Loader
	history    db.HistoryInterface
	pipeline   *training.Pipeline
	repository artifact.Repository
	logger     model.Logger

	training sync.Mutex
}

type Option func(*Service)

func WithLogger(l model.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func New(
	loader *model.Loader,
	history db.HistoryInterface,
	pipeline *training.Pipeline,
	repository artifact.Repository,
	options ...Option,
) *Service {
	s := &Service{
		loader:     loader,
		history:    history,
		pipeline:   pipeline,
		repository: repository,
		logger:     log.New("serving"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

type Prediction struct {
	Parameters params.Result
	Version    string
	TrainedAt  time.Time
}

// Predict makes a prediction with the installed model.
//
// Errors are
//
// - params.ErrValidation, category.ErrUnknownCategory: req cannot be predicted
//
// - model.ErrUnavailable: no model is trained yet
//
// - params.ErrInvalidCategoryCode: the model answers a setup it does not know
func (s *Service) Predict(ctx context.Context, req params.Request) (Prediction, error) {
	if err := req.Validate(); err != nil {
		return Prediction{}, err
	}

	a, err := s.loader.Ensure(ctx)
	if err != nil {
		return Prediction{}, err
	}

	res, err := a.Predict(req)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Parameters: res, Version: a.Version, TrainedAt: a.TrainedAt}, nil
}

// Train builds a new model from the training history, persists it and installs it.
//
// Until the new model is installed, the previous one keeps serving.
// Only one training runs at a time; others get ErrTrainingInProgress.
func (s *Service) Train(ctx context.Context) (*training.Report, error) {
	if !s.training.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer s.training.Unlock()

	started := time.Now()

	examples, err := s.history.SuccessfulAttempts(ctx)
	if err != nil {
		return nil, xe.WrapWithNote("reading training history", err)
	}
	s.logger.Infof("training with %d successful attempts", len(examples))

	report, err := s.pipeline.Train(ctx, examples)
	if err != nil {
		return nil, err
	}

	bundle, err := artifact.Encode(report.Artifact)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if err := s.repository.Put(ctx, report.Artifact.Version, bundle); err != nil {
		return nil, xe.WrapWithNote("persisting model", err)
	}

	prev, err := s.loader.Store().Swap(report.Artifact)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if prev != nil {
		s.logger.Infof("model %s is replaced by %s (in %s)", prev.Version, report.Artifact.Version, time.Since(started))
	} else {
		s.logger.Infof("model %s is installed (in %s)", report.Artifact.Version, time.Since(started))
	}
	return report, nil
}

// Info describes the installed model.
type Info struct {
	Version   string
	TrainedAt time.Time

	Materials []string
	Machines  []string
	Setups    map[params.Zone][]string

	ModelType string

	// number of trees. 0 if the regressor does not tell.
	Estimators int
}

// Info describes the installed model, loading it when needed.
//
// When there is no model, the error is model.ErrUnavailable.
func (s *Service) Info(ctx context.Context) (Info, error) {
	a, err := s.loader.Ensure(ctx)
	if err != nil {
		return Info{}, err
	}
	return Describe(a)
}

// Installed reports the installed model without loading one.
func (s *Service) Installed() (*model.Artifact, bool) {
	a, err := s.loader.Store().Get()
	return a, err == nil
}

// Reload reads the newest persisted model again.
func (s *Service) Reload(ctx context.Context) (*model.Artifact, error) {
	return s.loader.Reload(ctx)
}

// Describe summarises a.
func Describe(a *model.Artifact) (Info, error) {
	classes := func(field string) ([]string, error) {
		enc, err := a.Encoders.Get(field)
		if err != nil {
			return nil, err
		}
		return enc.Classes(), nil
	}

	info := Info{
		Version:   a.Version,
		TrainedAt: a.TrainedAt,
		Setups:    map[params.Zone][]string{},
		ModelType: artifact.Kind(a.Regressor),
	}
	var err error
	if info.Materials, err = classes(params.FieldMaterialType); err != nil {
		return Info{}, xe.Wrap(err)
	}
	if info.Machines, err = classes(params.FieldMachineID); err != nil {
		return Info{}, xe.Wrap(err)
	}
	for _, z := range params.SideZones {
		if info.Setups[z], err = classes(params.SetupField(z)); err != nil {
			return Info{}, xe.Wrap(err)
		}
	}
	if n, ok := a.Size(); ok {
		info.Estimators = n
	}
	return info, nil
}
