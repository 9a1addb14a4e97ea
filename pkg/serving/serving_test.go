package serving_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/opst/sealparams/internal/testutils/fixtures"
	"github.com/opst/sealparams/pkg/artifact"
	"github.com/opst/sealparams/pkg/artifact/fs"
	amocks "github.com/opst/sealparams/pkg/artifact/mocks"
	"github.com/opst/sealparams/pkg/category"
	"github.com/opst/sealparams/pkg/db"
	dbmocks "github.com/opst/sealparams/pkg/db/mocks"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/params"
	"github.com/opst/sealparams/pkg/serving"
	"github.com/opst/sealparams/pkg/training"
)

func pipeline(version string) *training.Pipeline {
	return training.New(
		training.WithVersioning(func() (string, error) { return version, nil }),
		training.WithClock(func() time.Time { return fixtures.TrainedAt }),
	)
}

// persisted returns a repository which holds an artifact of version.
func persisted(t *testing.T, version string) artifact.Repository {
	t.Helper()
	repo, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b, err := artifact.Encode(fixtures.Artifact(t, version))
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(context.Background(), version, b); err != nil {
		t.Fatal(err)
	}
	return repo
}

func emptyRepository() *amocks.MockRepository {
	repo := amocks.NewMockRepository()
	repo.Impl.Fetch = func(context.Context) (artifact.Bundle, error) {
		return artifact.Bundle{}, artifact.ErrNotFound
	}
	repo.Impl.Put = func(context.Context, string, artifact.Bundle) error {
		return nil
	}
	return repo
}

func newService(repo artifact.Repository, history db.HistoryInterface, version string) *serving.Service {
	loader := model.NewLoader(model.NewStore(), artifact.Source{Repository: repo})
	return serving.New(loader, history, pipeline(version), repo)
}

func TestPredict(t *testing.T) {
	ctx := context.Background()

	t.Run("it predicts with the persisted model", func(t *testing.T) {
		testee := newService(persisted(t, "v1"), dbmocks.NewMockHistoryInterface(), "unused")

		actual, err := testee.Predict(ctx, fixtures.Request())
		if err != nil {
			t.Fatal(err)
		}
		if actual.Version != "v1" {
			t.Errorf("unmatch version: (expected, actual) = (%s, %s)", "v1", actual.Version)
		}
		if !actual.TrainedAt.Equal(fixtures.TrainedAt) {
			t.Errorf("unmatch trained_at: (expected, actual) = (%s, %s)", fixtures.TrainedAt, actual.TrainedAt)
		}
		if !slices.Contains(fixtures.Setups[params.ZoneA], actual.Parameters.SideA.Setup) {
			t.Errorf("unexpected setup for zone A: %s", actual.Parameters.SideA.Setup)
		}
	})

	t.Run("without persisted model, it is ErrUnavailable", func(t *testing.T) {
		repo := emptyRepository()
		testee := newService(repo, dbmocks.NewMockHistoryInterface(), "unused")

		if _, err := testee.Predict(ctx, fixtures.Request()); !errors.Is(err, model.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, but %v", err)
		}
		if _, err := testee.Predict(ctx, fixtures.Request()); !errors.Is(err, model.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, but %v", err)
		}
		if len(repo.Calls.Fetch) != 2 {
			t.Errorf("missing model should be looked up again: fetched %d times", len(repo.Calls.Fetch))
		}
	})

	t.Run("invalid request is rejected before model is loaded", func(t *testing.T) {
		repo := emptyRepository()
		testee := newService(repo, dbmocks.NewMockHistoryInterface(), "unused")

		req := fixtures.Request()
		req.PackageSize = 0
		if _, err := testee.Predict(ctx, req); !errors.Is(err, params.ErrValidation) {
			t.Errorf("expected ErrValidation, but %v", err)
		}
		if len(repo.Calls.Fetch) != 0 {
			t.Errorf("repository is read: %d times", len(repo.Calls.Fetch))
		}
	})

	t.Run("unknown machine is ErrUnknownCategory", func(t *testing.T) {
		testee := newService(persisted(t, "v1"), dbmocks.NewMockHistoryInterface(), "unused")

		req := fixtures.Request()
		req.MachineID = "S9"
		if _, err := testee.Predict(ctx, req); !errors.Is(err, category.ErrUnknownCategory) {
			t.Errorf("expected ErrUnknownCategory, but %v", err)
		}
	})
}

func TestTrain(t *testing.T) {
	ctx := context.Background()

	t.Run("it trains, persists and installs a new model", func(t *testing.T) {
		repo := emptyRepository()
		history := dbmocks.NewMockHistoryInterface()
		history.Impl.SuccessfulAttempts = func(context.Context) ([]params.Example, error) {
			return fixtures.Examples(12), nil
		}
		testee := newService(repo, history, "v2")

		report, err := testee.Train(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if report.Artifact.Version != "v2" || report.TrainSamples != 9 || report.TestSamples != 3 || report.Metrics == nil {
			t.Errorf("unexpected report: %+v", report)
		}

		if len(repo.Calls.Put) != 1 {
			t.Fatalf("unexpected puts: %d", len(repo.Calls.Put))
		}
		put := repo.Calls.Put[0]
		if put.Version != "v2" {
			t.Errorf("unmatch version: (expected, actual) = (%s, %s)", "v2", put.Version)
		}
		if restored, err := artifact.Decode(put.Bundle); err != nil {
			t.Errorf("persisted bundle is broken: %s", err)
		} else if restored.Version != "v2" {
			t.Errorf("unmatch persisted version: (expected, actual) = (%s, %s)", "v2", restored.Version)
		}

		pred, err := testee.Predict(ctx, fixtures.Request())
		if err != nil {
			t.Fatal(err)
		}
		if pred.Version != "v2" {
			t.Errorf("new model is not installed: %s", pred.Version)
		}
		if len(repo.Calls.Fetch) != 0 {
			t.Errorf("installed model should be used without fetching: %d", len(repo.Calls.Fetch))
		}
	})

	for name, testcase := range map[string]struct {
		history  func(context.Context) ([]params.Example, error)
		put      func(context.Context, string, artifact.Bundle) error
		expected error
		putTimes int
	}{
		"when history can not be read, it is the error of history": {
			history: func(context.Context) ([]params.Example, error) {
				return nil, db.ErrUpstream
			},
			expected: db.ErrUpstream,
			putTimes: 0,
		},
		"when examples are too few, it is ErrInsufficientData": {
			history: func(context.Context) ([]params.Example, error) {
				return fixtures.Examples(4), nil
			},
			expected: training.ErrInsufficientData,
			putTimes: 0,
		},
		"when the model can not be persisted, it is the error of repository": {
			history: func(context.Context) ([]params.Example, error) {
				return fixtures.Examples(12), nil
			},
			put: func(context.Context, string, artifact.Bundle) error {
				return artifact.ErrUpstream
			},
			expected: artifact.ErrUpstream,
			putTimes: 1,
		},
	} {
		t.Run(name+", and the previous model keeps serving", func(t *testing.T) {
			repo := amocks.NewMockRepository()
			source := persisted(t, "v1")
			repo.Impl.Fetch = source.Fetch
			repo.Impl.Put = testcase.put

			history := dbmocks.NewMockHistoryInterface()
			history.Impl.SuccessfulAttempts = testcase.history
			testee := newService(repo, history, "v2")

			if _, err := testee.Predict(ctx, fixtures.Request()); err != nil {
				t.Fatal(err)
			}

			if _, err := testee.Train(ctx); !errors.Is(err, testcase.expected) {
				t.Errorf("unexpected error: (expected, actual) = (%v, %v)", testcase.expected, err)
			}
			if len(repo.Calls.Put) != testcase.putTimes {
				t.Errorf("unmatch put times: (expected, actual) = (%d, %d)", testcase.putTimes, len(repo.Calls.Put))
			}

			pred, err := testee.Predict(ctx, fixtures.Request())
			if err != nil {
				t.Fatal(err)
			}
			if pred.Version != "v1" {
				t.Errorf("previous model is replaced: %s", pred.Version)
			}
		})
	}

	t.Run("concurrent training is rejected", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		history := dbmocks.NewMockHistoryInterface()
		history.Impl.SuccessfulAttempts = func(context.Context) ([]params.Example, error) {
			close(started)
			<-release
			return fixtures.Examples(5), nil
		}
		testee := newService(emptyRepository(), history, "v2")

		done := make(chan error, 1)
		go func() {
			_, err := testee.Train(ctx)
			done <- err
		}()
		<-started

		if _, err := testee.Train(ctx); !errors.Is(err, serving.ErrTrainingInProgress) {
			t.Errorf("expected ErrTrainingInProgress, but %v", err)
		}

		close(release)
		if err := <-done; err != nil {
			t.Errorf("first training failed: %s", err)
		}
		if history.Calls.SuccessfulAttempts.Times() != 1 {
			t.Errorf("rejected training reads history: %d", history.Calls.SuccessfulAttempts.Times())
		}
	})
}

func TestInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("it describes the installed model", func(t *testing.T) {
		testee := newService(persisted(t, "v1"), dbmocks.NewMockHistoryInterface(), "unused")

		actual, err := testee.Info(ctx)
		if err != nil {
			t.Fatal(err)
		}

		materials := slices.Clone(fixtures.Materials)
		slices.Sort(materials)
		if !slices.Equal(actual.Materials, materials) {
			t.Errorf("unmatch materials: (expected, actual) = (%v, %v)", materials, actual.Materials)
		}
		if !slices.Equal(actual.Machines, fixtures.Machines) {
			t.Errorf("unmatch machines: (expected, actual) = (%v, %v)", fixtures.Machines, actual.Machines)
		}
		for _, z := range params.SideZones {
			expected := slices.Clone(fixtures.Setups[z])
			slices.Sort(expected)
			if !slices.Equal(actual.Setups[z], expected) {
				t.Errorf("unmatch setups of %s: (expected, actual) = (%v, %v)", z, expected, actual.Setups[z])
			}
		}
		if actual.ModelType != artifact.KindRandomForest {
			t.Errorf("unmatch model type: %s", actual.ModelType)
		}
		if actual.Estimators != 90 {
			t.Errorf("unmatch estimators: (expected, actual) = (%d, %d)", 90, actual.Estimators)
		}
		if actual.Version != "v1" || !actual.TrainedAt.Equal(fixtures.TrainedAt) {
			t.Errorf("unexpected version: %s at %s", actual.Version, actual.TrainedAt)
		}
	})

	t.Run("without model, it is ErrUnavailable", func(t *testing.T) {
		testee := newService(emptyRepository(), dbmocks.NewMockHistoryInterface(), "unused")
		if _, err := testee.Info(ctx); !errors.Is(err, model.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, but %v", err)
		}
		if _, ok := testee.Installed(); ok {
			t.Error("model is installed")
		}
	})
}
