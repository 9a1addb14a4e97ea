package training_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/opst/sealparams/internal/testutils/fixtures"
	"github.com/opst/sealparams/pkg/params"
	"github.com/opst/sealparams/pkg/training"
)

func fixedPipeline(options ...training.Option) *training.Pipeline {
	return training.New(append(
		[]training.Option{
			training.WithVersioning(func() (string, error) { return "v-test", nil }),
			training.WithClock(func() time.Time { return fixtures.TrainedAt }),
		},
		options...,
	)...)
}

func TestTrain_SmallData(t *testing.T) {
	ctx := context.Background()

	t.Run("4 examples are insufficient", func(t *testing.T) {
		_, err := fixedPipeline().Train(ctx, fixtures.Examples(4))
		if !errors.Is(err, training.ErrInsufficientData) {
			t.Fatalf("expected ErrInsufficientData, but %v", err)
		}
		var ide *training.InsufficientDataError
		if !errors.As(err, &ide) {
			t.Fatalf("error is not InsufficientDataError: %#v", err)
		}
		if ide.Have != 4 || ide.Need != 5 {
			t.Errorf("unexpected detail: %+v", ide)
		}
	})

	t.Run("5 examples are used all to fit, without metrics", func(t *testing.T) {
		report, err := fixedPipeline().Train(ctx, fixtures.Examples(5))
		if err != nil {
			t.Fatal(err)
		}
		if report.Metrics != nil {
			t.Errorf("metrics should be omitted: %+v", report.Metrics)
		}
		if report.TrainSamples != 5 || report.TestSamples != 0 {
			t.Errorf("unexpected split: %d / %d", report.TrainSamples, report.TestSamples)
		}
		if err := report.Artifact.Validate(); err != nil {
			t.Error(err)
		}
	})

	t.Run("a single example is used to fit, even when the threshold asks for evaluation", func(t *testing.T) {
		report, err := fixedPipeline(
			training.WithMinExamples(1), training.WithEvaluateThreshold(1),
		).Train(ctx, fixtures.Examples(1))
		if err != nil {
			t.Fatal(err)
		}
		if report.TrainSamples != 1 || report.TestSamples != 0 || report.Metrics != nil {
			t.Errorf("unexpected split: %d / %d, metrics = %+v", report.TrainSamples, report.TestSamples, report.Metrics)
		}
	})

	t.Run("two examples are split into one to fit and one to evaluate", func(t *testing.T) {
		report, err := fixedPipeline(
			training.WithMinExamples(1), training.WithEvaluateThreshold(2),
		).Train(ctx, fixtures.Examples(2))
		if err != nil {
			t.Fatal(err)
		}
		if report.TrainSamples != 1 || report.TestSamples != 1 || report.Metrics == nil {
			t.Errorf("unexpected split: %d / %d, metrics = %+v", report.TrainSamples, report.TestSamples, report.Metrics)
		}
	})

	t.Run("MinExamples is configurable", func(t *testing.T) {
		_, err := fixedPipeline(training.WithMinExamples(8)).Train(ctx, fixtures.Examples(7))
		if !errors.Is(err, training.ErrInsufficientData) {
			t.Errorf("expected ErrInsufficientData, but %v", err)
		}
	})
}

func TestTrain_EndToEnd(t *testing.T) {
	examples := fixtures.Examples(12)
	report, err := fixedPipeline().Train(context.Background(), examples)
	if err != nil {
		t.Fatal(err)
	}

	if report.TrainSamples != 9 || report.TestSamples != 3 {
		t.Errorf("unexpected split: (train, test) = (%d, %d)", report.TrainSamples, report.TestSamples)
	}
	if report.Metrics == nil {
		t.Fatal("metrics are missing")
	}
	if len(report.Metrics.PerOutput) != params.OutputWidth {
		t.Errorf("unexpected per-output metrics: %d", len(report.Metrics.PerOutput))
	}
	if math.IsNaN(report.Metrics.MAE) || report.Metrics.MAE < 0 {
		t.Errorf("unexpected MAE: %v", report.Metrics.MAE)
	}

	a := report.Artifact
	if a.Version != "v-test" || !a.TrainedAt.Equal(fixtures.TrainedAt) {
		t.Errorf("unexpected stamp: %s @ %s", a.Version, a.TrainedAt)
	}

	t.Run("encoders are fit over all examples", func(t *testing.T) {
		for _, tc := range []struct {
			field    string
			expected []string
		}{
			{field: params.FieldMaterialType, expected: slices.Sorted(slices.Values(fixtures.Materials))},
			{field: params.FieldMachineID, expected: fixtures.Machines},
			{field: params.SetupField(params.ZoneD), expected: []string{"cross", "flat", "knurl"}},
		} {
			enc, err := a.Encoders.Get(tc.field)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(tc.expected, enc.Classes()) {
				t.Errorf("%s: (expected, actual) = (%v, %v)", tc.field, tc.expected, enc.Classes())
			}
		}
	})

	t.Run("every example gets a complete, rounded result", func(t *testing.T) {
		for i, ex := range examples {
			result, err := a.Predict(ex.Order)
			if err != nil {
				t.Fatalf("example #%d: %v", i, err)
			}

			for _, base := range []params.BaseZone{result.Zipper, result.Bottom} {
				assertRounded(t, base.TemperatureC, 1)
				assertRounded(t, base.PressureBar, 1)
				assertRounded(t, base.DwellTimeS, 2)
			}
			for _, z := range params.SideZones {
				side := result.Side(z)
				if !slices.Contains(fixtures.Setups[z], side.Setup) {
					t.Errorf("example #%d: setup of %s is not a known class: %q", i, z, side.Setup)
				}
				assertRounded(t, side.TemperatureUpperC, 1)
				assertRounded(t, side.TemperatureLowerC, 1)
				assertRounded(t, side.PressureBar, 1)
				assertRounded(t, side.DwellTimeS, 2)
			}
		}
	})
}

func assertRounded(t *testing.T, v float64, decimals int) {
	t.Helper()
	if params.Round(v, decimals) != v {
		t.Errorf("%v has more than %d decimals", v, decimals)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	examples := fixtures.Examples(15)
	a, err := fixedPipeline().Train(context.Background(), examples)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fixedPipeline().Train(context.Background(), examples)
	if err != nil {
		t.Fatal(err)
	}

	if !metricsEqual(a.Metrics, b.Metrics) {
		t.Errorf("metrics differ: %+v vs %+v", a.Metrics, b.Metrics)
	}
	for _, ex := range examples {
		ra, err := a.Artifact.Predict(ex.Order)
		if err != nil {
			t.Fatal(err)
		}
		rb, err := b.Artifact.Predict(ex.Order)
		if err != nil {
			t.Fatal(err)
		}
		if ra != rb {
			t.Errorf("predictions differ: %+v vs %+v", ra, rb)
		}
	}
}

func metricsEqual(a, b *training.Metrics) bool {
	return a.MAE == b.MAE && a.R2 == b.R2 && slices.Equal(a.PerOutput, b.PerOutput)
}

func TestTrain_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fixedPipeline().Train(ctx, fixtures.Examples(12)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, but %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	truth := [][]float64{{1, 5}, {2, 5}, {3, 5}}

	t.Run("perfect prediction", func(t *testing.T) {
		actual := training.Evaluate(truth, truth)
		if actual.MAE != 0 || actual.R2 != 1 {
			t.Errorf("unexpected metrics: %+v", actual)
		}
	})

	t.Run("constant column scores 0 unless exact", func(t *testing.T) {
		pred := [][]float64{{1, 5}, {2, 6}, {3, 5}}
		actual := training.Evaluate(truth, pred)

		if actual.PerOutput[0].R2 != 1 || actual.PerOutput[1].R2 != 0 {
			t.Errorf("unexpected r2: %+v", actual.PerOutput)
		}
		if actual.R2 != 0.5 {
			t.Errorf("r2 is not averaged over columns: %v", actual.R2)
		}
		expectedMAE := (0 + 1.0/3) / 2
		if math.Abs(actual.MAE-expectedMAE) > 1e-12 {
			t.Errorf("unmatch MAE: (expected, actual) = (%v, %v)", expectedMAE, actual.MAE)
		}
	})

	t.Run("r2 is 1 - SSres/SStot", func(t *testing.T) {
		pred := [][]float64{{2, 5}, {2, 5}, {2, 5}}
		actual := training.Evaluate(truth, pred)
		if actual.PerOutput[0].R2 != 0 {
			t.Errorf("predicting the mean should score 0: %v", actual.PerOutput[0].R2)
		}
		if actual.PerOutput[0].MAE != 2.0/3 {
			t.Errorf("unmatch MAE: %v", actual.PerOutput[0].MAE)
		}
	})

	t.Run("nothing to evaluate is nil", func(t *testing.T) {
		if actual := training.Evaluate(nil, nil); actual != nil {
			t.Errorf("expected nil, but %+v", actual)
		}
	})
}
