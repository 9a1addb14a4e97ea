package forest_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/opst/sealparams/pkg/forest"
)

func stepData() ([][]float64, [][]float64) {
	x := [][]float64{}
	y := [][]float64{}
	for i := 0; i < 40; i++ {
		v := float64(i)
		x = append(x, []float64{v, float64(i % 3)})
		if i < 20 {
			y = append(y, []float64{10, 100})
		} else {
			y = append(y, []float64{20, 300})
		}
	}
	return x, y
}

func TestFit(t *testing.T) {
	ctx := context.Background()

	t.Run("constant targets are predicted exactly", func(t *testing.T) {
		x := [][]float64{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}}
		y := [][]float64{{7, -1.5}, {7, -1.5}, {7, -1.5}, {7, -1.5}, {7, -1.5}}

		testee, err := forest.Fit(ctx, x, y, forest.ScaledConfig(len(x), 42))
		if err != nil {
			t.Fatal(err)
		}
		actual, err := testee.Predict([]float64{10, 10})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal([]float64{7, -1.5}, actual) {
			t.Errorf("unmatch prediction: %v", actual)
		}
	})

	t.Run("it learns a step in every output", func(t *testing.T) {
		x, y := stepData()
		testee, err := forest.Fit(ctx, x, y, forest.ScaledConfig(len(x), 42))
		if err != nil {
			t.Fatal(err)
		}

		for _, tc := range []struct {
			in       []float64
			expected []float64
		}{
			{in: []float64{2, 0}, expected: []float64{10, 100}},
			{in: []float64{37, 1}, expected: []float64{20, 300}},
		} {
			actual, err := testee.Predict(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			for i := range tc.expected {
				if math.Abs(tc.expected[i]-actual[i]) > 1e-9 {
					t.Errorf("input %v: (expected, actual) = (%v, %v)", tc.in, tc.expected, actual)
					break
				}
			}
		}
	})

	t.Run("same seed gives the same forest", func(t *testing.T) {
		x, y := stepData()
		for i := range y {
			y[i][0] += float64(i%7) * 0.3
		}

		conf := forest.ScaledConfig(len(x), 7)
		conf.Workers = 4
		a, err := forest.Fit(ctx, x, y, conf)
		if err != nil {
			t.Fatal(err)
		}
		conf.Workers = 1
		b, err := forest.Fit(ctx, x, y, conf)
		if err != nil {
			t.Fatal(err)
		}

		ba, _ := a.MarshalBinary()
		bb, _ := b.MarshalBinary()
		if !slices.Equal(ba, bb) {
			t.Error("forests differ")
		}
	})

	t.Run("shapes are checked", func(t *testing.T) {
		conf := forest.DefaultConfig()
		for name, tc := range map[string]struct {
			x [][]float64
			y [][]float64
		}{
			"no samples":      {x: nil, y: nil},
			"count mismatch":  {x: [][]float64{{1}, {2}}, y: [][]float64{{1}}},
			"ragged input":    {x: [][]float64{{1, 2}, {2}}, y: [][]float64{{1}, {1}}},
			"non-finite":      {x: [][]float64{{math.NaN()}}, y: [][]float64{{1}}},
			"non-finite out":  {x: [][]float64{{1}}, y: [][]float64{{math.Inf(1)}}},
			"empty input row": {x: [][]float64{{}}, y: [][]float64{{1}}},
		} {
			t.Run(name, func(t *testing.T) {
				if _, err := forest.Fit(ctx, tc.x, tc.y, conf); !errors.Is(err, forest.ErrShape) {
					t.Errorf("expected ErrShape, but %v", err)
				}
			})
		}
	})

	t.Run("canceled context stops fitting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		x, y := stepData()
		if _, err := forest.Fit(ctx, x, y, forest.DefaultConfig()); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, but %v", err)
		}
	})
}

func TestScaledConfig(t *testing.T) {
	for _, tc := range []struct {
		n     int
		trees int
		depth int
		split int
	}{
		{n: 5, trees: 50, depth: 5, split: 2},
		{n: 12, trees: 100, depth: 10, split: 2},
		{n: 250, trees: 100, depth: 10, split: 25},
	} {
		actual := forest.ScaledConfig(tc.n, 42)
		if actual.Trees != tc.trees || actual.MaxDepth != tc.depth || actual.MinSamplesSplit != tc.split {
			t.Errorf("n = %d: unexpected config %+v", tc.n, actual)
		}
		if actual.Seed != 42 {
			t.Errorf("seed is not kept: %d", actual.Seed)
		}
	}
}

func TestPredict_WrongWidth(t *testing.T) {
	x, y := stepData()
	testee, err := forest.Fit(context.Background(), x, y, forest.ScaledConfig(len(x), 42))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := testee.Predict([]float64{1}); !errors.Is(err, forest.ErrShape) {
		t.Errorf("expected ErrShape, but %v", err)
	}
}

func TestMarshalBinary(t *testing.T) {
	x, y := stepData()
	original, err := forest.Fit(context.Background(), x, y, forest.ScaledConfig(len(x), 42))
	if err != nil {
		t.Fatal(err)
	}
	b, err := original.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	restored := new(forest.Forest)
	if err := restored.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if restored.Inputs() != 2 || restored.Outputs() != 2 || restored.Len() != original.Len() {
		t.Fatalf("unmatch shape: %d -> %d, %d trees", restored.Inputs(), restored.Outputs(), restored.Len())
	}
	for _, row := range x {
		expected, _ := original.Predict(row)
		actual, _ := restored.Predict(row)
		if !slices.Equal(expected, actual) {
			t.Errorf("prediction changed for %v: (expected, actual) = (%v, %v)", row, expected, actual)
		}
	}

	t.Run("broken blob is an error", func(t *testing.T) {
		if err := new(forest.Forest).UnmarshalBinary([]byte("not a forest")); err == nil {
			t.Error("expected error, but nil")
		}
	})
}
