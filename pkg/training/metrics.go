package training

import (
	"math"

	"github.com/opst/sealparams/pkg/params"
)

type Metrics struct {
	// MAE and R2 are uniform averages over output columns.
	MAE float64
	R2  float64

	PerOutput []OutputMetrics
}

type OutputMetrics struct {
	Name string
	MAE  float64
	R2   float64
}

// Evaluate scores predictions against truth, column by column.
//
// A column whose truth is constant scores R2 = 1 when it is predicted exactly,
// and 0 otherwise.
func Evaluate(truth, pred [][]float64) *Metrics {
	if len(truth) == 0 {
		return nil
	}
	width := len(truth[0])
	m := &Metrics{PerOutput: make([]OutputMetrics, width)}

	for j := 0; j < width; j++ {
		mean := 0.0
		for i := range truth {
			mean += truth[i][j]
		}
		mean /= float64(len(truth))

		absErr, ssRes, ssTot := 0.0, 0.0, 0.0
		for i := range truth {
			d := truth[i][j] - pred[i][j]
			absErr += math.Abs(d)
			ssRes += d * d
			ssTot += (truth[i][j] - mean) * (truth[i][j] - mean)
		}

		r2 := 0.0
		switch {
		case ssTot != 0:
			r2 = 1 - ssRes/ssTot
		case ssRes == 0:
			r2 = 1
		}

		name := ""
		if width == params.OutputWidth {
			name = params.Layout[j].Name
		}
		om := OutputMetrics{Name: name, MAE: absErr / float64(len(truth)), R2: r2}
		m.PerOutput[j] = om
		m.MAE += om.MAE
		m.R2 += om.R2
	}
	m.MAE /= float64(width)
	m.R2 /= float64(width)
	return m
}
