package training

import "github.com/opst/sealparams/pkg/utils/rfctime"

type OutputMetrics struct {
	Name string  `json:"name"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

type Metrics struct {
	MAE          float64         `json:"mae"`
	R2           float64         `json:"r2"`
	TrainSamples int             `json:"train_samples"`
	TestSamples  int             `json:"test_samples"`
	PerOutput    []OutputMetrics `json:"per_output,omitempty"`
}

// Response is the body of successful POST /api/train.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// nil when all examples are used to fit.
	Metrics *Metrics `json:"metrics,omitempty"`

	TrainingSamples int             `json:"training_samples"`
	ModelVersion    string          `json:"model_version"`
	ModelTrainedAt  rfctime.RFC3339 `json:"model_trained_at"`
}
