package training

import (
	apitraining "github.com/opst/sealparams/pkg/api/types/training"
	ktraining "github.com/opst/sealparams/pkg/training"
	"github.com/opst/sealparams/pkg/utils"
	"github.com/opst/sealparams/pkg/utils/rfctime"
)

func ComposeOutputMetrics(m ktraining.OutputMetrics) apitraining.OutputMetrics {
	return apitraining.OutputMetrics{Name: m.Name, MAE: m.MAE, R2: m.R2}
}

func ComposeResponse(r *ktraining.Report) apitraining.Response {
	resp := apitraining.Response{
		Success:         true,
		Message:         "Model trained successfully",
		TrainingSamples: r.TrainSamples,
		ModelVersion:    r.Artifact.Version,
		ModelTrainedAt:  rfctime.RFC3339(r.Artifact.TrainedAt),
	}
	if r.Metrics != nil {
		resp.Metrics = &apitraining.Metrics{
			MAE:          r.Metrics.MAE,
			R2:           r.Metrics.R2,
			TrainSamples: r.TrainSamples,
			TestSamples:  r.TestSamples,
			PerOutput:    utils.Map(r.Metrics.PerOutput, ComposeOutputMetrics),
		}
	}
	return resp
}
