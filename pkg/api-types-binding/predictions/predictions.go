package predictions

import (
	"github.com/opst/sealparams/pkg/api/types/predictions"
	"github.com/opst/sealparams/pkg/serving"
	"github.com/opst/sealparams/pkg/utils/rfctime"
)

func ComposeResponse(p serving.Prediction) predictions.Response {
	return predictions.Response{
		Success:        true,
		Predictions:    predictions.Parameters(p.Parameters),
		ModelVersion:   p.Version,
		ModelTrainedAt: rfctime.RFC3339(p.TrainedAt),
	}
}
