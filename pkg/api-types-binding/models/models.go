package models

import (
	"github.com/opst/sealparams/pkg/api/types/models"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/serving"
	"github.com/opst/sealparams/pkg/utils/rfctime"
)

// ComposeHealth describes the installed artifact. a may be nil.
func ComposeHealth(a *model.Artifact) models.Health {
	if a == nil {
		return models.Health{Status: "healthy", ModelAvailable: false}
	}
	trainedAt := rfctime.RFC3339(a.TrainedAt)
	return models.Health{
		Status:         "healthy",
		ModelAvailable: true,
		ModelVersion:   a.Version,
		ModelTrainedAt: &trainedAt,
	}
}

func ComposeInfo(info serving.Info) models.Info {
	setups := make(map[string][]string, len(info.Setups))
	for z, s := range info.Setups {
		setups[string(z)] = s
	}
	return models.Info{
		ModelLoaded:        true,
		ModelVersion:       info.Version,
		ModelTrainedAt:     rfctime.RFC3339(info.TrainedAt),
		AvailableMaterials: info.Materials,
		AvailableMachines:  info.Machines,
		AvailableSetups:    setups,
		ModelType:          info.ModelType,
		NEstimators:        info.Estimators,
	}
}
