package models

import "github.com/opst/sealparams/pkg/utils/rfctime"

// Health is the body of GET /api/health.
type Health struct {
	Status         string           `json:"status"`
	ModelAvailable bool             `json:"model_available"`
	ModelVersion   string           `json:"model_version,omitempty"`
	ModelTrainedAt *rfctime.RFC3339 `json:"model_trained_at,omitempty"`
}

// Info is the body of GET /api/model.
type Info struct {
	ModelLoaded    bool            `json:"model_loaded"`
	ModelVersion   string          `json:"model_version"`
	ModelTrainedAt rfctime.RFC3339 `json:"model_trained_at"`

	AvailableMaterials []string `json:"available_materials"`
	AvailableMachines  []string `json:"available_machines"`

	// setups known for each side zone, keyed by zone name ("A" to "E").
	AvailableSetups map[string][]string `json:"available_setups"`

	ModelType   string `json:"model_type"`
	NEstimators int    `json:"n_estimators,omitempty"`
}
