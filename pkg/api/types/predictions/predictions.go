package predictions

import (
	"encoding/json"
	"fmt"

	"github.com/opst/sealparams/pkg/params"
	"github.com/opst/sealparams/pkg/utils/rfctime"
)

// Request is the body of POST /api/predict.
//
// Fields are pointers to tell absence from zero.
type Request struct {
	MaterialType  *string  `json:"material_type"`
	PrintCoverage *float64 `json:"print_coverage"`
	PackageSize   *int     `json:"package_size"`
	MachineID     *string  `json:"machine_id,omitempty"`

	// Sackovacka is the older name of MachineID.
	Sackovacka *string `json:"sackovacka,omitempty"`
}

// Bind converts r to params.Request.
//
// Missing fields are *params.ValidationError.
func (r Request) Bind() (params.Request, error) {
	problems := []string{}
	req := params.Request{}

	if r.MaterialType == nil {
		problems = append(problems, "material_type is required")
	} else {
		req.MaterialType = *r.MaterialType
	}
	if r.PrintCoverage == nil {
		problems = append(problems, "print_coverage is required")
	} else {
		req.PrintCoverage = *r.PrintCoverage
	}
	if r.PackageSize == nil {
		problems = append(problems, "package_size is required")
	} else {
		req.PackageSize = *r.PackageSize
	}

	switch {
	case r.MachineID != nil && r.Sackovacka != nil && *r.MachineID != *r.Sackovacka:
		problems = append(problems, "machine_id and sackovacka are different")
	case r.MachineID != nil:
		req.MachineID = *r.MachineID
	case r.Sackovacka != nil:
		req.MachineID = *r.Sackovacka
	default:
		problems = append(problems, "machine_id is required")
	}

	if len(problems) != 0 {
		return params.Request{}, &params.ValidationError{Problems: problems}
	}
	return req, req.Validate()
}

// Parameters is params.Result in the flat form, keyed by slot names:
//
//	{"zipper_temperature_c": 180.5, ..., "side_a_setup": "flat", ...}
type Parameters params.Result

func (p Parameters) MarshalJSON() ([]byte, error) {
	continuous, setups := params.Result(p).Split()
	flat := make(map[string]any, params.OutputWidth)
	for _, slot := range params.Layout {
		if slot.Kind == params.Setup {
			flat[slot.Name], setups = setups[0], setups[1:]
		} else {
			flat[slot.Name], continuous = continuous[0], continuous[1:]
		}
	}
	return json.Marshal(flat)
}

func (p *Parameters) UnmarshalJSON(b []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}

	continuous, setups := []float64{}, []string{}
	for _, slot := range params.Layout {
		raw, ok := flat[slot.Name]
		if !ok {
			return fmt.Errorf(`required field missing: "%s"`, slot.Name)
		}
		if slot.Kind == params.Setup {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("%s: %w", slot.Name, err)
			}
			setups = append(setups, s)
		} else {
			var v float64
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("%s: %w", slot.Name, err)
			}
			continuous = append(continuous, v)
		}
	}
	r, err := params.Assemble(continuous, setups)
	if err != nil {
		return err
	}
	*p = Parameters(r)
	return nil
}

// Response is the body of successful POST /api/predict.
type Response struct {
	Success        bool            `json:"success"`
	Predictions    Parameters      `json:"predictions"`
	ModelVersion   string          `json:"model_version"`
	ModelTrainedAt rfctime.RFC3339 `json:"model_trained_at"`
}
