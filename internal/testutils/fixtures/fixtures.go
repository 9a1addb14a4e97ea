// Package fixtures builds realistic training data and trained artifacts for tests.
package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/params"
	"github.com/opst/sealparams/pkg/training"
)

var (
	Materials = []string{
		"PAP/PET/LDPE (MAT-02448)",
		"BOPP/BOPP MET/CPP (MAT-02514)",
		"PET/PET MET/LDPE (MAT-02381)",
	}
	Machines = []string{"S1", "S2", "S3"}

	// setup choices per zone
	Setups = map[params.Zone][]string{
		params.ZoneE: {"flat", "wave"},
		params.ZoneD: {"knurl", "flat", "cross"},
		params.ZoneC: {"flat", "wave"},
		params.ZoneB: {"cross", "knurl"},
		params.ZoneA: {"flat", "wave", "knurl", "cross"},
	}

	TrainedAt = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
)

// Examples returns n successful attempts. The same n gives the same examples.
func Examples(n int) []params.Example {
	examples := make([]params.Example, 0, n)
	for i := 0; i < n; i++ {
		mi, si := i%len(Materials), (i/len(Materials))%len(Machines)
		coverage := float64(10+(i*7)%60) + 0.5
		size := 1 + i%4

		base := 140 + 10*float64(mi) + 0.1*coverage
		res := params.Result{
			Zipper: params.BaseZone{TemperatureC: base + 0.04, PressureBar: 2.5 + 0.5*float64(si), DwellTimeS: 0.35 + 0.05*float64(size)},
			Bottom: params.BaseZone{TemperatureC: base + 12.06, PressureBar: 3.0 + 0.25*float64(si), DwellTimeS: 0.4 + 0.025*float64(size)},
		}
		for k, z := range params.SideZones {
			choices := Setups[z]
			*res.Side(z) = params.SideZone{
				Setup:             choices[(i+k)%len(choices)],
				TemperatureUpperC: base + float64(5*k) + 0.33,
				TemperatureLowerC: base + float64(5*k) - 2.17,
				PressureBar:       2.0 + 0.1*float64(k) + 0.2*float64(si),
				DwellTimeS:        0.3 + 0.011*float64(size+k),
			}
		}

		examples = append(examples, params.Example{
			Order: params.Request{
				MaterialType:  Materials[mi],
				PrintCoverage: coverage,
				PackageSize:   size,
				MachineID:     Machines[si],
			},
			Parameters: res,
		})
	}
	return examples
}

// Request returns an order which is known to artifacts built from Examples.
func Request() params.Request {
	return params.Request{
		MaterialType:  Materials[0],
		PrintCoverage: 35.5,
		PackageSize:   3,
		MachineID:     Machines[1],
	}
}

// Artifact trains an artifact from Examples(12) with version.
func Artifact(t *testing.T, version string) *model.Artifact {
	t.Helper()
	report, err := training.New(
		training.WithVersioning(func() (string, error) { return version, nil }),
		training.WithClock(func() time.Time { return TrainedAt }),
	).Train(context.Background(), Examples(12))
	if err != nil {
		t.Fatal(err)
	}
	return report.Artifact
}
