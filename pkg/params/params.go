// Package params defines the order features and sealing parameters the model
// works with, and the fixed layout of their numeric vectors.
//
// The input vector is 4 wide:
//
//	[code(material_type), print_coverage, package_size, code(machine_id)]
//
// The output vector is 31 wide:
//
//	 0.. 2  zipper: temperature, pressure, dwell time
//	 3.. 5  bottom: temperature, pressure, dwell time
//	 6..30  side zones E, D, C, B, A (in this order), 5 slots each:
//	        setup code, upper temperature, lower temperature, pressure, dwell time
//
// Vectors are built and read only through this package.
package params

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	InputWidth  = 4
	OutputWidth = 31
)

// names of categorical fields. They are also keys of persisted encoders.
const (
	FieldMaterialType = "material_type"
	FieldMachineID    = "machine_id"
)

// Zone is a side seal location.
type Zone string

const (
	ZoneA Zone = "A"
	ZoneB Zone = "B"
	ZoneC Zone = "C"
	ZoneD Zone = "D"
	ZoneE Zone = "E"
)

// SideZones in the order they appear in the output vector.
var SideZones = [...]Zone{ZoneE, ZoneD, ZoneC, ZoneB, ZoneA}

// SetupField is the encoder name for setups of the zone. e.g. "setup_e".
func SetupField(z Zone) string {
	return "setup_" + strings.ToLower(string(z))
}

// CategoricalFields lists every field which needs an encoder.
func CategoricalFields() []string {
	fields := []string{FieldMaterialType, FieldMachineID}
	for _, z := range SideZones {
		fields = append(fields, SetupField(z))
	}
	return fields
}

var ErrValidation = errors.New("invalid request")

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(v.Problems, "; "))
}

func (v *ValidationError) Unwrap() error {
	return ErrValidation
}

// Request is the order characteristics a prediction is made for.
type Request struct {
	MaterialType  string
	PrintCoverage float64
	PackageSize   int
	MachineID     string
}

func (r Request) Validate() error {
	problems := []string{}
	if r.MaterialType == "" {
		problems = append(problems, "material_type is required")
	}
	if r.MachineID == "" {
		problems = append(problems, "machine_id is required")
	}
	if math.IsNaN(r.PrintCoverage) || math.IsInf(r.PrintCoverage, 0) || r.PrintCoverage < 0 {
		problems = append(problems, "print_coverage should be a finite number >= 0")
	}
	if r.PackageSize <= 0 {
		problems = append(problems, "package_size should be > 0")
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

type BaseZone struct {
	TemperatureC float64
	PressureBar  float64
	DwellTimeS   float64
}

type SideZone struct {
	Setup             string
	TemperatureUpperC float64
	TemperatureLowerC float64
	PressureBar       float64
	DwellTimeS        float64
}

// Result is a full set of sealing parameters.
type Result struct {
	Zipper BaseZone
	Bottom BaseZone

	SideA SideZone
	SideB SideZone
	SideC SideZone
	SideD SideZone
	SideE SideZone
}

// Side returns the side zone z of r. It panics for unknown zones.
func (r *Result) Side(z Zone) *SideZone {
	switch z {
	case ZoneA:
		return &r.SideA
	case ZoneB:
		return &r.SideB
	case ZoneC:
		return &r.SideC
	case ZoneD:
		return &r.SideD
	case ZoneE:
		return &r.SideE
	}
	panic(fmt.Sprintf("unknown zone: %s", z))
}

// Example is one historical successful attempt.
type Example struct {
	Order      Request
	Parameters Result
}
