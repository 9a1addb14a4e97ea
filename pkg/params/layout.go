package params

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/opst/sealparams/pkg/category"
)

type Kind int

const (
	Temperature Kind = iota
	Pressure
	DwellTime
	Setup
)

func (k Kind) String() string {
	switch k {
	case Temperature:
		return "temperature"
	case Pressure:
		return "pressure"
	case DwellTime:
		return "dwell time"
	case Setup:
		return "setup"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Decimals is how many decimal places a decoded value of the kind keeps.
//
// Setup is categorical and has no decimals.
func (k Kind) Decimals() int {
	switch k {
	case Temperature, Pressure:
		return 1
	case DwellTime:
		return 2
	}
	return 0
}

// Slot describes one element of the output vector.
type Slot struct {
	Offset int
	Name   string // like "side_e_temperature_upper_c"
	Kind   Kind
	Field  string // encoder name, only for Setup slots
}

// Layout of the output vector. Layout[i].Offset == i.
var Layout = buildLayout()

// SetupOffsets are offsets of categorical slots.
var SetupOffsets = func() []int {
	offsets := []int{}
	for _, s := range Layout {
		if s.Kind == Setup {
			offsets = append(offsets, s.Offset)
		}
	}
	return offsets
}()

func buildLayout() [OutputWidth]Slot {
	slots := []Slot{}
	add := func(name string, kind Kind, field string) {
		slots = append(slots, Slot{Offset: len(slots), Name: name, Kind: kind, Field: field})
	}

	for _, base := range []string{"zipper", "bottom"} {
		add(base+"_temperature_c", Temperature, "")
		add(base+"_pressure_bar", Pressure, "")
		add(base+"_dwell_time_s", DwellTime, "")
	}
	for _, z := range SideZones {
		prefix := "side_" + strings.ToLower(string(z))
		add(prefix+"_setup", Setup, SetupField(z))
		add(prefix+"_temperature_upper_c", Temperature, "")
		add(prefix+"_temperature_lower_c", Temperature, "")
		add(prefix+"_pressure_bar", Pressure, "")
		add(prefix+"_dwell_time_s", DwellTime, "")
	}

	if len(slots) != OutputWidth {
		panic(fmt.Sprintf("layout has %d slots, not %d", len(slots), OutputWidth))
	}
	return [OutputWidth]Slot(slots)
}

// refs returns pointers into r, in the order of Layout.
// Setup slots are *string, others are *float64.
func (r *Result) refs() [OutputWidth]any {
	refs := [OutputWidth]any{
		&r.Zipper.TemperatureC, &r.Zipper.PressureBar, &r.Zipper.DwellTimeS,
		&r.Bottom.TemperatureC, &r.Bottom.PressureBar, &r.Bottom.DwellTimeS,
	}
	for i, z := range SideZones {
		s := r.Side(z)
		at := 6 + 5*i
		refs[at] = &s.Setup
		refs[at+1] = &s.TemperatureUpperC
		refs[at+2] = &s.TemperatureLowerC
		refs[at+3] = &s.PressureBar
		refs[at+4] = &s.DwellTimeS
	}
	return refs
}

var (
	ErrInvalidCategoryCode = errors.New("regressor emitted an invalid category code")
	ErrInvalidOutput       = errors.New("regressor emitted an invalid output")
)

type InvalidCategoryCodeError struct {
	Offset int
	Field  string
	Raw    float64
	Cause  error
}

func (e *InvalidCategoryCodeError) Error() string {
	return fmt.Sprintf("%s: %v at #%d (%s): %s", ErrInvalidCategoryCode, e.Raw, e.Offset, e.Field, e.Cause)
}

func (e *InvalidCategoryCodeError) Unwrap() []error {
	return []error{ErrInvalidCategoryCode, e.Cause}
}

// Features builds the input vector for req.
//
// Unknown material or machine fails with category.ErrUnknownCategory.
func Features(req Request, encoders *category.Set) ([InputWidth]float64, error) {
	material, err := encoders.Encode(FieldMaterialType, req.MaterialType)
	if err != nil {
		return [InputWidth]float64{}, err
	}
	machine, err := encoders.Encode(FieldMachineID, req.MachineID)
	if err != nil {
		return [InputWidth]float64{}, err
	}
	return [InputWidth]float64{
		float64(material),
		req.PrintCoverage,
		float64(req.PackageSize),
		float64(machine),
	}, nil
}

// Targets builds the output vector for parameters. Setups are encoded with
// encoders of their own zones.
func Targets(parameters Result, encoders *category.Set) ([OutputWidth]float64, error) {
	out := [OutputWidth]float64{}
	for i, ref := range parameters.refs() {
		switch v := ref.(type) {
		case *float64:
			out[i] = *v
		case *string:
			code, err := encoders.Encode(Layout[i].Field, *v)
			if err != nil {
				return out, err
			}
			out[i] = float64(code)
		}
	}
	return out, nil
}

// Decode reads an output vector into Result.
//
// Continuous values are rounded to Kind.Decimals.
// Setup values are rounded to the nearest integer (half to even) and decoded;
// codes which are not in the class list fail with ErrInvalidCategoryCode.
func Decode(raw []float64, encoders *category.Set) (Result, error) {
	result := Result{}
	if len(raw) != OutputWidth {
		return result, fmt.Errorf("%w: %d values, expected %d", ErrInvalidOutput, len(raw), OutputWidth)
	}

	for i, ref := range result.refs() {
		v := raw[i]
		slot := Layout[i]
		switch r := ref.(type) {
		case *float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return result, fmt.Errorf("%w: %v at #%d (%s)", ErrInvalidOutput, v, i, slot.Name)
			}
			*r = Round(v, slot.Kind.Decimals())
		case *string:
			label, err := decodeSetup(slot, v, encoders)
			if err != nil {
				return result, err
			}
			*r = label
		}
	}
	return result, nil
}

func decodeSetup(slot Slot, v float64, encoders *category.Set) (string, error) {
	code := math.RoundToEven(v)
	if math.IsNaN(code) || code < math.MinInt32 || math.MaxInt32 < code {
		return "", &InvalidCategoryCodeError{
			Offset: slot.Offset, Field: slot.Field, Raw: v,
			Cause: errors.New("not a finite number"),
		}
	}
	label, err := encoders.Decode(slot.Field, int(code))
	if errors.Is(err, category.ErrIndexOutOfRange) {
		return "", &InvalidCategoryCodeError{Offset: slot.Offset, Field: slot.Field, Raw: v, Cause: err}
	}
	return label, err
}

// Assemble builds a Result from values of continuous slots and setup labels,
// each given in the order of Layout. Values are taken as they are.
func Assemble(continuous []float64, setups []string) (Result, error) {
	result := Result{}
	if len(continuous) != OutputWidth-len(SetupOffsets) || len(setups) != len(SetupOffsets) {
		return result, fmt.Errorf(
			"%w: %d continuous values and %d setups, expected %d and %d",
			ErrInvalidOutput, len(continuous), len(setups), OutputWidth-len(SetupOffsets), len(SetupOffsets),
		)
	}
	for _, ref := range result.refs() {
		switch r := ref.(type) {
		case *float64:
			*r, continuous = continuous[0], continuous[1:]
		case *string:
			*r, setups = setups[0], setups[1:]
		}
	}
	return result, nil
}

// Round rounds v to the given decimal places, half away from zero.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

// Split is the inverse of Assemble.
func (r Result) Split() (continuous []float64, setups []string) {
	for _, ref := range r.refs() {
		switch v := ref.(type) {
		case *float64:
			continuous = append(continuous, *v)
		case *string:
			setups = append(setups, *v)
		}
	}
	return continuous, setups
}
