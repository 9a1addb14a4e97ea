package category

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/opst/sealparams/pkg/utils/maps"
)

var ErrMissingField = errors.New("category: no encoder for field")

// Set is a field name -> Encoder mapping, paired with one fitted model.
//
// A Set is immutable. Retraining builds a new one.
type Set struct {
	encoders map[string]*Encoder
}

func NewSet(encoders ...*Encoder) (*Set, error) {
	m := make(map[string]*Encoder, len(encoders))
	for _, e := range encoders {
		if _, ok := m[e.Field()]; ok {
			return nil, fmt.Errorf("category: encoder for %s is given twice", e.Field())
		}
		m[e.Field()] = e
	}
	return &Set{encoders: m}, nil
}

func (s *Set) Get(field string) (*Encoder, error) {
	e, ok := s.encoders[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return e, nil
}

func (s *Set) Encode(field, value string) (int, error) {
	e, err := s.Get(field)
	if err != nil {
		return -1, err
	}
	return e.Encode(value)
}

func (s *Set) Decode(field string, code int) (string, error) {
	e, err := s.Get(field)
	if err != nil {
		return "", err
	}
	return e.Decode(code)
}

// Fields returns field names in sorted order.
func (s *Set) Fields() []string {
	return maps.SortedKeys(s.encoders)
}

func (s *Set) Equal(other *Set) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	if !slices.Equal(s.Fields(), other.Fields()) {
		return false
	}
	for f, e := range s.encoders {
		if !e.Equal(other.encoders[f]) {
			return false
		}
	}
	return true
}

type classList struct {
	Classes []string `json:"classes"`
}

// MarshalJSON writes {"<field>": {"classes": [...]}, ...}.
func (s *Set) MarshalJSON() ([]byte, error) {
	out := make(map[string]classList, len(s.encoders))
	for f, e := range s.encoders {
		out[f] = classList{Classes: e.classes}
	}
	return json.Marshal(out)
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var in map[string]classList
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	encoders := make(map[string]*Encoder, len(in))
	for f, cl := range in {
		e, err := New(f, cl.Classes)
		if err != nil {
			return err
		}
		encoders[f] = e
	}
	s.encoders = encoders
	return nil
}

// FromRaw builds a Set from per-field raw JSON values shaped as {"classes": [...]}.
//
// This is for documents which carry other keys next to the encoders.
func FromRaw(raw map[string]json.RawMessage) (*Set, error) {
	encoders := make([]*Encoder, 0, len(raw))
	for _, f := range maps.SortedKeys(raw) {
		var cl classList
		if err := json.Unmarshal(raw[f], &cl); err != nil {
			return nil, fmt.Errorf("category: %s: %w", f, err)
		}
		if cl.Classes == nil {
			return nil, fmt.Errorf(`category: %s: "classes" is missing`, f)
		}
		e, err := New(f, cl.Classes)
		if err != nil {
			return nil, err
		}
		encoders = append(encoders, e)
	}
	return NewSet(encoders...)
}
