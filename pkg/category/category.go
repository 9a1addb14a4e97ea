// Package category maps categorical string values to dense integer codes.
//
// An Encoder owns an ordered, deduplicated class list; the code of a value is
// its index in that list. The order is part of the persisted model: classes
// are sorted lexicographically (byte-wise) when fitted, so that the same
// observations always produce the same codes.
package category

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnknownCategory is wrapped when a value was never observed while fitting.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrIndexOutOfRange is wrapped when a code is not an index of the class list.
	ErrIndexOutOfRange = errors.New("category code out of range")
)

type UnknownCategoryError struct {
	Field   string
	Value   string
	Classes []string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf(
		`%s: "%s" for %s (available: %s)`,
		ErrUnknownCategory, e.Value, e.Field, strings.Join(e.Classes, ", "),
	)
}

func (e *UnknownCategoryError) Unwrap() error {
	return ErrUnknownCategory
}

type CodeOutOfRangeError struct {
	Field string
	Code  int
	Size  int
}

func (e *CodeOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: %d for %s (size = %d)", ErrIndexOutOfRange, e.Code, e.Field, e.Size)
}

func (e *CodeOutOfRangeError) Unwrap() error {
	return ErrIndexOutOfRange
}

// Encoder is immutable once created.
type Encoder struct {
	field   string
	classes []string
	index   map[string]int
}

// Fit builds an Encoder from observed values.
//
// The class list is the sorted set of distinct values.
func Fit(field string, observed []string) *Encoder {
	classes := slices.Clone(observed)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	return build(field, classes)
}

// New restores an Encoder from a persisted class list, keeping its order.
func New(field string, classes []string) (*Encoder, error) {
	if field == "" {
		return nil, errors.New("category: field name is empty")
	}
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf(`category: %s has duplicated class "%s"`, field, c)
		}
		seen[c] = struct{}{}
	}
	return build(field, slices.Clone(classes)), nil
}

func build(field string, classes []string) *Encoder {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &Encoder{field: field, classes: classes, index: index}
}

func (e *Encoder) Field() string {
	return e.field
}

// Classes returns a copy of the class list.
func (e *Encoder) Classes() []string {
	return slices.Clone(e.classes)
}

func (e *Encoder) Len() int {
	return len(e.classes)
}

func (e *Encoder) Encode(value string) (int, error) {
	code, ok := e.index[value]
	if !ok {
		return -1, &UnknownCategoryError{Field: e.field, Value: value, Classes: e.Classes()}
	}
	return code, nil
}

func (e *Encoder) Decode(code int) (string, error) {
	if code < 0 || len(e.classes) <= code {
		return "", &CodeOutOfRangeError{Field: e.field, Code: code, Size: len(e.classes)}
	}
	return e.classes[code], nil
}

// Equal reports whether two encoders assign the same codes to the same values.
func (e *Encoder) Equal(other *Encoder) bool {
	if e == nil || other == nil {
		return e == nil && other == nil
	}
	return e.field == other.field && slices.Equal(e.classes, other.classes)
}
