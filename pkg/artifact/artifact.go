// Package artifact persists model.Artifact as a pair of objects:
//
//   - encoders: a JSON document of category classes with the version and
//     training time of the pair,
//
//   - model: a zstd compressed gob envelope of the regressor, stamped with the
//     same version.
//
// The pair is read and written only as one Bundle. Repositories make a Bundle
// visible only after both objects are written.
package artifact

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opst/sealparams/pkg/category"
	xe "github.com/opst/sealparams/pkg/errors"
	"github.com/opst/sealparams/pkg/forest"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/params"
)

var (
	// ErrNotFound is returned when no bundle is persisted.
	ErrNotFound = errors.New("artifact: not found")

	// ErrUpstream is returned when the storage can not be used.
	ErrUpstream = errors.New("artifact: storage is not available")

	// ErrCorrupted is returned when a bundle can not be decoded.
	ErrCorrupted = errors.New("artifact: corrupted")
)

const (
	KindRandomForest = "random-forest"

	// object names in a version
	EncodersObject = "encoders.json"
	ModelObject    = "model.bin"

	// PointerObject names the object which holds the latest version.
	PointerObject = "LATEST"
)

// Bundle is the persisted form of one model.Artifact.
type Bundle struct {
	Encoders []byte
	Model    []byte
}

// Repository stores bundles by version.
type Repository interface {
	// Fetch returns the latest complete bundle.
	//
	// Errors are ErrNotFound when nothing is put yet, and ErrUpstream for
	// other failures.
	Fetch(ctx context.Context) (Bundle, error)

	// Put writes the bundle under version and then makes it the latest.
	Put(ctx context.Context, version string, b Bundle) error
}

type envelope struct {
	Version string
	Kind    string
	Payload []byte
}

var (
	compressor, _   = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decompressor, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

const (
	keyVersion   = "version"
	keyTrainedAt = "trained_at"
)

// older encoder documents name the material encoder "material" and the machine
// encoder after its database column. Only the names differ: version and
// trained_at are still required, and the model blob is always ours.
var legacyKeys = map[string]string{
	"material":   params.FieldMaterialType,
	"sackovacka": params.FieldMachineID,
}

// Kind names the type of r as it is persisted. It is "" for regressors which
// can not be persisted.
func Kind(r model.Regressor) string {
	switch r.(type) {
	case *forest.Forest:
		return KindRandomForest
	}
	return ""
}

func Encode(a *model.Artifact) (Bundle, error) {
	if err := a.Validate(); err != nil {
		return Bundle{}, err
	}

	var kind string
	var payload []byte
	switch r := a.Regressor.(type) {
	case *forest.Forest:
		b, err := r.MarshalBinary()
		if err != nil {
			return Bundle{}, xe.Wrap(err)
		}
		kind, payload = KindRandomForest, b
	default:
		return Bundle{}, fmt.Errorf("artifact: regressor %T can not be persisted", a.Regressor)
	}

	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(envelope{Version: a.Version, Kind: kind, Payload: payload}); err != nil {
		return Bundle{}, xe.Wrap(err)
	}

	// encoders are written as top level keys, next to version and trained_at.
	enc, err := json.Marshal(a.Encoders)
	if err != nil {
		return Bundle{}, xe.Wrap(err)
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(enc, &doc); err != nil {
		return Bundle{}, xe.Wrap(err)
	}
	if doc[keyVersion], err = json.Marshal(a.Version); err != nil {
		return Bundle{}, xe.Wrap(err)
	}
	if doc[keyTrainedAt], err = json.Marshal(a.TrainedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return Bundle{}, xe.Wrap(err)
	}
	encoders, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Bundle{}, xe.Wrap(err)
	}

	return Bundle{
		Encoders: encoders,
		Model:    compressor.EncodeAll(buf.Bytes(), nil),
	}, nil
}

// Decode restores an artifact from b.
//
// A pair whose two halves have different versions is ErrCorrupted.
func Decode(b Bundle) (*model.Artifact, error) {
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(b.Encoders, &doc); err != nil {
		return nil, fmt.Errorf("%w: encoders: %w", ErrCorrupted, err)
	}

	var version, trainedAt string
	if err := popString(doc, keyVersion, &version); err != nil {
		return nil, err
	}
	if err := popString(doc, keyTrainedAt, &trainedAt); err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, trainedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: trained_at: %w", ErrCorrupted, err)
	}
	for legacyKey, field := range legacyKeys {
		legacy, ok := doc[legacyKey]
		if !ok {
			continue
		}
		if _, dup := doc[field]; !dup {
			doc[field] = legacy
			delete(doc, legacyKey)
		}
	}
	encoders, err := category.FromRaw(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encoders: %w", ErrCorrupted, err)
	}

	raw, err := decompressor.DecodeAll(b.Model, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: model: %w", ErrCorrupted, err)
	}
	env := envelope{}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: model: %w", ErrCorrupted, err)
	}
	if env.Version != version {
		return nil, fmt.Errorf(
			"%w: encoders are version %s but model is version %s", ErrCorrupted, version, env.Version,
		)
	}

	var regressor model.Regressor
	switch env.Kind {
	case KindRandomForest:
		f := new(forest.Forest)
		if err := f.UnmarshalBinary(env.Payload); err != nil {
			return nil, fmt.Errorf("%w: model: %w", ErrCorrupted, err)
		}
		regressor = f
	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", ErrCorrupted, env.Kind)
	}

	a := &model.Artifact{Regressor: regressor, Encoders: encoders, Version: version, TrainedAt: at}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return a, nil
}

func popString(doc map[string]json.RawMessage, key string, dest *string) error {
	raw, ok := doc[key]
	if !ok {
		return fmt.Errorf("%w: %q is missing", ErrCorrupted, key)
	}
	delete(doc, key)
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupted, key, err)
	}
	if *dest == "" {
		return fmt.Errorf("%w: %q is empty", ErrCorrupted, key)
	}
	return nil
}

// Source loads artifacts from a Repository. It is a model.Source.
type Source struct {
	Repository Repository
}

var _ model.Source = Source{}

func (s Source) Load(ctx context.Context) (*model.Artifact, error) {
	b, err := s.Repository.Fetch(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", model.ErrUnavailable, err)
	} else if err != nil {
		return nil, err
	}
	return Decode(b)
}
