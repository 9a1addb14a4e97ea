// Package fs is an artifact.Repository on a local directory.
//
//	<dir>/
//	  LATEST                   <- version name, replaced by rename
//	  <version>/encoders.json
//	  <version>/model.bin
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opst/sealparams/pkg/artifact"
	xe "github.com/opst/sealparams/pkg/errors"
)

type Repository struct {
	dir string
}

var _ artifact.Repository = &Repository{}

// New creates a Repository on dir. dir is created when missing.
func New(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xe.Wrap(err)
	}
	return &Repository{dir: dir}, nil
}

// PointerPath is the file which changes on every Put.
func (r *Repository) PointerPath() string {
	return filepath.Join(r.dir, artifact.PointerObject)
}

func (r *Repository) Fetch(ctx context.Context) (artifact.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return artifact.Bundle{}, err
	}

	v, err := os.ReadFile(r.PointerPath())
	if errors.Is(err, os.ErrNotExist) {
		return artifact.Bundle{}, fmt.Errorf("%w: %s", artifact.ErrNotFound, r.PointerPath())
	} else if err != nil {
		return artifact.Bundle{}, fmt.Errorf("%w: %w", artifact.ErrUpstream, err)
	}
	version := strings.TrimSpace(string(v))
	if err := checkVersion(version); err != nil {
		return artifact.Bundle{}, fmt.Errorf("%w: %s: %w", artifact.ErrCorrupted, r.PointerPath(), err)
	}

	b := artifact.Bundle{}
	if b.Encoders, err = r.read(version, artifact.EncodersObject); err != nil {
		return artifact.Bundle{}, err
	}
	if b.Model, err = r.read(version, artifact.ModelObject); err != nil {
		return artifact.Bundle{}, err
	}
	return b, nil
}

func (r *Repository) read(version, name string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(r.dir, version, name))
	if errors.Is(err, os.ErrNotExist) {
		// LATEST points a version which is not complete.
		return nil, fmt.Errorf("%w: %s/%s: %w", artifact.ErrCorrupted, version, name, err)
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", artifact.ErrUpstream, err)
	}
	return content, nil
}

func (r *Repository) Put(ctx context.Context, version string, b artifact.Bundle) error {
	if err := checkVersion(version); err != nil {
		return err
	}
	vdir := filepath.Join(r.dir, version)
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", artifact.ErrUpstream, err)
	}

	for _, obj := range []struct {
		name    string
		content []byte
	}{
		{name: artifact.EncodersObject, content: b.Encoders},
		{name: artifact.ModelObject, content: b.Model},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(vdir, obj.name), obj.content); err != nil {
			return fmt.Errorf("%w: %w", artifact.ErrUpstream, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAtomic(r.PointerPath(), []byte(version+"\n")); err != nil {
		return fmt.Errorf("%w: %w", artifact.ErrUpstream, err)
	}
	return nil
}

// writeAtomic writes content to a temporary file next to dest and renames it.
func writeAtomic(dest string, content []byte) error {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

func checkVersion(version string) error {
	if version == "" || version == "." || version == ".." || strings.ContainsAny(version, `/\`) {
		return fmt.Errorf("artifact: bad version name: %q", version)
	}
	return nil
}
