package model

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/labstack/gommon/log"
	xe "github.com/opst/sealparams/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable is returned while no artifact is installed.
var ErrUnavailable = errors.New("model is not available")

// Logger is the part of gommon/echo loggers the model lifecycle writes to.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Store holds the installed Artifact.
//
// Get returns a snapshot; callers should use the returned pointer for one
// whole prediction. Swap never waits for readers.
type Store struct {
	current atomic.Pointer[Artifact]
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Get() (*Artifact, error) {
	a := s.current.Load()
	if a == nil {
		return nil, ErrUnavailable
	}
	return a, nil
}

// Swap installs a and returns the artifact which was installed before, if any.
//
// An invalid artifact is rejected and the installed one stays.
func (s *Store) Swap(a *Artifact) (*Artifact, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return s.current.Swap(a), nil
}

// Install installs a only when nothing is installed.
//
// It returns the installed artifact after the call, and whether it is a.
// An artifact installed meanwhile by Swap is never overwritten.
func (s *Store) Install(a *Artifact) (*Artifact, bool, error) {
	if err := a.Validate(); err != nil {
		return nil, false, err
	}
	if s.current.CompareAndSwap(nil, a) {
		return a, true, nil
	}
	return s.current.Load(), false, nil
}

// Source loads the newest persisted artifact.
//
// When there is none, it should return an error wrapping ErrUnavailable.
type Source interface {
	Load(ctx context.Context) (*Artifact, error)
}

// Loader fills a Store from a Source on demand.
type Loader struct {
	store  *Store
	source Source
	logger Logger
	group  singleflight.Group
}

type LoaderOption func(*Loader)

func WithLogger(l Logger) LoaderOption {
	return func(lo *Loader) {
		lo.logger = l
	}
}

func NewLoader(store *Store, source Source, options ...LoaderOption) *Loader {
	l := &Loader{store: store, source: source, logger: log.New("model")}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *Loader) Store() *Store {
	return l.store
}

// Ensure returns the installed artifact, loading it when there is none.
//
// Concurrent callers share one load.
func (l *Loader) Ensure(ctx context.Context) (*Artifact, error) {
	if a, err := l.store.Get(); err == nil {
		return a, nil
	}

	ch := l.group.DoChan("ensure", func() (any, error) {
		if a, err := l.store.Get(); err == nil {
			return a, nil
		}
		return l.install(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Artifact), nil
	}
}

// Reload loads the artifact from the source again and installs it.
//
// On failure the installed artifact stays.
func (l *Loader) Reload(ctx context.Context) (*Artifact, error) {
	v, err, _ := l.group.Do("reload", func() (any, error) {
		return l.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// install loads the artifact and installs it unless another one is installed
// while loading.
func (l *Loader) install(ctx context.Context) (*Artifact, error) {
	a, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	installed, ok, err := l.store.Install(a)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if !ok {
		l.logger.Infof("model %s is loaded, but %s has been installed meanwhile. keep it.", a.Version, installed.Version)
		return installed, nil
	}
	l.logger.Infof("model %s (trained at %s) is installed", a.Version, a.TrainedAt)
	return a, nil
}

func (l *Loader) fetch(ctx context.Context) (*Artifact, error) {
	a, err := l.source.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			l.logger.Debugf("no persisted model: %s", err)
			return nil, err
		}
		return nil, xe.WrapWithNote("loading model", err)
	}
	return a, nil
}

func (l *Loader) load(ctx context.Context) (*Artifact, error) {
	a, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	prev, err := l.store.Swap(a)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if prev != nil {
		l.logger.Infof("model %s (trained at %s) is replaced by %s (trained at %s)", prev.Version, prev.TrainedAt, a.Version, a.TrainedAt)
	} else {
		l.logger.Infof("model %s (trained at %s) is installed", a.Version, a.TrainedAt)
	}
	return a, nil
}
