package sealparams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/opst/sealparams/pkg/artifact"
	"github.com/opst/sealparams/pkg/artifact/bucket"
	afs "github.com/opst/sealparams/pkg/artifact/fs"
	"github.com/opst/sealparams/pkg/configs"
	kdb "github.com/opst/sealparams/pkg/db"
	kpg "github.com/opst/sealparams/pkg/db/postgres"
	xe "github.com/opst/sealparams/pkg/errors"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/serving"
	"github.com/opst/sealparams/pkg/training"
	"github.com/opst/sealparams/pkg/utils/filewatch"
	"github.com/opst/sealparams/pkg/utils/retry"
)

// Components are the parts of sealparams built from a Config.
type Components struct {
	config     *configs.Config
	database   *kpg.Database
	repository artifact.Repository
	loader     *model.Loader
	pipeline   *training.Pipeline
	service    *serving.Service
	logger     model.Logger

	// path to LATEST pointer, only for the fs repository
	pointer string
}

// Attach connects to the database and the artifact repository in conf.
//
// The database is connected lazily.
func Attach(ctx context.Context, conf *configs.Config, logger model.Logger) (*Components, error) {
	repo, pointer, err := Repository(ctx, conf.Artifacts())
	if err != nil {
		return nil, err
	}

	dbconf := conf.Database()
	database, err := kpg.New(
		ctx, dbconf.URI(),
		kpg.WithSuccessOutcome(dbconf.SuccessOutcome()),
		kpg.WithMachineColumn(dbconf.MachineColumn()),
	)
	if err != nil {
		return nil, xe.WrapWithNote("connecting database", err)
	}

	tr := conf.Training()
	pipeline := training.New(
		training.WithMinExamples(tr.MinExamples()),
		training.WithEvaluateThreshold(tr.EvaluateThreshold()),
		training.WithTestFraction(tr.TestFraction()),
		training.WithSeed(tr.Seed()),
		training.WithLogger(logger),
	)

	loader := model.NewLoader(model.NewStore(), artifact.Source{Repository: repo}, model.WithLogger(logger))

	return &Components{
		config:     conf,
		database:   database,
		repository: repo,
		loader:     loader,
		pipeline:   pipeline,
		service:    serving.New(loader, database.History(), pipeline, repo, serving.WithLogger(logger)),
		logger:     logger,
		pointer:    pointer,
	}, nil
}

// Repository builds the artifact repository in conf.
//
// For the fs repository, it also returns the path of its LATEST pointer. Otherwise it is empty.
func Repository(ctx context.Context, conf *configs.ArtifactsConfig) (artifact.Repository, string, error) {
	switch conf.Kind() {
	case configs.ArtifactsFS:
		repo, err := afs.New(conf.FS().Dir())
		if err != nil {
			return nil, "", xe.WrapWithNote("preparing artifact directory", err)
		}
		return repo, repo.PointerPath(), nil
	case configs.ArtifactsS3:
		s3conf := conf.S3()
		client, err := bucket.NewClient(ctx, bucket.Config{
			Bucket:          s3conf.Bucket(),
			Prefix:          s3conf.Prefix(),
			Region:          s3conf.Region(),
			Endpoint:        s3conf.Endpoint(),
			AccessKeyID:     s3conf.AccessKeyID(),
			SecretAccessKey: s3conf.SecretAccessKey(),
		})
		if err != nil {
			return nil, "", xe.WrapWithNote("connecting artifact bucket", err)
		}
		return bucket.New(client, s3conf.Bucket(), s3conf.Prefix()), "", nil
	}
	return nil, "", fmt.Errorf("unknown artifacts kind: %s", conf.Kind())
}

func (c *Components) Config() *configs.Config {
	return c.config
}

func (c *Components) Service() *serving.Service {
	return c.service
}

func (c *Components) Loader() *model.Loader {
	return c.loader
}

func (c *Components) Pipeline() *training.Pipeline {
	return c.pipeline
}

func (c *Components) Repository() artifact.Repository {
	return c.repository
}

func (c *Components) History() kdb.HistoryInterface {
	return c.database.History()
}

// Warm loads the persisted model, if any, in background.
//
// While the artifact storage is unreachable, it retries with backoff until ctx is done.
func (c *Components) Warm(ctx context.Context) <-chan retry.Result[*model.Artifact] {
	return warm(ctx, c.loader, c.logger, retry.ExponentialBackoff(warmupInterval, 2))
}

const warmupInterval = 500 * time.Millisecond

func warm(ctx context.Context, loader *model.Loader, logger model.Logger, backoff retry.Backoff) <-chan retry.Result[*model.Artifact] {
	return retry.Go(ctx, backoff, func() (*model.Artifact, error) {
		a, err := loader.Ensure(ctx)
		switch {
		case err == nil:
			logger.Infof("serving model %s", a.Version)
			return a, nil
		case errors.Is(err, artifact.ErrUpstream):
			logger.Warnf("artifact storage is not reachable. retrying: %s", err)
			return nil, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		default:
			logger.Warnf("no model is served yet: %s", err)
			return nil, err
		}
	})
}

// Watch reloads the model each time another process installs a new one.
//
// It works only with the fs repository and "watch" on; otherwise it returns false.
func (c *Components) Watch(ctx context.Context) (bool, error) {
	fsconf := c.config.Artifacts().FS()
	if c.pointer == "" || fsconf == nil || !fsconf.Watch() {
		return false, nil
	}

	err := filewatch.Watch(
		ctx, c.pointer,
		func(ev fsnotify.Event) {
			if _, err := c.loader.Reload(ctx); err != nil {
				c.logger.Warnf("%s is updated (%s), but the model can not be reloaded: %s", ev.Name, ev.Op, err)
			}
		},
		func(err error) {
			c.logger.Warnf("watching %s: %s", c.pointer, err)
		},
	)
	if err != nil {
		return false, xe.WrapWithNote("watching "+c.pointer, err)
	}
	return true, nil
}

func (c *Components) Close() error {
	return c.database.Close()
}
