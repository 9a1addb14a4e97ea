package configs

import (
	"fmt"
	"slices"
	"time"

	"github.com/opst/sealparams/pkg/training"
	"github.com/opst/sealparams/pkg/utils"
)

const (
	DefaultPort            = 8080
	DefaultLogLevel        = "info"
	DefaultTrainingTimeout = 10 * time.Minute
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of sealparams.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `Config`.
type ConfigMarshall struct {
	Port      int32                    `yaml:"port,omitempty"`
	LogLevel  string                   `yaml:"loglevel,omitempty"`
	CORS      *CORSConfigMarshall      `yaml:"cors,omitempty"`
	Database  *DatabaseConfigMarshall  `yaml:"database"`
	Artifacts *ArtifactsConfigMarshall `yaml:"artifacts"`
	Training  *TrainingConfigMarshall  `yaml:"training,omitempty"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	logLevel := c.LogLevel
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}
	oneOf(logLevel, path+".loglevel", "debug", "info", "warn", "error", "off")

	cors := c.CORS
	if cors == nil {
		cors = &CORSConfigMarshall{AllowOrigins: []string{"*"}}
	}
	tr := c.Training
	if tr == nil {
		tr = &TrainingConfigMarshall{}
	}

	return &Config{
		port:      port,
		logLevel:  logLevel,
		cors:      cors.trySeal(path + ".cors"),
		database:  nonnil(c.Database, path+".database").trySeal(path + ".database"),
		artifacts: nonnil(c.Artifacts, path+".artifacts").trySeal(path + ".artifacts"),
		training:  tr.trySeal(path + ".training"),
	}
}

type CORSConfigMarshall struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

func (c *CORSConfigMarshall) trySeal(string) *CORSConfig {
	return &CORSConfig{allowOrigins: append([]string{}, c.AllowOrigins...)}
}

type DatabaseConfigMarshall struct {
	URI            string `yaml:"uri"`
	SuccessOutcome string `yaml:"successOutcome,omitempty"`
	MachineColumn  string `yaml:"machineColumn,omitempty"`
}

func (d *DatabaseConfigMarshall) trySeal(path string) *DatabaseConfig {
	return &DatabaseConfig{
		uri:            required(d.URI, path+".uri"),
		successOutcome: d.SuccessOutcome,
		machineColumn:  d.MachineColumn,
	}
}

type ArtifactsConfigMarshall struct {
	Kind ArtifactsKind              `yaml:"kind"`
	FS   *FSArtifactsConfigMarshall `yaml:"fs,omitempty"`
	S3   *S3ArtifactsConfigMarshall `yaml:"s3,omitempty"`
}

func (a *ArtifactsConfigMarshall) trySeal(path string) *ArtifactsConfig {
	kind := oneOf(required(a.Kind, path+".kind"), path+".kind", ArtifactsFS, ArtifactsS3)
	conf := &ArtifactsConfig{kind: kind}
	switch kind {
	case ArtifactsFS:
		conf.fs = nonnil(a.FS, path+".fs").trySeal(path + ".fs")
	case ArtifactsS3:
		conf.s3 = nonnil(a.S3, path+".s3").trySeal(path + ".s3")
	}
	return conf
}

type FSArtifactsConfigMarshall struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch,omitempty"`
}

func (f *FSArtifactsConfigMarshall) trySeal(path string) *FSArtifactsConfig {
	return &FSArtifactsConfig{
		dir:   required(f.Dir, path+".dir"),
		watch: f.Watch,
	}
}

type S3ArtifactsConfigMarshall struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"accessKeyId,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty"`
}

func (s *S3ArtifactsConfigMarshall) trySeal(path string) *S3ArtifactsConfig {
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		panic(path + ".accessKeyId and " + path + ".secretAccessKey should be given together")
	}
	return &S3ArtifactsConfig{
		bucket:          required(s.Bucket, path+".bucket"),
		prefix:          s.Prefix,
		region:          s.Region,
		endpoint:        s.Endpoint,
		accessKeyID:     s.AccessKeyID,
		secretAccessKey: s.SecretAccessKey,
	}
}

type TrainingConfigMarshall struct {
	Secret            string  `yaml:"secret,omitempty"`
	MinExamples       int     `yaml:"minExamples,omitempty"`
	EvaluateThreshold int     `yaml:"evaluateThreshold,omitempty"`
	TestFraction      float64 `yaml:"testFraction,omitempty"`
	Seed              *int64  `yaml:"seed,omitempty"`
	Timeout           string  `yaml:"timeout,omitempty"`
}

func (t *TrainingConfigMarshall) trySeal(path string) *TrainingConfig {
	conf := &TrainingConfig{
		secret:            t.Secret,
		minExamples:       training.DefaultMinExamples,
		evaluateThreshold: training.DefaultEvaluateThreshold,
		testFraction:      training.DefaultTestFraction,
		seed:              utils.Default(t.Seed, training.DefaultSeed),
		timeout:           DefaultTrainingTimeout,
	}

	if t.MinExamples < 0 {
		panic(path + ".minExamples should be positive")
	} else if t.MinExamples != 0 {
		conf.minExamples = t.MinExamples
	}
	if t.EvaluateThreshold < 0 {
		panic(path + ".evaluateThreshold should be positive")
	} else if t.EvaluateThreshold == 1 {
		panic(path + ".evaluateThreshold should be 2 or more: held out examples need at least one left to fit")
	} else if t.EvaluateThreshold != 0 {
		conf.evaluateThreshold = t.EvaluateThreshold
	}
	if t.TestFraction < 0 || 1 <= t.TestFraction {
		panic(path + ".testFraction should be in [0, 1)")
	} else if t.TestFraction != 0 {
		conf.testFraction = t.TestFraction
	}
	if t.Timeout != "" {
		d, err := time.ParseDuration(t.Timeout)
		if err != nil {
			panic(fmt.Errorf("%s.timeout can not be parsed: %w", path, err))
		}
		if d <= 0 {
			panic(path + ".timeout should be positive")
		}
		conf.timeout = d
	}
	return conf
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func oneOf[T comparable](v T, path string, candidates ...T) T {
	if !slices.Contains(candidates, v) {
		panic(fmt.Sprintf("%s should be one of %v, but %v", path, candidates, v))
	}
	return v
}
