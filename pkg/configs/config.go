// Package configs loads the configuration file of sealparams.
//
// A config file is YAML. "${NAME}" in it is replaced with the environment variable NAME
// before parsing, so secrets can be given from the environment.
package configs

import (
	"time"
)

type ArtifactsKind string

const (
	ArtifactsFS ArtifactsKind = "fs"
	ArtifactsS3 ArtifactsKind = "s3"
)

// Config is the sealed configuration.
//
// To get Config, use Unmarshal or LoadConfig.
type Config struct {
	port      int32
	logLevel  string
	cors      *CORSConfig
	database  *DatabaseConfig
	artifacts *ArtifactsConfig
	training  *TrainingConfig
}

// port to listen. default = 8080
func (c *Config) Port() int32 {
	return c.port
}

// one of "debug", "info", "warn", "error" or "off". default = "info"
func (c *Config) LogLevel() string {
	return c.logLevel
}

func (c *Config) CORS() *CORSConfig {
	return c.cors
}

func (c *Config) Database() *DatabaseConfig {
	return c.database
}

func (c *Config) Artifacts() *ArtifactsConfig {
	return c.artifacts
}

func (c *Config) Training() *TrainingConfig {
	return c.training
}

type CORSConfig struct {
	allowOrigins []string
}

func (c *CORSConfig) AllowOrigins() []string {
	return append([]string{}, c.allowOrigins...)
}

type DatabaseConfig struct {
	uri            string
	successOutcome string
	machineColumn  string
}

// Connection string for database.
func (d *DatabaseConfig) URI() string {
	return d.uri
}

// outcome of successful attempts. empty for the default.
func (d *DatabaseConfig) SuccessOutcome() string {
	return d.successOutcome
}

// column of orders holding the sealing machine. empty for the default.
func (d *DatabaseConfig) MachineColumn() string {
	return d.machineColumn
}

type ArtifactsConfig struct {
	kind ArtifactsKind
	fs   *FSArtifactsConfig
	s3   *S3ArtifactsConfig
}

func (a *ArtifactsConfig) Kind() ArtifactsKind {
	return a.kind
}

// nil unless Kind is "fs"
func (a *ArtifactsConfig) FS() *FSArtifactsConfig {
	return a.fs
}

// nil unless Kind is "s3"
func (a *ArtifactsConfig) S3() *S3ArtifactsConfig {
	return a.s3
}

type FSArtifactsConfig struct {
	dir   string
	watch bool
}

func (f *FSArtifactsConfig) Dir() string {
	return f.dir
}

// Watch tells to reload models when another process writes one.
func (f *FSArtifactsConfig) Watch() bool {
	return f.watch
}

type S3ArtifactsConfig struct {
	bucket          string
	prefix          string
	region          string
	endpoint        string
	accessKeyID     string
	secretAccessKey string
}

func (s *S3ArtifactsConfig) Bucket() string {
	return s.bucket
}

func (s *S3ArtifactsConfig) Prefix() string {
	return s.prefix
}

func (s *S3ArtifactsConfig) Region() string {
	return s.region
}

// Endpoint for S3 compatible storages, like MinIO. Empty for AWS.
func (s *S3ArtifactsConfig) Endpoint() string {
	return s.endpoint
}

// AccessKeyID and SecretAccessKey are static credentials.
// When they are empty, the default credential chain of AWS SDK is used.
func (s *S3ArtifactsConfig) AccessKeyID() string {
	return s.accessKeyID
}

func (s *S3ArtifactsConfig) SecretAccessKey() string {
	return s.secretAccessKey
}

type TrainingConfig struct {
	secret            string
	minExamples       int
	evaluateThreshold int
	testFraction      float64
	seed              int64
	timeout           time.Duration
}

// Secret to be presented by clients of the training endpoint.
//
// When it is empty, the training endpoint refuses all requests.
func (t *TrainingConfig) Secret() string {
	return t.secret
}

func (t *TrainingConfig) MinExamples() int {
	return t.minExamples
}

func (t *TrainingConfig) EvaluateThreshold() int {
	return t.evaluateThreshold
}

func (t *TrainingConfig) TestFraction() float64 {
	return t.testFraction
}

func (t *TrainingConfig) Seed() int64 {
	return t.seed
}

// Timeout of one training. default = 10m
func (t *TrainingConfig) Timeout() time.Duration {
	return t.timeout
}
