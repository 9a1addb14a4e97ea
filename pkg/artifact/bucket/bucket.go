// Package bucket is an artifact.Repository on an S3 compatible bucket (AWS S3, MinIO).
//
// Object keys are laid out as the fs repository does, under a prefix:
//
//	<prefix>/LATEST
//	<prefix>/<version>/encoders.json
//	<prefix>/<version>/model.bin
package bucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/opst/sealparams/pkg/artifact"
)

// Client is the part of *s3.Client used by Repository.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint is for S3 compatible storages like MinIO. Empty for AWS.
	Endpoint string

	// static credentials. When empty, the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient connects to the bucket and checks it is accessible.
func NewClient(ctx context.Context, conf Config) (*s3.Client, error) {
	if conf.Bucket == "" {
		return nil, errors.New("s3: bucket is empty")
	}
	if conf.Region == "" {
		return nil, errors.New("s3: region is empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(conf.Region)}
	if conf.AccessKeyID != "" || conf.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(conf.Bucket)}); err != nil {
		return nil, fmt.Errorf("%w: bucket %s: %w", artifact.ErrUpstream, conf.Bucket, err)
	}
	return client, nil
}

type Repository struct {
	client Client
	bucket string
	prefix string
}

var _ artifact.Repository = &Repository{}

func New(client Client, bucket, prefix string) *Repository {
	return &Repository{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (r *Repository) key(elem ...string) string {
	return path.Join(append([]string{r.prefix}, elem...)...)
}

func (r *Repository) Fetch(ctx context.Context) (artifact.Bundle, error) {
	v, err := r.get(ctx, r.key(artifact.PointerObject))
	if err != nil {
		return artifact.Bundle{}, err
	}
	version := strings.TrimSpace(string(v))
	if version == "" {
		return artifact.Bundle{}, fmt.Errorf("%w: %s is empty", artifact.ErrCorrupted, r.key(artifact.PointerObject))
	}

	b := artifact.Bundle{}
	if b.Encoders, err = r.get(ctx, r.key(version, artifact.EncodersObject)); err != nil {
		return artifact.Bundle{}, incomplete(err)
	}
	if b.Model, err = r.get(ctx, r.key(version, artifact.ModelObject)); err != nil {
		return artifact.Bundle{}, incomplete(err)
	}
	return b, nil
}

// incomplete turns "not found" of a versioned object into ErrCorrupted.
func incomplete(err error) error {
	if errors.Is(err, artifact.ErrNotFound) {
		return fmt.Errorf("%w: %w", artifact.ErrCorrupted, err)
	}
	return err
}

func (r *Repository) get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: s3://%s/%s", artifact.ErrNotFound, r.bucket, key)
		}
		return nil, fmt.Errorf("%w: s3://%s/%s: %w", artifact.ErrUpstream, r.bucket, key, err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3://%s/%s: %w", artifact.ErrUpstream, r.bucket, key, err)
	}
	return content, nil
}

func (r *Repository) Put(ctx context.Context, version string, b artifact.Bundle) error {
	if version == "" || strings.Contains(version, "/") {
		return fmt.Errorf("artifact: bad version name: %q", version)
	}
	for _, obj := range []struct {
		key         string
		content     []byte
		contentType string
	}{
		{key: r.key(version, artifact.EncodersObject), content: b.Encoders, contentType: "application/json"},
		{key: r.key(version, artifact.ModelObject), content: b.Model, contentType: "application/zstd"},
		{key: r.key(artifact.PointerObject), content: []byte(version + "\n"), contentType: "text/plain"},
	} {
		if _, err := r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(r.bucket),
			Key:         aws.String(obj.key),
			Body:        bytes.NewReader(obj.content),
			ContentType: aws.String(obj.contentType),
		}); err != nil {
			return fmt.Errorf("%w: s3://%s/%s: %w", artifact.ErrUpstream, r.bucket, obj.key, err)
		}
	}
	return nil
}
