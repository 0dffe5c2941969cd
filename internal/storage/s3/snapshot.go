// Package s3 provides an S3-backed cache snapshot store for clients that
// want cache durability beyond the local machine.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sheetsync/sheetsync/internal/cache"
	"github.com/sheetsync/sheetsync/pkg/errors"
)

// Config represents S3 snapshot store configuration
type Config struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
	Region string `yaml:"region"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores
	Endpoint string `yaml:"endpoint"`

	// Static credentials; empty falls back to the default AWS chain
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// s3API is the subset of the S3 client the snapshot store uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SnapshotStore persists cache snapshots as a single S3 object. It
// implements cache.SnapshotStore.
type SnapshotStore struct {
	client s3API
	bucket string
	key    string
}

// NewSnapshotStore creates an S3 snapshot store from the given configuration.
func NewSnapshotStore(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "s3 snapshot store requires bucket and key")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to load AWS configuration").WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &SnapshotStore{
		client: client,
		bucket: cfg.Bucket,
		key:    cfg.Key,
	}, nil
}

// Save uploads the snapshot as a JSON object.
func (s *SnapshotStore) Save(ctx context.Context, snap cache.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.NewError(errors.ErrCodeSnapshotSave, "failed to encode snapshot").WithCause(err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.NewError(errors.ErrCodeSnapshotSave, "failed to upload snapshot").WithCause(err)
	}

	return nil
}

// Load downloads and decodes the snapshot. A missing object yields
// (nil, nil).
func (s *SnapshotStore) Load(ctx context.Context) (*cache.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if stderrors.As(err, &noKey) {
			return nil, nil
		}
		return nil, errors.NewError(errors.ErrCodeSnapshotLoad, "failed to download snapshot").WithCause(err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeSnapshotLoad, "failed to read snapshot body").WithCause(err)
	}

	var snap cache.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewError(errors.ErrCodeSnapshotLoad, "corrupt snapshot").WithCause(err)
	}

	return &snap, nil
}
