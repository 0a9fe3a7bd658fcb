// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package storage

import (
	"context"

	"github.com/go-core-stack/storage-proxy/errors"
)

// supported backends
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendS3     = "s3"
)

// DefaultBucketName is the bucket used when none is configured.
const DefaultBucketName = "flutterfire-e2e-tests.appspot.com"

// Config selects and configures the bucket backend.
type Config struct {
	Backend string            `yaml:"backend"`
	Bucket  string            `yaml:"bucket"`
	Mongo   MongoBucketConfig `yaml:"mongo"`
	S3      S3Config          `yaml:"s3"`
}

// Validate applies defaults and checks the backend selection.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Bucket == "" {
		c.Bucket = DefaultBucketName
	}
	switch c.Backend {
	case BackendMemory, BackendMongo, BackendS3:
		return nil
	}
	return errors.Wrapf(errors.InvalidArgument, "unsupported storage backend %q", c.Backend)
}

// Open returns the bucket for the configured backend.
func Open(ctx context.Context, conf *Config) (Bucket, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	logger.Infof("opening %s bucket %q", conf.Backend, conf.Bucket)
	switch conf.Backend {
	case BackendMongo:
		return NewMongoBucket(ctx, conf.Bucket, &conf.Mongo)
	case BackendS3:
		return NewS3Bucket(ctx, conf.Bucket, &conf.S3)
	}
	return NewMemoryBucket(conf.Bucket), nil
}
