// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package storage

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/go-core-stack/storage-proxy/db"
	"github.com/go-core-stack/storage-proxy/errors"
)

const defaultS3Region = "us-east-1"

// S3Config describes how to reach an S3 compatible object store.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"accessKey"`
	SecretKey    string `yaml:"secretKey"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// subset of the s3 client used by the bucket
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Bucket maps the bucket operations onto an S3 bucket.
type S3Bucket struct {
	name   string
	client s3API
}

// NewS3Bucket builds the s3 client from the default credential chain,
// overridden by static keys when configured.
func NewS3Bucket(ctx context.Context, name string, conf *S3Config) (*S3Bucket, error) {
	region := conf.Region
	if region == "" {
		region = defaultS3Region
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if conf.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.UsePathStyle
	})
	return &S3Bucket{name: name, client: client}, nil
}

// interprets s3 errors and returns library parsable error codes
func interpretS3Error(err error, objectPath string) error {
	if err == nil {
		return nil
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return notFound(objectPath)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return notFound(objectPath)
		case "InvalidArgument", "InvalidDigest", "BadDigest":
			return errors.Wrapf(errors.InvalidArgument, "%s: %s", objectPath, apiErr.ErrorMessage())
		}
	}
	return err
}

func (b *S3Bucket) Name() string {
	return b.name
}

func (b *S3Bucket) DeleteAll(ctx context.Context, prefix string) error {
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	deleted := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return interpretS3Error(err, prefix)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.name),
			Delete: &types.Delete{
				Objects: ids,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return interpretS3Error(err, prefix)
		}
		if len(out.Errors) != 0 {
			e := out.Errors[0]
			return errors.Wrapf(errors.Unknown, "failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
		deleted += len(ids)
	}
	logger.Debugf("cleared %d objects with prefix %q", deleted, prefix)
	return nil
}

// spool copies src into a temporary file so that the body handed to the
// client is seekable and its length and digest are known up front.
func spool(ctx context.Context, src io.Reader) (*os.File, *digest, error) {
	f, err := os.CreateTemp("", "storage-proxy-*")
	if err != nil {
		return nil, nil, err
	}
	d := newDigest()
	if _, err := io.Copy(io.MultiWriter(f, d), db.ContextReader(ctx, src)); err != nil {
		discard(f)
		return nil, nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		discard(f)
		return nil, nil, err
	}
	return f, d, nil
}

func discard(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}

func (b *S3Bucket) Write(ctx context.Context, objectPath string, src io.Reader) error {
	if err := validatePath(objectPath); err != nil {
		return err
	}
	f, d, err := spool(ctx, src)
	if err != nil {
		return err
	}
	defer discard(f)

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(objectPath),
		Body:          f,
		ContentLength: aws.Int64(d.size),
		ContentMD5:    aws.String(d.Sum()),
		ContentType:   aws.String(contentTypeFor(objectPath)),
	})
	return interpretS3Error(err, objectPath)
}

func (b *S3Bucket) WriteString(ctx context.Context, objectPath string, content string) error {
	return b.Write(ctx, objectPath, strings.NewReader(content))
}

// etagToMD5 converts the hex etag of a single part upload into the
// base64 digest form, multipart etags carry no usable digest.
func etagToMD5(etag string) string {
	etag = strings.Trim(etag, `"`)
	if len(etag) != 32 {
		return ""
	}
	raw, err := hex.DecodeString(etag)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func (b *S3Bucket) ReadMetadata(ctx context.Context, objectPath string) (*ObjectMetadata, error) {
	if err := validatePath(objectPath); err != nil {
		return nil, err
	}
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		return nil, interpretS3Error(err, objectPath)
	}
	md := &ObjectMetadata{
		Name:               objectPath,
		Bucket:             b.name,
		Size:               aws.ToInt64(out.ContentLength),
		MD5Hash:            etagToMD5(aws.ToString(out.ETag)),
		ContentType:        aws.ToString(out.ContentType),
		CacheControl:       aws.ToString(out.CacheControl),
		ContentDisposition: aws.ToString(out.ContentDisposition),
		ContentEncoding:    aws.ToString(out.ContentEncoding),
		ContentLanguage:    aws.ToString(out.ContentLanguage),
		Updated:            aws.ToTime(out.LastModified),
	}
	if len(out.Metadata) != 0 {
		md.Metadata = make(map[string]string, len(out.Metadata))
		for k, v := range out.Metadata {
			md.Metadata[k] = v
		}
	}
	return md, nil
}

func optional(val string) *string {
	if val == "" {
		return nil
	}
	return aws.String(val)
}

// WriteMetadata copies the object onto itself replacing its metadata,
// s3 has no in place metadata update.
func (b *S3Bucket) WriteMetadata(ctx context.Context, objectPath string, update *MetadataUpdate) (*ObjectMetadata, error) {
	md, err := b.ReadMetadata(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	update.Apply(md)

	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:             aws.String(b.name),
		Key:                aws.String(objectPath),
		CopySource:         aws.String(b.name + "/" + url.PathEscape(objectPath)),
		MetadataDirective:  types.MetadataDirectiveReplace,
		Metadata:           md.Metadata,
		ContentType:        optional(md.ContentType),
		CacheControl:       optional(md.CacheControl),
		ContentDisposition: optional(md.ContentDisposition),
		ContentEncoding:    optional(md.ContentEncoding),
		ContentLanguage:    optional(md.ContentLanguage),
	})
	if err != nil {
		return nil, interpretS3Error(err, objectPath)
	}
	return b.ReadMetadata(ctx, objectPath)
}

func (b *S3Bucket) Exists(ctx context.Context, objectPath string) (bool, error) {
	if _, err := b.ReadMetadata(ctx, objectPath); err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Bucket) Close(ctx context.Context) error {
	return nil
}
