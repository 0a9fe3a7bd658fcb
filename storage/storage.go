// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package storage defines the bucket contract consumed by the control
// methods, along with the memory, mongo and s3 backed implementations.
//
// Every operation may fail and none of them retries. Missing objects are
// reported with errors.NotFound, malformed input with
// errors.InvalidArgument.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"hash"
	"io"
	"mime"
	"path"
	"time"

	"github.com/juju/loggo/v2"

	"github.com/go-core-stack/storage-proxy/errors"
)

var logger = loggo.GetLogger("storageproxy.storage")

// Bucket is a flat namespace of objects addressed by path.
type Bucket interface {
	// Name of the bucket
	Name() string

	// DeleteAll removes every object whose path starts with prefix, an
	// empty prefix clears the whole bucket
	DeleteAll(ctx context.Context, prefix string) error

	// Write stores the content of src as the object body, replacing
	// any previous object along with its metadata
	Write(ctx context.Context, objectPath string, src io.Reader) error

	// WriteString stores content as the object body
	WriteString(ctx context.Context, objectPath string, content string) error

	// ReadMetadata returns the metadata of the object
	ReadMetadata(ctx context.Context, objectPath string) (*ObjectMetadata, error)

	// WriteMetadata merges update into the object metadata and returns
	// the resulting metadata
	WriteMetadata(ctx context.Context, objectPath string, update *MetadataUpdate) (*ObjectMetadata, error)

	// Exists reports whether the object is present
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Close releases the connections held by the backend
	Close(ctx context.Context) error
}

// ObjectMetadata describes a stored object. MD5Hash is the base64
// encoded MD5 digest of the content.
type ObjectMetadata struct {
	Name               string            `json:"name"`
	Bucket             string            `json:"bucket"`
	Size               int64             `json:"size"`
	MD5Hash            string            `json:"md5Hash"`
	ContentType        string            `json:"contentType,omitempty"`
	CacheControl       string            `json:"cacheControl,omitempty"`
	ContentDisposition string            `json:"contentDisposition,omitempty"`
	ContentEncoding    string            `json:"contentEncoding,omitempty"`
	ContentLanguage    string            `json:"contentLanguage,omitempty"`
	Updated            time.Time         `json:"updated"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// MetadataUpdate carries the fields to change. Nil fields are left
// untouched, an empty string clears the field. Custom metadata is
// merged key by key and a nil value removes the key.
type MetadataUpdate struct {
	ContentType        *string            `json:"contentType,omitempty"`
	CacheControl       *string            `json:"cacheControl,omitempty"`
	ContentDisposition *string            `json:"contentDisposition,omitempty"`
	ContentEncoding    *string            `json:"contentEncoding,omitempty"`
	ContentLanguage    *string            `json:"contentLanguage,omitempty"`
	Metadata           map[string]*string `json:"metadata,omitempty"`
}

// Apply merges the update into md.
func (u *MetadataUpdate) Apply(md *ObjectMetadata) {
	if u == nil {
		return
	}
	set := func(dst *string, val *string) {
		if val != nil {
			*dst = *val
		}
	}
	set(&md.ContentType, u.ContentType)
	set(&md.CacheControl, u.CacheControl)
	set(&md.ContentDisposition, u.ContentDisposition)
	set(&md.ContentEncoding, u.ContentEncoding)
	set(&md.ContentLanguage, u.ContentLanguage)

	for k, v := range u.Metadata {
		if v == nil {
			delete(md.Metadata, k)
			continue
		}
		if md.Metadata == nil {
			md.Metadata = make(map[string]string)
		}
		md.Metadata[k] = *v
	}
	if len(md.Metadata) == 0 {
		md.Metadata = nil
	}
}

func validatePath(objectPath string) error {
	if objectPath == "" {
		return errors.Wrap(errors.InvalidArgument, "object path must not be empty")
	}
	return nil
}

func notFound(objectPath string) error {
	return errors.Wrapf(errors.NotFound, "No such object: %s", objectPath)
}

// contentTypeFor guesses the content type from the object extension.
func contentTypeFor(objectPath string) string {
	if ct := mime.TypeByExtension(path.Ext(objectPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// digest tracks the MD5 and size of the data flowing through it.
type digest struct {
	h    hash.Hash
	size int64
}

func newDigest() *digest {
	return &digest{h: md5.New()}
}

func (d *digest) Write(p []byte) (int, error) {
	d.size += int64(len(p))
	return d.h.Write(p)
}

// Sum returns the base64 encoded digest.
func (d *digest) Sum() string {
	return base64.StdEncoding.EncodeToString(d.h.Sum(nil))
}

// MD5Hash returns the base64 encoded MD5 digest of data, in the same
// form as ObjectMetadata.MD5Hash.
func MD5Hash(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
