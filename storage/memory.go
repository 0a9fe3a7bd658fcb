// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/go-core-stack/storage-proxy/db"
)

type memoryObject struct {
	data []byte
	md   ObjectMetadata
}

// MemoryBucket keeps objects in process memory, objects never expire.
type MemoryBucket struct {
	name    string
	mu      sync.Mutex // serializes read-modify-write sequences
	objects *cache.Cache
}

// NewMemoryBucket returns an empty in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		objects: cache.New(cache.NoExpiration, 0),
	}
}

func (b *MemoryBucket) Name() string {
	return b.name
}

func (b *MemoryBucket) get(objectPath string) (*memoryObject, bool) {
	v, ok := b.objects.Get(objectPath)
	if !ok {
		return nil, false
	}
	return v.(*memoryObject), true
}

func (b *MemoryBucket) DeleteAll(ctx context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.objects.Items() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(key, prefix) {
			b.objects.Delete(key)
		}
	}
	return nil
}

func (b *MemoryBucket) Write(ctx context.Context, objectPath string, src io.Reader) error {
	if err := validatePath(objectPath); err != nil {
		return err
	}
	d := newDigest()
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, d), db.ContextReader(ctx, src)); err != nil {
		return err
	}

	obj := &memoryObject{
		data: buf.Bytes(),
		md: ObjectMetadata{
			Name:        objectPath,
			Bucket:      b.name,
			Size:        d.size,
			MD5Hash:     d.Sum(),
			ContentType: contentTypeFor(objectPath),
			Updated:     time.Now().UTC(),
		},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects.Set(objectPath, obj, cache.NoExpiration)
	return nil
}

func (b *MemoryBucket) WriteString(ctx context.Context, objectPath string, content string) error {
	return b.Write(ctx, objectPath, strings.NewReader(content))
}

func (b *MemoryBucket) ReadMetadata(ctx context.Context, objectPath string) (*ObjectMetadata, error) {
	if err := validatePath(objectPath); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.get(objectPath)
	if !ok {
		return nil, notFound(objectPath)
	}
	return copyMetadata(&obj.md), nil
}

func (b *MemoryBucket) WriteMetadata(ctx context.Context, objectPath string, update *MetadataUpdate) (*ObjectMetadata, error) {
	if err := validatePath(objectPath); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.get(objectPath)
	if !ok {
		return nil, notFound(objectPath)
	}
	md := copyMetadata(&obj.md)
	update.Apply(md)
	md.Updated = time.Now().UTC()
	b.objects.Set(objectPath, &memoryObject{data: obj.data, md: *md}, cache.NoExpiration)
	return copyMetadata(md), nil
}

func (b *MemoryBucket) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := validatePath(objectPath); err != nil {
		return false, err
	}
	_, ok := b.get(objectPath)
	return ok, nil
}

// Content returns a copy of the object body.
func (b *MemoryBucket) Content(objectPath string) ([]byte, bool) {
	obj, ok := b.get(objectPath)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Count returns the number of stored objects.
func (b *MemoryBucket) Count() int {
	return b.objects.ItemCount()
}

func (b *MemoryBucket) Close(ctx context.Context) error {
	return nil
}

func copyMetadata(md *ObjectMetadata) *ObjectMetadata {
	c := *md
	if md.Metadata != nil {
		c.Metadata = make(map[string]string, len(md.Metadata))
		for k, v := range md.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
