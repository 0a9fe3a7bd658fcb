// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package storage

import (
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/go-core-stack/storage-proxy/db"
	"github.com/go-core-stack/storage-proxy/errors"
)

const (
	// collection keeping one record per object, keyed by object path
	objectsCollection = "objects"

	// GridFS bucket keeping the object content
	contentFileStore = "content"

	defaultMongoDatabase = "storage"
)

// MongoBucketConfig describes where the mongo backed bucket lives.
type MongoBucketConfig struct {
	db.MongoConfig `yaml:",inline"`
	Database       string `yaml:"database"`
}

// object record as stored in the objects collection
type objectRecord struct {
	FileID             any               `bson:"fileId"`
	Size               int64             `bson:"size"`
	MD5Hash            string            `bson:"md5Hash"`
	ContentType        string            `bson:"contentType,omitempty"`
	CacheControl       string            `bson:"cacheControl,omitempty"`
	ContentDisposition string            `bson:"contentDisposition,omitempty"`
	ContentEncoding    string            `bson:"contentEncoding,omitempty"`
	ContentLanguage    string            `bson:"contentLanguage,omitempty"`
	Updated            time.Time         `bson:"updated"`
	Metadata           map[string]string `bson:"metadata,omitempty"`
}

// reference to the content of an object, used while clearing
type objectRef struct {
	Path   string `bson:"_id"`
	FileID any    `bson:"fileId"`
}

// MongoBucket stores object content in GridFS and object metadata as
// records of a collection.
type MongoBucket struct {
	name    string
	client  db.StoreClient
	objects db.StoreCollection
	files   db.FileStore
}

// NewMongoBucket connects to mongo and returns the bucket backed by the
// configured database.
func NewMongoBucket(ctx context.Context, name string, conf *MongoBucketConfig) (*MongoBucket, error) {
	client, err := db.NewMongoClient(&conf.MongoConfig)
	if err != nil {
		return nil, err
	}
	if err := client.HealthCheck(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	dbName := conf.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}
	b, err := newMongoBucket(name, client.GetDataStore(dbName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	b.client = client
	return b, nil
}

func newMongoBucket(name string, store db.Store) (*MongoBucket, error) {
	files, err := store.GetFileStore(contentFileStore)
	if err != nil {
		return nil, err
	}
	return &MongoBucket{
		name:    name,
		objects: store.GetCollection(objectsCollection),
		files:   files,
	}, nil
}

func (b *MongoBucket) Name() string {
	return b.name
}

// prefixFilter matches every record whose path starts with prefix
func prefixFilter(prefix string) bson.M {
	if prefix == "" {
		return bson.M{}
	}
	return bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
}

func (b *MongoBucket) DeleteAll(ctx context.Context, prefix string) error {
	filter := prefixFilter(prefix)
	var refs []objectRef
	if err := b.objects.FindMany(ctx, filter, &refs); err != nil {
		return err
	}
	for _, ref := range refs {
		if err := b.files.Delete(ctx, ref.FileID); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	if _, err := b.objects.DeleteMany(ctx, filter); err != nil && !errors.IsNotFound(err) {
		return err
	}
	logger.Debugf("cleared %d objects with prefix %q", len(refs), prefix)
	return nil
}

func (b *MongoBucket) Write(ctx context.Context, objectPath string, src io.Reader) error {
	if err := validatePath(objectPath); err != nil {
		return err
	}

	var previous objectRecord
	hasPrevious := true
	if err := b.objects.FindOne(ctx, objectPath, &previous); err != nil {
		if !errors.IsNotFound(err) {
			return err
		}
		hasPrevious = false
	}

	d := newDigest()
	fileID, size, err := b.files.Upload(ctx, objectPath, io.TeeReader(src, d))
	if err != nil {
		return err
	}

	rec := &objectRecord{
		FileID:      fileID,
		Size:        size,
		MD5Hash:     d.Sum(),
		ContentType: contentTypeFor(objectPath),
		Updated:     time.Now().UTC(),
	}
	if err := b.objects.ReplaceOne(ctx, objectPath, rec, true); err != nil {
		// content isn't referenced by any record, drop it
		if derr := b.files.Delete(context.Background(), fileID); derr != nil {
			logger.Warningf("failed to remove orphan content of %q: %s", objectPath, derr)
		}
		return err
	}

	if hasPrevious && previous.FileID != nil {
		if err := b.files.Delete(ctx, previous.FileID); err != nil && !errors.IsNotFound(err) {
			logger.Warningf("failed to remove previous content of %q: %s", objectPath, err)
		}
	}
	return nil
}

func (b *MongoBucket) WriteString(ctx context.Context, objectPath string, content string) error {
	return b.Write(ctx, objectPath, strings.NewReader(content))
}

func (b *MongoBucket) find(ctx context.Context, objectPath string) (*objectRecord, error) {
	if err := validatePath(objectPath); err != nil {
		return nil, err
	}
	rec := &objectRecord{}
	if err := b.objects.FindOne(ctx, objectPath, rec); err != nil {
		if errors.IsNotFound(err) {
			return nil, notFound(objectPath)
		}
		return nil, err
	}
	return rec, nil
}

func (b *MongoBucket) ReadMetadata(ctx context.Context, objectPath string) (*ObjectMetadata, error) {
	rec, err := b.find(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	return b.toMetadata(objectPath, rec), nil
}

func (b *MongoBucket) WriteMetadata(ctx context.Context, objectPath string, update *MetadataUpdate) (*ObjectMetadata, error) {
	rec, err := b.find(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	md := b.toMetadata(objectPath, rec)
	update.Apply(md)

	rec.ContentType = md.ContentType
	rec.CacheControl = md.CacheControl
	rec.ContentDisposition = md.ContentDisposition
	rec.ContentEncoding = md.ContentEncoding
	rec.ContentLanguage = md.ContentLanguage
	rec.Metadata = md.Metadata
	rec.Updated = time.Now().UTC()

	if err := b.objects.ReplaceOne(ctx, objectPath, rec, false); err != nil {
		if errors.IsNotFound(err) {
			return nil, notFound(objectPath)
		}
		return nil, err
	}
	return b.toMetadata(objectPath, rec), nil
}

func (b *MongoBucket) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := validatePath(objectPath); err != nil {
		return false, err
	}
	count, err := b.objects.Count(ctx, bson.M{"_id": objectPath})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (b *MongoBucket) Close(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Disconnect(ctx)
}

func (b *MongoBucket) toMetadata(objectPath string, rec *objectRecord) *ObjectMetadata {
	md := &ObjectMetadata{
		Name:               objectPath,
		Bucket:             b.name,
		Size:               rec.Size,
		MD5Hash:            rec.MD5Hash,
		ContentType:        rec.ContentType,
		CacheControl:       rec.CacheControl,
		ContentDisposition: rec.ContentDisposition,
		ContentEncoding:    rec.ContentEncoding,
		ContentLanguage:    rec.ContentLanguage,
		Updated:            rec.Updated,
	}
	if len(rec.Metadata) != 0 {
		md.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			md.Metadata[k] = v
		}
	}
	return md
}
