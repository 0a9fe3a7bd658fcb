// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Initial reference and motivation taken from
// https://gitlab.com/project-emco/core/emco-base/-/blob/main/src/orchestrator/pkg/infra/db

package db

import (
	"context"
	"io"
	"net"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"github.com/go-core-stack/storage-proxy/errors"
	"github.com/go-core-stack/storage-proxy/utils"
)

type mongoCollection struct {
	parent  *mongoStore // handler for the parent mongo DB object
	colName string      // name of the collection this collection object is working with
	col     *mongo.Collection
}

// interprets mongo db error and returns library parsable error codes
func interpretMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(errors.AlreadyExists, err.Error())
	}
	if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, gridfs.ErrFileNotFound) {
		return errors.Wrap(errors.NotFound, err.Error())
	}
	return err
}

// replaces the entry with given key by data, fields not present in data
// are dropped, inserts the entry if missing and upsert flag is set
// returns not found error if entry is missing and upsert is false
func (c *mongoCollection) ReplaceOne(ctx context.Context, key any, data any, upsert bool) error {
	bd, err := toDocument(key, data)
	if err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(upsert)
	resp, err := c.col.ReplaceOne(ctx, bson.M{"_id": key}, bd, opts)
	if err != nil {
		return interpretMongoError(err)
	}

	if resp.MatchedCount == 0 && resp.UpsertedCount == 0 {
		return errors.Wrap(errors.NotFound, "No Document found")
	}
	return nil
}

// converts data to bson document carrying the key as primary key
func toDocument(key any, data any) (bson.D, error) {
	if data == nil {
		return nil, errors.Wrap(errors.InvalidArgument, "db Insert error: No data to store")
	}
	if key == nil {
		return nil, errors.Wrap(errors.InvalidArgument, "db Insert error: No Key specified to store")
	}

	marshaledData, err := bson.Marshal(data)
	if err != nil {
		return nil, err
	}

	bd := bson.D{}
	err = bson.Unmarshal(marshaledData, &bd)
	if err != nil {
		return nil, err
	}

	// drop any _id coming along with data, key is the only primary key
	filtered := bd[:0]
	for _, e := range bd {
		if e.Key != "_id" {
			filtered = append(filtered, e)
		}
	}
	return append(filtered, bson.E{Key: "_id", Value: key}), nil
}

// Find one entry from the store collection for the given key, where the data
// value is returned based on the object type passed to it
func (c *mongoCollection) FindOne(ctx context.Context, key any, data any) error {
	resp := c.col.FindOne(ctx, bson.M{"_id": key})
	// decode the value returned by the mongodb client into the data
	// object passed by the caller
	if err := resp.Decode(data); err != nil {
		return interpretMongoError(err)
	}
	return nil
}

// Find multiple entries from the store collection for the given filter, where the data
// value is returned as a list based on the object type passed to it
func (c *mongoCollection) FindMany(ctx context.Context, filter any, data any) error {
	if filter == nil {
		filter = bson.D{}
	}
	cursor, err := c.col.Find(ctx, filter)
	if err != nil {
		return interpretMongoError(err)
	}
	return decodeAll(ctx, cursor, data)
}

// decodeAll drains the cursor into data and closes it
func decodeAll(ctx context.Context, cursor *mongo.Cursor, data any) error {
	if err := cursor.All(ctx, data); err != nil {
		return interpretMongoError(err)
	}
	return nil
}

// Return count of entries matching the provided filter
func (c *mongoCollection) Count(ctx context.Context, filter any) (int64, error) {
	if filter == nil {
		filter = bson.D{}
	}
	count, err := c.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, interpretMongoError(err)
	}
	return count, nil
}

// Delete Many entries matching the delete criteria
// returns number of entries deleted and if there is any error processing the request
func (c *mongoCollection) DeleteMany(ctx context.Context, filter any) (int64, error) {
	if filter == nil {
		filter = bson.D{}
	}
	resp, err := c.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, interpretMongoError(err)
	}
	if resp.DeletedCount == 0 {
		return 0, errors.Wrap(errors.NotFound, "No matching entries found to delete")
	}
	return resp.DeletedCount, nil
}

type mongoFileStore struct {
	bucket *gridfs.Bucket
}

// ContextReader wraps r so that reads fail once ctx is done, for
// copies into sinks that are not context aware such as the GridFS
// upload stream
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Upload streams the source into a new GridFS file, the partially
// written chunks are removed if the copy fails
func (s *mongoFileStore) Upload(ctx context.Context, name string, src io.Reader) (any, int64, error) {
	stream, err := s.bucket.OpenUploadStream(name)
	if err != nil {
		return nil, 0, interpretMongoError(err)
	}
	n, err := io.Copy(stream, ContextReader(ctx, src))
	if err != nil {
		_ = stream.Abort()
		return nil, n, err
	}
	if err := stream.Close(); err != nil {
		return nil, n, interpretMongoError(err)
	}
	return stream.FileID, n, nil
}

// Delete removes the GridFS file along with its chunks
func (s *mongoFileStore) Delete(ctx context.Context, id any) error {
	if err := s.bucket.DeleteContext(ctx, id); err != nil {
		return interpretMongoError(err)
	}
	return nil
}

type mongoStore struct {
	db *mongo.Database
}

func (s *mongoStore) GetCollection(name string) StoreCollection {
	handle := s.db.Collection(name)
	c := &mongoCollection{
		parent:  s,
		colName: name,
		col:     handle,
	}

	return c
}

func (s *mongoStore) GetFileStore(name string) (FileStore, error) {
	opts := options.GridFSBucket().SetName(name).SetChunkSizeBytes(defaultFileChunkSize)
	bucket, err := gridfs.NewBucket(s.db, opts)
	if err != nil {
		return nil, err
	}
	return &mongoFileStore{bucket: bucket}, nil
}

func (s *mongoStore) Name() string {
	return s.db.Name()
}

type mongoClient struct {
	client *mongo.Client
}

type MongoConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Uri      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (c *MongoConfig) validate() error {
	if c.Uri != "" {
		if c.Host != "" || c.Port != "" {
			return errors.Wrap(errors.InvalidArgument, "cannot provide host and port if uri is configured")
		}
	} else {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == "" || c.Port == "0" {
			c.Port = "27017"
		} else {
			if _, err := strconv.Atoi(c.Port); err != nil {
				return errors.Wrap(errors.InvalidArgument, "invalid database port")
			}
		}
	}
	return nil
}

// uri to connect to, validate must have been called before
func (c *MongoConfig) uri() string {
	if c.Uri != "" {
		return c.Uri
	}
	return "mongodb://" + net.JoinHostPort(c.Host, c.Port)
}

func NewMongoClient(conf *MongoConfig) (StoreClient, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	clientOptions := options.Client()
	clientOptions.ApplyURI(conf.uri())
	clientOptions.SetAppName(getSourceIdentifier())
	if conf.Username != "" {
		clientOptions.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-256",
			AuthSource:    "admin",
			Username:      conf.Username,
			Password:      conf.Password,
		})
	}
	clientOptions.SetMonitor(otelmongo.NewMonitor())

	// object records and their file content are written separately, so
	// make sure both are acknowledged by a majority and journaled
	wc := writeconcern.Majority()
	wc.Journal = utils.BoolP(true)
	clientOptions.SetWriteConcern(wc)

	client, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		return nil, err
	}

	mClient := &mongoClient{
		client: client,
	}
	return mClient, nil
}

// Gets Mongodb Data Store for given database name
// typically while working with mongodb it requires to work on a collection
// which is scoped inside a database construct of mongodb
func (c *mongoClient) GetDataStore(dbName string) Store {
	return &mongoStore{
		db: c.client.Database(dbName),
	}
}

func (c *mongoClient) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *mongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
