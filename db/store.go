// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Initial reference and motivation taken from
// https://gitlab.com/project-emco/core/emco-base/-/blob/main/src/orchestrator/pkg/infra/db

package db

import (
	"context"
	"io"
)

type StoreCollection interface {
	// replace the entry for the given key with data, inserting it
	// if it doesn't exist and upsert is set
	ReplaceOne(ctx context.Context, key any, data any, upsert bool) error

	// find one entry from the store collection for the given key
	FindOne(ctx context.Context, key any, data any) error

	// find multiple entries matching the filter, decoded into data
	FindMany(ctx context.Context, filter any, data any) error

	// count of entries matching the filter
	Count(ctx context.Context, filter any) (int64, error)

	// remove all entries matching the filter, returns the number of
	// entries removed
	DeleteMany(ctx context.Context, filter any) (int64, error)
}

// FileStore keeps file content split in chunks, suitable for content
// that is streamed in and too large for a single document.
type FileStore interface {
	// Upload streams src into a new file, returning its identifier and
	// the number of bytes stored
	Upload(ctx context.Context, name string, src io.Reader) (any, int64, error)

	// Delete removes the file with the given identifier
	Delete(ctx context.Context, id any) error
}

type Store interface {
	// Name of the database
	Name() string

	// Get the collection interface given the collection name
	GetCollection(name string) StoreCollection

	// Get the file store interface given the bucket name
	GetFileStore(name string) (FileStore, error)
}

type StoreClient interface {
	// Get the Data Store interface given the client interface
	GetDataStore(dbName string) Store

	// Health Check, if the Store is connectable and healthy
	// returns the status of health of the server by means of
	// error if error is nil the health of the DB store can be
	// considered healthy
	HealthCheck(ctx context.Context) error

	// Disconnect closes the connections to the server
	Disconnect(ctx context.Context) error
}
