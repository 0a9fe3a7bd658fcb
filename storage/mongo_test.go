// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/go-core-stack/storage-proxy/db"
	"github.com/go-core-stack/storage-proxy/errors"
)

// fakeCollection keeps documents in memory, understanding just the
// filters issued by the mongo bucket.
type fakeCollection struct {
	mu   sync.Mutex
	docs map[string]bson.M
}

func (c *fakeCollection) matches(filter any, key string) bool {
	m, ok := filter.(bson.M)
	if !ok || len(m) == 0 {
		return true
	}
	switch id := m["_id"].(type) {
	case string:
		return id == key
	case bson.M:
		return regexp.MustCompile(id["$regex"].(string)).MatchString(key)
	}
	return false
}

func (c *fakeCollection) store(key any, data any) error {
	raw, err := bson.Marshal(data)
	if err != nil {
		return err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return err
	}
	doc["_id"] = key
	c.docs[fmt.Sprint(key)] = doc
	return nil
}

func (c *fakeCollection) ReplaceOne(ctx context.Context, key any, data any, upsert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[fmt.Sprint(key)]; !ok && !upsert {
		return errors.Wrap(errors.NotFound, "No Document found")
	}
	return c.store(key, data)
}

func (c *fakeCollection) FindOne(ctx context.Context, key any, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[fmt.Sprint(key)]
	if !ok {
		return errors.Wrap(errors.NotFound, "mongo: no documents in result")
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, data)
}

func (c *fakeCollection) FindMany(ctx context.Context, filter any, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := bson.A{}
	for key, doc := range c.docs {
		if c.matches(filter, key) {
			list = append(list, doc)
		}
	}
	raw, err := bson.Marshal(bson.M{"v": list})
	if err != nil {
		return err
	}
	var wrapper struct {
		V bson.RawValue `bson:"v"`
	}
	if err := bson.Unmarshal(raw, &wrapper); err != nil {
		return err
	}
	return wrapper.V.Unmarshal(data)
}

func (c *fakeCollection) Count(ctx context.Context, filter any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var count int64
	for key := range c.docs {
		if c.matches(filter, key) {
			count++
		}
	}
	return count, nil
}

func (c *fakeCollection) DeleteMany(ctx context.Context, filter any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var count int64
	for key := range c.docs {
		if c.matches(filter, key) {
			delete(c.docs, key)
			count++
		}
	}
	if count == 0 {
		return 0, errors.Wrap(errors.NotFound, "No matching entries found to delete")
	}
	return count, nil
}

type fakeFileStore struct {
	mu    sync.Mutex
	next  int
	files map[string][]byte
}

func (s *fakeFileStore) Upload(ctx context.Context, name string, src io.Reader) (any, int64, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("file-%d", s.next)
	s.files[id] = data
	return id, int64(len(data)), nil
}

func (s *fakeFileStore) Delete(ctx context.Context, id any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprint(id)
	if _, ok := s.files[key]; !ok {
		return errors.Wrap(errors.NotFound, "file not found")
	}
	delete(s.files, key)
	return nil
}

type fakeStore struct {
	col   *fakeCollection
	files *fakeFileStore
}

func (s *fakeStore) Name() string {
	return "fake"
}

func (s *fakeStore) GetCollection(name string) db.StoreCollection {
	return s.col
}

func (s *fakeStore) GetFileStore(name string) (db.FileStore, error) {
	return s.files, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		col:   &fakeCollection{docs: make(map[string]bson.M)},
		files: &fakeFileStore{files: make(map[string][]byte)},
	}
}

func TestMongoBucketContract(t *testing.T) {
	store := newFakeStore()
	b, err := newMongoBucket("mongo-bucket", store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testBucketContract(t, b)

	if len(store.files.files) != 0 {
		t.Fatalf("expected no content left after clearing, got %d files", len(store.files.files))
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestMongoBucketOverwriteDropsOldContent(t *testing.T) {
	store := newFakeStore()
	b, err := newMongoBucket("mongo-bucket", store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if err := b.WriteString(ctx, "obj", content); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(store.files.files) != 1 {
		t.Fatalf("expected only the latest content to be kept, got %d files", len(store.files.files))
	}
	for _, data := range store.files.files {
		if string(data) != "three" {
			t.Fatalf("unexpected content kept %q", data)
		}
	}
}

func TestPrefixFilter(t *testing.T) {
	if f := prefixFilter(""); len(f) != 0 {
		t.Fatalf("expected empty filter, got %v", f)
	}
	f := prefixFilter("a.b/")
	re := f["_id"].(bson.M)["$regex"].(string)
	if re != `^a\.b/` {
		t.Fatalf("unexpected regex %q", re)
	}
}
