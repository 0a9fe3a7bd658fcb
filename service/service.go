// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package service binds the control methods to the storage bucket and
// the throttle rate controller.
package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/juju/loggo/v2"

	"github.com/go-core-stack/storage-proxy/errors"
	"github.com/go-core-stack/storage-proxy/jsonrpc"
	"github.com/go-core-stack/storage-proxy/rate"
	"github.com/go-core-stack/storage-proxy/storage"
)

var logger = loggo.GetLogger("storageproxy.service")

// Service implements the control methods.
type Service struct {
	bucket storage.Bucket
	ctrl   *rate.Controller
}

// New creates the service over the given bucket and rate controller.
func New(bucket storage.Bucket, ctrl *rate.Controller) *Service {
	return &Service{
		bucket: bucket,
		ctrl:   ctrl,
	}
}

// Register binds every control method to the dispatcher.
func (s *Service) Register(d *jsonrpc.Dispatcher) error {
	methods := map[string]jsonrpc.Method{
		"clearStorage":  s.clearStorage,
		"uploadFile":    s.uploadFile,
		"verifyMD5Hash": s.verifyMD5Hash,
		"putString":     s.putString,
		"verifyExists":  s.verifyExists,
		"putMetadata":   s.putMetadata,
		"getMetadata":   s.getMetadata,
		"setSpeed":      s.setSpeed,
		"getSpeed":      s.getSpeed,
	}
	for name, m := range methods {
		if err := d.Register(name, m); err != nil {
			return err
		}
	}
	return nil
}

type pathParams struct {
	Path string `json:"path"`
}

type hashParams struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

type stringParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type metadataParams struct {
	Path     string                  `json:"path"`
	Metadata *storage.MetadataUpdate `json:"metadata"`
}

type speedParams struct {
	Speed *int64 `json:"speed"`
}

// SpeedInfo is the result of getSpeed.
type SpeedInfo struct {
	Speed          int64 `json:"speed"`
	ActiveSessions int   `json:"activeSessions"`
}

func (p *pathParams) path() string     { return p.Path }
func (p *hashParams) path() string     { return p.Path }
func (p *stringParams) path() string   { return p.Path }
func (p *metadataParams) path() string { return p.Path }

// params of the methods addressing an object
type objectParams interface {
	path() string
}

// decodes params requiring a non empty path
func decodePath(params json.RawMessage, v objectParams) error {
	if err := jsonrpc.DecodeParams(params, v); err != nil {
		return err
	}
	if v.path() == "" {
		return errors.Wrap(errors.InvalidArgument, "missing path")
	}
	return nil
}

func (s *Service) clearStorage(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.bucket.DeleteAll(ctx, ""); err != nil {
		return nil, err
	}
	return nil, nil
}

// uploadFile streams a local file into the bucket under its base name,
// paced at the rate in effect when the upload starts.
func (s *Service) uploadFile(ctx context.Context, params json.RawMessage) (any, error) {
	var p pathParams
	if err := decodePath(params, &p); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, err
	}
	lim, err := s.ctrl.NewLimiter("upload-" + uuid.New().String())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r := rate.NewReader(ctx, lim, f)
	defer r.Close()

	name := filepath.Base(p.Path)
	logger.Debugf("uploading %s as %s at %d bytes/s", p.Path, name, lim.Rate())
	if err := s.bucket.Write(ctx, name, r); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) verifyMD5Hash(ctx context.Context, params json.RawMessage) (any, error) {
	var p hashParams
	if err := decodePath(params, &p); err != nil {
		return nil, err
	}
	md, err := s.bucket.ReadMetadata(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	if md.MD5Hash != p.Hash {
		return nil, errors.Wrapf(errors.Mismatch, "MD5 hash mismatch for %s: expected %s, got %s", p.Path, p.Hash, md.MD5Hash)
	}
	return nil, nil
}

func (s *Service) putString(ctx context.Context, params json.RawMessage) (any, error) {
	var p stringParams
	if err := decodePath(params, &p); err != nil {
		return nil, err
	}
	if err := s.bucket.WriteString(ctx, p.Path, p.Content); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) verifyExists(ctx context.Context, params json.RawMessage) (any, error) {
	var p pathParams
	if err := decodePath(params, &p); err != nil {
		return nil, err
	}
	ok, err := s.bucket.Exists(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.NotFound, "File %s does not exist", p.Path)
	}
	return nil, nil
}

func (s *Service) putMetadata(ctx context.Context, params json.RawMessage) (any, error) {
	var p metadataParams
	if err := decodePath(params, &p); err != nil {
		return nil, err
	}
	if p.Metadata == nil {
		p.Metadata = &storage.MetadataUpdate{}
	}
	return s.bucket.WriteMetadata(ctx, p.Path, p.Metadata)
}

func (s *Service) getMetadata(ctx context.Context, params json.RawMessage) (any, error) {
	var p pathParams
	if err := decodePath(params, &p); err != nil {
		return nil, err
	}
	return s.bucket.ReadMetadata(ctx, p.Path)
}

// setSpeed changes the rate applied to sessions and uploads started
// from now on.
func (s *Service) setSpeed(ctx context.Context, params json.RawMessage) (any, error) {
	var p speedParams
	if err := jsonrpc.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Speed == nil {
		return nil, errors.Wrap(errors.InvalidArgument, "missing speed")
	}
	if *p.Speed < 0 {
		return nil, errors.Wrapf(errors.InvalidArgument, "speed must not be negative, got %d", *p.Speed)
	}
	s.ctrl.SetRate(*p.Speed)
	logger.Infof("throttle rate set to %d bytes/s", *p.Speed)
	return nil, nil
}

func (s *Service) getSpeed(ctx context.Context, params json.RawMessage) (any, error) {
	return &SpeedInfo{
		Speed:          s.ctrl.Rate(),
		ActiveSessions: s.ctrl.Active(),
	}, nil
}
