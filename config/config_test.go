// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/gnuflag"

	"github.com/go-core-stack/storage-proxy/errors"
	"github.com/go-core-stack/storage-proxy/storage"
	"github.com/go-core-stack/storage-proxy/values"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		values.ListenEnv,
		values.UpstreamEnv,
		values.LogLevelEnv,
		values.MongoConfigDBUserNameEnv,
		values.MongoConfigDBPasswordEnv,
	} {
		t.Setenv(name, "")
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if c.Listen != ":4040" || c.RPCPath != "/json-rpc" || c.Upstream != "127.0.0.1:9199" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.InitialRate != 0 || c.ShutdownGrace != 10*time.Second || c.MetricsListen != "" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Storage.Backend != storage.BackendMemory || c.Storage.Bucket != storage.DefaultBucketName {
		t.Fatalf("unexpected storage defaults %+v", c.Storage)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
listen: "127.0.0.1:5050"
upstream: "emulator:9199"
initialRate: 65536
shutdownGrace: 3s
metricsListen: ":9100"
log:
  level: "<root>=DEBUG"
storage:
  backend: mongo
  bucket: test-bucket
  mongo:
    host: db
    port: "27018"
    database: objects
  s3:
    region: eu-west-1
    usePathStyle: true
`)
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Listen != "127.0.0.1:5050" || c.Upstream != "emulator:9199" || c.RPCPath != DefaultRPCPath {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.InitialRate != 65536 || c.ShutdownGrace != 3*time.Second || c.MetricsListen != ":9100" {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.Log.Level != "<root>=DEBUG" {
		t.Fatalf("got log level %q", c.Log.Level)
	}
	if c.Storage.Backend != storage.BackendMongo || c.Storage.Bucket != "test-bucket" {
		t.Fatalf("unexpected storage %+v", c.Storage)
	}
	if c.Storage.Mongo.Host != "db" || c.Storage.Mongo.Port != "27018" || c.Storage.Mongo.Database != "objects" {
		t.Fatalf("unexpected mongo config %+v", c.Storage.Mongo)
	}
	if c.Storage.S3.Region != "eu-west-1" || !c.Storage.S3.UsePathStyle {
		t.Fatalf("unexpected s3 config %+v", c.Storage.S3)
	}
}

func TestParseRejects(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"unknown key", "listne: ':1'"},
		{"bad type", "initialRate: fast"},
		{"bad duration", "shutdownGrace: soon"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.data)); !errors.IsInvalidArgument(err) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Listen != DefaultListen {
		t.Fatalf("got %q want %q", c.Listen, DefaultListen)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"empty values", func(c *Config) { *c = Config{} }, true},
		{"bad listen", func(c *Config) { c.Listen = "4040" }, false},
		{"relative rpc path", func(c *Config) { c.RPCPath = "json-rpc" }, false},
		{"bad upstream", func(c *Config) { c.Upstream = "emulator" }, false},
		{"negative rate", func(c *Config) { c.InitialRate = -1 }, false},
		{"bad metrics", func(c *Config) { c.MetricsListen = "metrics" }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "<root>=LOUD" }, false},
		{"bad backend", func(c *Config) { c.Storage.Backend = "ftp" }, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(c)
			err := c.Validate()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && !errors.IsInvalidArgument(err) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestFromArgsPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	data := []byte("listen: ':5000'\nupstream: 'file:1'\ninitialRate: 10\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv(values.UpstreamEnv, "env:2")
	t.Setenv(values.MongoConfigDBUserNameEnv, "proxy")
	t.Setenv(values.MongoConfigDBPasswordEnv, "secret")

	c, err := FromArgs("storage-proxy", []string{"--config", path, "--rate", "0", "--bucket", "flag-bucket"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Listen != ":5000" {
		t.Fatalf("file value lost, got listen %q", c.Listen)
	}
	if c.Upstream != "env:2" {
		t.Fatalf("environment must override the file, got %q", c.Upstream)
	}
	if c.InitialRate != 0 {
		t.Fatalf("flag must override the file, got rate %d", c.InitialRate)
	}
	if c.Storage.Bucket != "flag-bucket" {
		t.Fatalf("got bucket %q want %q", c.Storage.Bucket, "flag-bucket")
	}
	if c.Storage.Mongo.Username != "proxy" || c.Storage.Mongo.Password != "secret" {
		t.Fatalf("mongo credentials not taken from the environment")
	}
}

func TestFromArgsErrors(t *testing.T) {
	clearEnv(t)
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--bogus"}},
		{"positional", []string{"extra"}},
		{"invalid value", []string{"--upstream", "nohost"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromArgs("storage-proxy", tc.args); !errors.IsInvalidArgument(err) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
	if _, err := FromArgs("storage-proxy", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected missing config file to fail")
	}
}

func TestFromArgsHelp(t *testing.T) {
	clearEnv(t)
	if _, err := FromArgs("storage-proxy", []string{"--help"}); err != gnuflag.ErrHelp {
		t.Fatalf("got %v want %v", err, gnuflag.ErrHelp)
	}
}
