// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package config loads the proxy configuration from a yaml file, the
// environment and the command line, in increasing order of precedence.
package config

import (
	"bytes"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"gopkg.in/yaml.v3"

	"github.com/go-core-stack/storage-proxy/errors"
	"github.com/go-core-stack/storage-proxy/storage"
	"github.com/go-core-stack/storage-proxy/values"
)

const (
	DefaultListen        = ":4040"
	DefaultRPCPath       = "/json-rpc"
	DefaultUpstream      = "127.0.0.1:9199"
	DefaultShutdownGrace = 10 * time.Second
	DefaultLogLevel      = "<root>=INFO"
)

// LogConfig holds the loggo logger specification.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config of the storage proxy.
type Config struct {
	// address the front door listens on
	Listen string `yaml:"listen"`

	// path of the control endpoint, everything else is proxied
	RPCPath string `yaml:"rpcPath"`

	// host:port of the storage emulator
	Upstream string `yaml:"upstream"`

	// throttle rate in bytes per second at startup, 0 is unlimited
	InitialRate int64 `yaml:"initialRate"`

	// time given to in flight requests on shutdown
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`

	// address of the metrics listener, disabled when empty
	MetricsListen string `yaml:"metricsListen"`

	Log     LogConfig      `yaml:"log"`
	Storage storage.Config `yaml:"storage"`
}

// Default returns the configuration used when nothing is provided.
func Default() *Config {
	return &Config{
		Listen:        DefaultListen,
		RPCPath:       DefaultRPCPath,
		Upstream:      DefaultUpstream,
		ShutdownGrace: DefaultShutdownGrace,
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Parse decodes yaml data on top of the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrapf(errors.InvalidArgument, "invalid configuration: %s", err)
	}
	return c, nil
}

// Load reads the configuration file, an empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// ApplyEnv overrides the configuration from the environment.
func (c *Config) ApplyEnv() {
	if v, ok := values.Lookup(values.ListenEnv); ok {
		c.Listen = v
	}
	if v, ok := values.Lookup(values.UpstreamEnv); ok {
		c.Upstream = v
	}
	if v, ok := values.Lookup(values.LogLevelEnv); ok {
		c.Log.Level = v
	}
	if user, pass, ok := values.GetMongoConfigDBCredentials(); ok {
		c.Storage.Mongo.Username = user
		c.Storage.Mongo.Password = pass
	}
}

// Validate applies defaults to unset values and rejects invalid ones.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.Wrapf(errors.InvalidArgument, "invalid listen address %q", c.Listen)
	}
	if c.RPCPath == "" {
		c.RPCPath = DefaultRPCPath
	}
	if !strings.HasPrefix(c.RPCPath, "/") {
		return errors.Wrapf(errors.InvalidArgument, "rpc path %q must start with /", c.RPCPath)
	}
	if c.Upstream == "" {
		c.Upstream = DefaultUpstream
	}
	if _, _, err := net.SplitHostPort(c.Upstream); err != nil {
		return errors.Wrapf(errors.InvalidArgument, "invalid upstream %q, expected host:port", c.Upstream)
	}
	if c.InitialRate < 0 {
		return errors.Wrapf(errors.InvalidArgument, "initial rate must not be negative, got %d", c.InitialRate)
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			return errors.Wrapf(errors.InvalidArgument, "invalid metrics address %q", c.MetricsListen)
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if _, err := loggo.ParseConfigString(c.Log.Level); err != nil {
		return errors.Wrapf(errors.InvalidArgument, "invalid log level %q: %s", c.Log.Level, err)
	}
	return c.Storage.Validate()
}

// Flags are the command line settings, unset flags leave the
// configuration untouched.
type Flags struct {
	ConfigFile    string
	Listen        string
	RPCPath       string
	Upstream      string
	Rate          int64
	MetricsListen string
	LogLevel      string
	Backend       string
	Bucket        string
}

// NewFlagSet returns the flag set of the binary bound to f.
func NewFlagSet(name string, f *Flags) *gnuflag.FlagSet {
	fs := gnuflag.NewFlagSet(name, gnuflag.ContinueOnError)
	fs.StringVar(&f.ConfigFile, "config", "", "path of the yaml configuration file")
	fs.StringVar(&f.Listen, "listen", "", "address to listen on (default "+DefaultListen+")")
	fs.StringVar(&f.RPCPath, "rpc-path", "", "path of the control endpoint (default "+DefaultRPCPath+")")
	fs.StringVar(&f.Upstream, "upstream", "", "host:port of the storage emulator (default "+DefaultUpstream+")")
	fs.Int64Var(&f.Rate, "rate", -1, "initial throttle rate in bytes per second, 0 is unlimited")
	fs.StringVar(&f.MetricsListen, "metrics-listen", "", "address of the metrics listener")
	fs.StringVar(&f.LogLevel, "log-level", "", "loggo configuration, e.g. <root>=DEBUG")
	fs.StringVar(&f.Backend, "backend", "", "storage backend: memory, mongo or s3")
	fs.StringVar(&f.Bucket, "bucket", "", "name of the bucket")
	return fs
}

// Apply overrides c with the flags that were set.
func (f *Flags) Apply(c *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Listen, f.Listen)
	set(&c.RPCPath, f.RPCPath)
	set(&c.Upstream, f.Upstream)
	set(&c.MetricsListen, f.MetricsListen)
	set(&c.Log.Level, f.LogLevel)
	set(&c.Storage.Backend, f.Backend)
	set(&c.Storage.Bucket, f.Bucket)
	if f.Rate >= 0 {
		c.InitialRate = f.Rate
	}
}

// FromArgs builds the validated configuration from the command line
// arguments: file first, then environment, then flags.
func FromArgs(name string, args []string) (*Config, error) {
	var f Flags
	fs := NewFlagSet(name, &f)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(true, args); err != nil {
		if err == gnuflag.ErrHelp {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
			return nil, err
		}
		return nil, errors.Wrapf(errors.InvalidArgument, "%s", err)
	}
	if fs.NArg() != 0 {
		return nil, errors.Wrapf(errors.InvalidArgument, "unexpected arguments %v", fs.Args())
	}
	c, err := Load(f.ConfigFile)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()
	f.Apply(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
