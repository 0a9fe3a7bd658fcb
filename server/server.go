// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package server is the front door of the storage proxy. A single
// listener routes the control endpoint to the JSON-RPC dispatcher and
// everything else to the throttled proxy.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/go-core-stack/storage-proxy/config"
	"github.com/go-core-stack/storage-proxy/jsonrpc"
	"github.com/go-core-stack/storage-proxy/metrics"
	"github.com/go-core-stack/storage-proxy/proxy"
	"github.com/go-core-stack/storage-proxy/rate"
	"github.com/go-core-stack/storage-proxy/service"
	"github.com/go-core-stack/storage-proxy/storage"
)

var logger = loggo.GetLogger("storageproxy.server")

// Server wires the control plane and the proxy behind one listener.
type Server struct {
	conf       *config.Config
	ctrl       *rate.Controller
	dispatcher *jsonrpc.Dispatcher
	proxy      *proxy.Manager
	collector  *metrics.Collector
	registry   *prometheus.Registry
	router     *mux.Router
}

// New builds the server for a validated configuration and an open
// bucket.
func New(conf *config.Config, bucket storage.Bucket) (*Server, error) {
	s := &Server{
		conf: conf,
		ctrl: rate.NewController(conf.InitialRate),
	}
	s.collector = metrics.NewCollector(s.ctrl)
	registry, err := metrics.NewRegistry(s.collector)
	if err != nil {
		return nil, err
	}
	s.registry = registry

	s.dispatcher = jsonrpc.NewDispatcher(jsonrpc.NewLoggingInterceptor(), s.collector)
	if err := service.New(bucket, s.ctrl).Register(s.dispatcher); err != nil {
		return nil, err
	}
	s.proxy = proxy.NewManager(conf.Upstream, s.ctrl, proxy.WithObserver(s.collector))

	// paths are forwarded as received, no cleaning or redirects
	s.router = mux.NewRouter().SkipClean(true).UseEncodedPath()
	s.router.Handle(conf.RPCPath, s.dispatcher)
	s.router.PathPrefix("/").Handler(s.proxy)
	return s, nil
}

// Handler returns the front door handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Controller returns the throttle rate controller.
func (s *Server) Controller() *rate.Controller {
	return s.ctrl
}

// Proxy returns the proxy session manager.
func (s *Server) Proxy() *proxy.Manager {
	return s.proxy
}

// Registry returns the metrics registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.conf.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves the front door on ln, and the metrics when configured,
// until ctx is done. In flight requests get the shutdown grace period
// to complete, remaining proxy sessions are aborted afterwards.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	front := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
	}
	servers := []*http.Server{front}
	g.Go(func() error {
		logger.Infof("listening on %s, control at %s, forwarding to %s", ln.Addr(), s.conf.RPCPath, s.proxy.Upstream())
		return serve(front, ln)
	})

	if s.conf.MetricsListen != "" {
		mln, err := net.Listen("tcp", s.conf.MetricsListen)
		if err != nil {
			_ = ln.Close()
			return err
		}
		router := mux.NewRouter()
		router.Handle("/metrics", metrics.Handler(s.registry))
		ms := &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 30 * time.Second,
		}
		servers = append(servers, ms)
		g.Go(func() error {
			logger.Infof("metrics available at %s/metrics", mln.Addr())
			return serve(ms, mln)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown(servers)
		return nil
	})

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) shutdown(servers []*http.Server) {
	logger.Infof("shutting down, waiting up to %v for in flight requests", s.conf.ShutdownGrace)
	ctx, cancel := context.WithTimeout(context.Background(), s.conf.ShutdownGrace)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			if n := s.proxy.AbortAll(); n != 0 {
				logger.Warningf("aborted %d proxy sessions still in flight", n)
			}
			_ = srv.Close()
		}
	}
	logger.Infof("shut down")
}
