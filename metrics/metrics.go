// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package metrics exposes proxy and control plane activity to
// prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-core-stack/storage-proxy/jsonrpc"
	"github.com/go-core-stack/storage-proxy/proxy"
	"github.com/go-core-stack/storage-proxy/rate"
)

const metricsNamespace = "storage_proxy"

// Collector is a prometheus.Collector for the proxy sessions, the
// throttle rate and the control methods. It observes proxy sessions and
// intercepts control calls to do so.
type Collector struct {
	sessions      prometheus.Gauge
	sessionsTotal prometheus.Counter
	bytes         *prometheus.CounterVec
	rpcCalls      *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
	throttleRate  prometheus.GaugeFunc
	limiters      prometheus.GaugeFunc
}

// NewCollector returns a new Collector reporting the state of ctrl.
func NewCollector(ctrl *rate.Controller) *Collector {
	return &Collector{
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sessions",
				Help:      "The number of proxy sessions in flight.",
			},
		),
		sessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_total",
				Help:      "The number of proxy sessions opened.",
			},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "bytes_total",
				Help:      "The number of bytes proxied.",
			}, []string{"direction"},
		),
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rpc_calls_total",
				Help:      "The number of control calls handled.",
			}, []string{"method", "outcome"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "rpc_duration_seconds",
				Help:      "The time taken to handle a control call.",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			}, []string{"method"},
		),
		throttleRate: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "throttle_rate_bytes",
				Help:      "The throttle rate applied to new sessions, 0 if unlimited.",
			}, func() float64 { return float64(ctrl.Rate()) },
		),
		limiters: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_limiters",
				Help:      "The number of sessions and uploads holding a rate snapshot.",
			}, func() float64 { return float64(ctrl.Active()) },
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.sessions.Describe(ch)
	c.sessionsTotal.Describe(ch)
	c.bytes.Describe(ch)
	c.rpcCalls.Describe(ch)
	c.rpcDuration.Describe(ch)
	c.throttleRate.Describe(ch)
	c.limiters.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.sessions.Collect(ch)
	c.sessionsTotal.Collect(ch)
	c.bytes.Collect(ch)
	c.rpcCalls.Collect(ch)
	c.rpcDuration.Collect(ch)
	c.throttleRate.Collect(ch)
	c.limiters.Collect(ch)
}

// SessionOpened is part of the proxy.Observer interface.
func (c *Collector) SessionOpened() {
	c.sessions.Inc()
	c.sessionsTotal.Inc()
}

// SessionClosed is part of the proxy.Observer interface.
func (c *Collector) SessionClosed() {
	c.sessions.Dec()
}

// Transferred is part of the proxy.Observer interface.
func (c *Collector) Transferred(dir proxy.Direction, n int64) {
	c.bytes.WithLabelValues(string(dir)).Add(float64(n))
}

// Intercept is part of the jsonrpc.Interceptor interface.
func (c *Collector) Intercept(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Handler) *jsonrpc.Response {
	start := time.Now()
	resp := next(ctx, req)
	outcome := "success"
	if resp != nil && resp.Error != nil {
		outcome = "error"
	}
	c.rpcCalls.WithLabelValues(req.Method, outcome).Inc()
	c.rpcDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	return resp
}

// NewRegistry returns a registry with the Go and process collectors
// along with c.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	r := prometheus.NewRegistry()
	if err := r.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := r.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := r.Register(c); err != nil {
		return nil, err
	}
	return r, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
