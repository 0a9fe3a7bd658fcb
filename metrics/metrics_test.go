// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/go-core-stack/storage-proxy/jsonrpc"
	"github.com/go-core-stack/storage-proxy/proxy"
	"github.com/go-core-stack/storage-proxy/rate"
)

func TestSessionMetrics(t *testing.T) {
	c := NewCollector(rate.NewController(0))
	var o proxy.Observer = c

	o.SessionOpened()
	o.SessionOpened()
	o.SessionClosed()
	o.Transferred(proxy.DirectionRequest, 10)
	o.Transferred(proxy.DirectionResponse, 20)
	o.Transferred(proxy.DirectionResponse, 5)

	if got := testutil.ToFloat64(c.sessions); got != 1 {
		t.Fatalf("got %v sessions want 1", got)
	}
	if got := testutil.ToFloat64(c.sessionsTotal); got != 2 {
		t.Fatalf("got %v total sessions want 2", got)
	}
	if got := testutil.ToFloat64(c.bytes.WithLabelValues("request")); got != 10 {
		t.Fatalf("got %v request bytes want 10", got)
	}
	if got := testutil.ToFloat64(c.bytes.WithLabelValues("response")); got != 25 {
		t.Fatalf("got %v response bytes want 25", got)
	}
}

func TestRateGauges(t *testing.T) {
	ctrl := rate.NewController(1024)
	c := NewCollector(ctrl)

	if got := testutil.ToFloat64(c.throttleRate); got != 1024 {
		t.Fatalf("got rate %v want 1024", got)
	}
	lim, err := ctrl.NewLimiter("s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctrl.SetRate(2048)
	if got := testutil.ToFloat64(c.throttleRate); got != 2048 {
		t.Fatalf("got rate %v want 2048", got)
	}
	if got := testutil.ToFloat64(c.limiters); got != 1 {
		t.Fatalf("got %v limiters want 1", got)
	}
	lim.Release()
	if got := testutil.ToFloat64(c.limiters); got != 0 {
		t.Fatalf("got %v limiters want 0", got)
	}
}

func TestInterceptor(t *testing.T) {
	c := NewCollector(rate.NewController(0))
	d := jsonrpc.NewDispatcher(c)
	if err := d.Register("ok", func(ctx context.Context, params json.RawMessage) (any, error) {
		return true, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, method := range []string{"ok", "ok", "unknown"} {
		d.Dispatch(context.Background(), &jsonrpc.Request{
			JSONRPC: jsonrpc.Version,
			Method:  method,
			ID:      json.RawMessage("1"),
		})
	}
	// notifications are counted too
	d.Dispatch(context.Background(), &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "ok"})

	if got := testutil.ToFloat64(c.rpcCalls.WithLabelValues("ok", "success")); got != 3 {
		t.Fatalf("got %v successful calls want 3", got)
	}
	if got := testutil.ToFloat64(c.rpcCalls.WithLabelValues("unknown", "error")); got != 1 {
		t.Fatalf("got %v failed calls want 1", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector(rate.NewController(512))
	r, err := NewRegistry(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewRegistry(c); err != nil {
		t.Fatalf("a fresh registry must accept the collector: %v", err)
	}
	c.SessionOpened()

	srv := httptest.NewServer(Handler(r))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"storage_proxy_sessions 1",
		"storage_proxy_throttle_rate_bytes 512",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output is missing %q", want)
		}
	}
}
