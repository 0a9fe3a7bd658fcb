// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-core-stack/storage-proxy/rate"
)

// State of a proxy session.
type State string

const (
	StateOpening   State = "Opening"
	StateStreaming State = "Streaming"
	StateClosing   State = "Closing"
	StateClosed    State = "Closed"
)

// Direction of the data moved by a session.
type Direction string

const (
	// client to upstream
	DirectionRequest Direction = "request"
	// upstream to client
	DirectionResponse Direction = "response"
)

// Session is one proxied request/response exchange. Both directions are
// paced at the rate captured when the session was opened.
type Session struct {
	id      string
	lim     *rate.Limiter
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	reqPipe  *rate.Pipe
	respPipe *rate.Pipe

	mu    sync.Mutex
	state State
}

func newSession(parent context.Context, id string, lim *rate.Limiter) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:       id,
		lim:      lim,
		created:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		reqPipe:  rate.NewPipe(ctx, lim.Split()),
		respPipe: rate.NewPipe(ctx, lim),
		state:    StateOpening,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Rate returns the rate the session was opened with.
func (s *Session) Rate() int64 {
	return s.lim.Rate()
}

// State returns the current state of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Abort tears down both legs of the session. A pending throttled wait
// returns immediately and the upstream round trip is cancelled.
func (s *Session) Abort() {
	s.reqPipe.Abort()
	s.respPipe.Abort()
	s.cancel()
}

// hop-by-hop headers, these belong to a single connection
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// outbound builds the upstream request, the body, if any, is fed through
// the request pipe by the returned writer.
func (s *Session) outbound(r *http.Request, upstream string) (*http.Request, *io.PipeWriter) {
	out := r.Clone(s.ctx)
	out.RequestURI = ""
	out.URL.Scheme = "http"
	out.URL.Host = upstream
	out.Host = r.Host
	out.Close = false
	removeHopHeaders(out.Header)
	if _, ok := out.Header["User-Agent"]; !ok {
		// keep the transport from adding its own
		out.Header.Set("User-Agent", "")
	}

	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		out.Body = http.NoBody
		out.ContentLength = 0
		return out, nil
	}
	pr, pw := io.Pipe()
	out.Body = pr
	out.ContentLength = r.ContentLength
	out.GetBody = nil
	return out, pw
}
