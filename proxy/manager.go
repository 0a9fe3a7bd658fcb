// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy forwards traffic to the storage emulator, pacing both
// directions of every exchange at the throttle rate in effect when the
// exchange started.
//
// A session never retries. Any failure tears down both legs: a client
// that goes away cancels the upstream round trip and an upstream failure
// resets the client connection.
package proxy

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/loggo/v2"

	"github.com/go-core-stack/storage-proxy/errors"
	"github.com/go-core-stack/storage-proxy/rate"
)

var logger = loggo.GetLogger("storageproxy.proxy")

// Observer is notified of session lifecycle and traffic.
type Observer interface {
	SessionOpened()
	SessionClosed()
	Transferred(dir Direction, n int64)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                     {}
func (nopObserver) SessionClosed()                     {}
func (nopObserver) Transferred(dir Direction, n int64) {}

// Option configures a Manager.
type Option func(*Manager)

// WithTransport sets the round tripper used to reach the upstream.
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Manager) {
		m.transport = rt
	}
}

// WithObserver registers the observer of session events.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// Manager opens a Session for every request it serves.
type Manager struct {
	upstream  string
	ctrl      *rate.Controller
	transport http.RoundTripper
	observer  Observer

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTransport returns the transport used by default to reach the
// upstream. Compression is left to the two ends so bodies pass through
// untouched.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}
}

// NewManager creates a manager forwarding to the upstream host:port.
func NewManager(upstream string, ctrl *rate.Controller, opts ...Option) *Manager {
	m := &Manager{
		upstream: upstream,
		ctrl:     ctrl,
		observer: nopObserver{},
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		m.transport = NewTransport()
	}
	return m
}

// Upstream returns the host:port traffic is forwarded to.
func (m *Manager) Upstream() string {
	return m.upstream
}

// Sessions returns the number of live sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AbortAll aborts every live session and returns how many there were.
func (m *Manager) AbortAll() int {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	for _, s := range list {
		s.Abort()
	}
	return len(list)
}

func (m *Manager) open(r *http.Request) (*Session, error) {
	id := uuid.New().String()
	lim, err := m.ctrl.NewLimiter(id)
	if err != nil {
		return nil, err
	}
	s := newSession(r.Context(), id, lim)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.observer.SessionOpened()
	logger.Debugf("[%s] opened %s %s at %d bytes/s", id, r.Method, r.URL.RequestURI(), lim.Rate())
	return s, nil
}

func (m *Manager) close(s *Session) {
	s.setState(StateClosing)
	s.Abort()
	s.lim.Release()
	s.setState(StateClosed)
	m.observer.SessionClosed()

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	logger.Debugf("[%s] closed after %v", s.id, time.Since(s.created))
}

// ServeHTTP forwards the request to the upstream and streams the
// response back. On any failure the client connection is torn down
// without a structured error.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, err := m.open(r)
	if err != nil {
		logger.Errorf("failed to open session for %s %s: %s", r.Method, r.URL.RequestURI(), err)
		panic(http.ErrAbortHandler)
	}
	defer m.close(s)

	if err := m.serve(s, w, r); err != nil {
		if r.Context().Err() != nil {
			logger.Debugf("[%s] client went away: %s", s.id, err)
		} else {
			logger.Warningf("[%s] aborted: %s", s.id, err)
		}
		s.Abort()
		panic(http.ErrAbortHandler)
	}
}

func (m *Manager) serve(s *Session, w http.ResponseWriter, r *http.Request) error {
	out, pw := s.outbound(r, m.upstream)
	s.setState(StateStreaming)

	if pw != nil {
		go func() {
			n, err := s.reqPipe.Copy(pw, r.Body)
			m.observer.Transferred(DirectionRequest, n)
			if err != nil && !errors.Is(err, io.ErrClosedPipe) {
				logger.Debugf("[%s] request leg ended after %d bytes: %s", s.id, n, err)
				// the upstream must not see a truncated body as complete
				s.respPipe.Abort()
				s.cancel()
			}
			_ = pw.CloseWithError(err)
		}()
	}

	resp, err := m.transport.RoundTrip(out)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = append([]string(nil), vv...)
	}
	removeHopHeaders(h)
	w.WriteHeader(resp.StatusCode)

	n, err := s.respPipe.Copy(w, resp.Body)
	m.observer.Transferred(DirectionResponse, n)
	if err != nil {
		return err
	}
	logger.Tracef("[%s] %d %s, %d bytes", s.id, resp.StatusCode, r.URL.Path, n)
	return nil
}
