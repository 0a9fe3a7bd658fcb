// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/juju/loggo/v2"

	"github.com/go-core-stack/storage-proxy/errors"
)

var logger = loggo.GetLogger("storageproxy.jsonrpc")

// Method is a callable bound to a name. The returned value is encoded
// as the result member, a returned error as the error member.
type Method func(ctx context.Context, params json.RawMessage) (any, error)

// Handler produces the response for a single request, it always returns
// a response, even for notifications. The dispatcher drops it later.
type Handler func(ctx context.Context, req *Request) *Response

// Interceptor observes or decorates the handling of every request. It
// is expected to call next exactly once and return its response.
type Interceptor interface {
	Intercept(ctx context.Context, req *Request, next Handler) *Response
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(ctx context.Context, req *Request, next Handler) *Response

func (f InterceptorFunc) Intercept(ctx context.Context, req *Request, next Handler) *Response {
	return f(ctx, req, next)
}

// call states, logged at trace level
type callState string

const (
	stateReceived        callState = "Received"
	stateRouted          callState = "Routed"
	stateMethodRunning   callState = "MethodRunning"
	stateMethodNotFound  callState = "MethodNotFound"
	stateResponseEncoded callState = "ResponseEncoded"
)

// Dispatcher routes requests to registered methods. Interceptors are
// applied in the order they were added, the first one being outermost.
type Dispatcher struct {
	mu           sync.RWMutex
	methods      map[string]Method
	interceptors []Interceptor
}

// NewDispatcher creates a dispatcher applying the given interceptors.
func NewDispatcher(interceptors ...Interceptor) *Dispatcher {
	return &Dispatcher{
		methods:      make(map[string]Method),
		interceptors: interceptors,
	}
}

// Register binds a method to a name.
func (d *Dispatcher) Register(name string, m Method) error {
	if name == "" {
		return errors.Wrap(errors.InvalidArgument, "method name must not be empty")
	}
	if m == nil {
		return errors.Wrapf(errors.InvalidArgument, "method %q has no implementation", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.methods[name]; ok {
		return errors.Wrapf(errors.AlreadyExists, "method %q, already registered", name)
	}
	d.methods[name] = m
	return nil
}

// Methods returns the number of registered methods.
func (d *Dispatcher) Methods() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.methods)
}

func (d *Dispatcher) lookup(name string) (Method, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.methods[name]
	return m, ok
}

// Dispatch handles one request and returns its response, nil when the
// request is a notification.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	h := Handler(d.invoke)
	for i := len(d.interceptors) - 1; i >= 0; i-- {
		h = wrap(d.interceptors[i], h)
	}
	resp := h(ctx, req)
	if req.IsNotification() {
		if resp != nil && resp.Error != nil {
			logger.Warningf("notification %q failed: %s", req.Method, resp.Error.Message)
		}
		return nil
	}
	return resp
}

func wrap(i Interceptor, next Handler) Handler {
	return func(ctx context.Context, req *Request) *Response {
		return i.Intercept(ctx, req, next)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, req *Request) (resp *Response) {
	logger.Tracef("%s %q", stateReceived, req.Method)
	defer func() {
		logger.Tracef("%s %q", stateResponseEncoded, req.Method)
	}()

	if req.JSONRPC != Version || req.Method == "" {
		return NewError(req.ID, CodeInvalidRequest, "Invalid Request")
	}
	if !validParams(req.Params) {
		return NewError(req.ID, CodeInvalidParams, "params must be an object or an array")
	}

	m, ok := d.lookup(req.Method)
	logger.Tracef("%s %q", stateRouted, req.Method)
	if !ok {
		logger.Tracef("%s %q", stateMethodNotFound, req.Method)
		return NewError(req.ID, CodeMethodNotFound, "Method not found")
	}

	logger.Tracef("%s %q", stateMethodRunning, req.Method)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("method %q panicked: %v", req.Method, r)
			resp = NewError(req.ID, CodeInternalError, fmt.Sprintf("%v", r))
		}
	}()

	result, err := m(ctx, req.Params)
	if err != nil {
		return &Response{ID: req.ID, Error: ErrorFromErr(err)}
	}
	resp, err = NewResult(req.ID, result)
	if err != nil {
		return NewError(req.ID, CodeInternalError, err.Error())
	}
	return resp
}

func validParams(params json.RawMessage) bool {
	p := bytes.TrimSpace(params)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return true
	}
	return p[0] == '{' || p[0] == '['
}

// DecodeParams decodes the params member into v, reporting malformed
// params as an invalid argument.
func DecodeParams(params json.RawMessage, v any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		return errors.Wrap(errors.InvalidArgument, "missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return errors.Wrapf(errors.InvalidArgument, "invalid params: %s", err)
	}
	return nil
}
