// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/go-core-stack/storage-proxy/errors"
)

// Version is the only protocol version accepted and emitted.
const Version = "2.0"

// standard and server defined error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// generic failure raised by a method
	CodeServerError = -32000

	// the addressed object doesn't exist
	CodeNotFound = -32001

	// stored value didn't match the expected one
	CodeMismatch = -32002
)

// Request is a decoded JSON-RPC request envelope. An absent ID makes
// the request a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification returns true if no response must be sent back.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Error is the error member of a response envelope.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response carries either a result or an error, never both.
type Response struct {
	ID     json.RawMessage
	Result json.RawMessage
	Error  *Error
}

type wireResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
	ID      json.RawMessage  `json:"id"`
}

// MarshalJSON emits "result" (null when empty) for successes and only
// "error" for failures.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{
		JSONRPC: Version,
		ID:      r.ID,
	}
	if w.ID == nil {
		w.ID = json.RawMessage("null")
	}
	if r.Error != nil {
		w.Error = r.Error
	} else {
		result := r.Result
		if result == nil {
			result = json.RawMessage("null")
		}
		w.Result = &result
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a response envelope, used by clients and tests.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.JSONRPC != Version {
		return errors.Wrapf(errors.InvalidArgument, "unexpected jsonrpc version %q", w.JSONRPC)
	}
	r.ID = w.ID
	r.Error = w.Error
	r.Result = nil
	if w.Result != nil {
		r.Result = *w.Result
	}
	return nil
}

// NewResult builds a success response for the given id.
func NewResult(id json.RawMessage, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewError builds an error response for the given id.
func NewError(id json.RawMessage, code int, msg string) *Response {
	return &Response{
		ID: id,
		Error: &Error{
			Code:    code,
			Message: msg,
		},
	}
}

// ErrorFromErr converts a method failure into an error member, mapping
// recognizable error codes onto JSON-RPC codes.
func ErrorFromErr(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := CodeServerError
	switch errors.GetErrCode(err) {
	case errors.InvalidArgument:
		code = CodeInvalidParams
	case errors.NotFound:
		code = CodeNotFound
	case errors.Mismatch:
		code = CodeMismatch
	}
	return &Error{
		Code:    code,
		Message: err.Error(),
	}
}
