// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-core-stack/storage-proxy/errors"
)

// MaxBodySize bounds the size of a request body accepted by the handler.
const MaxBodySize = 10 << 20

// ServeHTTP accepts single and batch requests posted as JSON. Responses
// are written with status 200, a request producing no response (only
// notifications) is answered with 204 and an empty body.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		logger.Debugf("failed reading request body: %s", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, NewError(nil, CodeInvalidRequest, "request too large"))
			return
		}
		writeJSON(w, NewError(nil, CodeParseError, "Parse error"))
		return
	}

	payload, ok := d.receive(r, body)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, payload)
}

// receive decodes the body and dispatches the contained request(s), ok
// is false if nothing has to be sent back.
func (d *Dispatcher) receive(r *http.Request, body []byte) (any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return NewError(nil, CodeParseError, "Parse error"), true
	}

	if trimmed[0] != '[' {
		req, errResp := decodeRequest(trimmed)
		if errResp != nil {
			return errResp, true
		}
		resp := d.Dispatch(r.Context(), req)
		if resp == nil {
			return nil, false
		}
		return resp, true
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return NewError(nil, CodeParseError, "Parse error"), true
	}
	if len(batch) == 0 {
		return NewError(nil, CodeInvalidRequest, "Invalid Request"), true
	}

	responses := make([]*Response, 0, len(batch))
	for _, raw := range batch {
		req, errResp := decodeRequest(raw)
		if errResp != nil {
			responses = append(responses, errResp)
			continue
		}
		if resp := d.Dispatch(r.Context(), req); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil, false
	}
	return responses, true
}

func decodeRequest(raw []byte) (*Request, *Response) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, NewError(nil, CodeInvalidRequest, "Invalid Request")
	}
	req := &Request{}
	if err := json.Unmarshal(raw, req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, NewError(nil, CodeParseError, "Parse error")
		}
		return nil, NewError(nil, CodeInvalidRequest, "Invalid Request")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("failed encoding response: %s", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
