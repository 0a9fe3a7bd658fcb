// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package jsonrpc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/juju/loggo/v2"
)

// LoggingInterceptor logs every request before dispatch and its response
// afterwards, failures included. The response is passed through as is.
type LoggingInterceptor struct {
	Logger loggo.Logger
}

// NewLoggingInterceptor returns an interceptor logging to the package
// logger.
func NewLoggingInterceptor() *LoggingInterceptor {
	return &LoggingInterceptor{Logger: logger}
}

func (l *LoggingInterceptor) Intercept(ctx context.Context, req *Request, next Handler) *Response {
	callID := uuid.NewString()
	l.Logger.Infof("[%s] Received %s", callID, marshalForLog(req))

	resp := next(ctx, req)

	if req.IsNotification() {
		l.Logger.Infof("[%s] Responding null (notification, outcome %s)", callID, marshalForLog(resp))
	} else {
		l.Logger.Infof("[%s] Responding %s", callID, marshalForLog(resp))
	}
	return resp
}

func marshalForLog(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "<unencodable: " + err.Error() + ">"
	}
	return string(b)
}
