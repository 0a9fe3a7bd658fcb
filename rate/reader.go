// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import (
	"context"
	"io"
)

type rlReader struct {
	ctx context.Context
	rc  io.ReadCloser
	lim *Limiter
}

// NewReader wraps rc so that reads proceed at no more than the rate
// captured by lim. Closing the reader closes rc and releases lim.
func NewReader(ctx context.Context, lim *Limiter, rc io.ReadCloser) io.ReadCloser {
	return &rlReader{
		ctx: ctx,
		rc:  rc,
		lim: lim,
	}
}

// Read implements io.Reader with rate limiting.
//
// Tokens for the requested size, capped at the burst, are acquired BEFORE
// the read is performed. A short read still consumes the tokens of the
// full request.
func (r *rlReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk := len(p)
	if burst := r.lim.Burst(); chunk > burst {
		chunk = burst
	}

	if err := r.lim.WaitN(r.ctx, chunk); err != nil {
		return 0, err
	}

	return r.rc.Read(p[:chunk])
}

func (r *rlReader) Close() error {
	r.lim.Release()
	return r.rc.Close()
}
