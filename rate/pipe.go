// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import (
	"context"
	"io"
	"net/http"

	"github.com/go-core-stack/storage-proxy/errors"
)

// ErrAborted is returned by Pipe.Copy once the pipe was aborted.
var ErrAborted = errors.New("pipe aborted")

// Pipe copies bytes from a source to a sink at no more than the rate
// captured by its limiter, holding at most one chunk in memory.
type Pipe struct {
	lim    *Limiter
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewPipe creates a pipe paced by lim. Cancelling ctx has the same
// effect as Abort, except that Copy reports the context error.
func NewPipe(ctx context.Context, lim *Limiter) *Pipe {
	pctx, cancel := context.WithCancelCause(ctx)
	return &Pipe{
		lim:    lim,
		ctx:    pctx,
		cancel: cancel,
	}
}

// Abort stops the pipe. A pending wait returns immediately and no
// further byte is written to the sink, including the rest of a chunk
// that was already read. Abort is idempotent.
func (p *Pipe) Abort() {
	p.cancel(ErrAborted)
}

// Done is closed once the pipe is aborted, its context is cancelled or
// Copy has returned.
func (p *Pipe) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Copy moves data from src to dst until EOF, the first error on either
// side, or abort. Tokens are acquired after a chunk is read and before
// it is written so the sink never sees more than the allowed rate. When
// dst is an http.Flusher each chunk is flushed as soon as it is written.
func (p *Pipe) Copy(dst io.Writer, src io.Reader) (int64, error) {
	defer p.cancel(nil)

	buf := make([]byte, p.lim.Burst())
	flusher, _ := dst.(http.Flusher)
	var written int64
	for {
		if p.ctx.Err() != nil {
			return written, context.Cause(p.ctx)
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			if err := p.lim.WaitN(p.ctx, nr); err != nil {
				if p.ctx.Err() != nil {
					return written, context.Cause(p.ctx)
				}
				return written, err
			}
			// aborted while the chunk was in flight, drop it
			if p.ctx.Err() != nil {
				return written, context.Cause(p.ctx)
			}
			nw, werr := dst.Write(buf[:nr])
			if nw < 0 || nw > nr {
				nw = 0
				if werr == nil {
					werr = errors.New("invalid write result")
				}
			}
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
