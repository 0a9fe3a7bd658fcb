// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// recordingWriter keeps the time and size of every write it receives.
type recordingWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes []timedWrite
	notify chan struct{}
}

type timedWrite struct {
	at time.Time
	n  int
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{notify: make(chan struct{}, 1024)}
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, timedWrite{at: time.Now(), n: len(p)})
	w.buf.Write(p)
	select {
	case w.notify <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (w *recordingWriter) snapshot() []timedWrite {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]timedWrite(nil), w.writes...)
}

func (w *recordingWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}

type failingWriter struct {
	err error
}

func (w failingWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

type failingReader struct {
	err error
}

func (r failingReader) Read(p []byte) (int, error) {
	return 0, r.err
}

func TestPipeDrainTimeRespectsRate(t *testing.T) {
	const r = 100000
	payload := bytes.Repeat([]byte("x"), 150000)

	p := NewPipe(context.Background(), newLimiter(r))
	dst := newRecordingWriter()

	start := time.Now()
	n, err := p.Copy(dst, bytes.NewReader(payload))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected copy error: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("copied bytes mismatch: got %d want %d", n, len(payload))
	}
	if !bytes.Equal(dst.Bytes(), payload) {
		t.Fatalf("sink content differs from source")
	}

	// N/R = 1.5s, allow a little scheduling slack
	if elapsed < 1400*time.Millisecond {
		t.Fatalf("pipe drained too fast: took %v, expected at least %v", elapsed, 1500*time.Millisecond)
	}
}

// TestPipeSlidingWindow verifies that no one second window carries more
// than the rate, give or take a single chunk for write granularity.
func TestPipeSlidingWindow(t *testing.T) {
	const r = 100000
	lim := newLimiter(r)
	payload := bytes.Repeat([]byte("y"), 200000)

	p := NewPipe(context.Background(), lim)
	dst := newRecordingWriter()
	if _, err := p.Copy(dst, bytes.NewReader(payload)); err != nil {
		t.Fatalf("unexpected copy error: %v", err)
	}

	writes := dst.snapshot()
	for i := range writes {
		total := 0
		for j := i; j < len(writes); j++ {
			if writes[j].at.Sub(writes[i].at) >= time.Second {
				break
			}
			total += writes[j].n
		}
		if total > r+lim.Burst() {
			t.Fatalf("window starting at write %d carried %d bytes, limit %d", i, total, r+lim.Burst())
		}
	}
}

func TestPipeUnlimited(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), 4*DefaultChunkSize+17)

	p := NewPipe(context.Background(), newLimiter(0))
	dst := newRecordingWriter()

	start := time.Now()
	n, err := p.Copy(dst, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected copy error: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("copied bytes mismatch: got %d want %d", n, len(payload))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("unlimited pipe took too long: %v", elapsed)
	}
	for _, w := range dst.snapshot() {
		if w.n > DefaultChunkSize {
			t.Fatalf("write of %d bytes exceeds chunk size %d", w.n, DefaultChunkSize)
		}
	}
}

func TestPipeAbortStopsWrites(t *testing.T) {
	const r = 4000
	payload := bytes.Repeat([]byte("a"), 10*r)

	p := NewPipe(context.Background(), newLimiter(r))
	dst := newRecordingWriter()

	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.Copy(dst, bytes.NewReader(payload))
		done <- result{n, err}
	}()

	select {
	case <-dst.notify:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the first chunk")
	}

	p.Abort()
	p.Abort()

	var res result
	select {
	case res = <-done:
	case <-time.After(time.Second):
		t.Fatalf("copy did not return after abort")
	}
	if !errors.Is(res.err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", res.err)
	}
	if res.n >= int64(len(payload)) {
		t.Fatalf("aborted pipe copied everything: %d bytes", res.n)
	}

	written := len(dst.snapshot())
	time.Sleep(500 * time.Millisecond)
	if got := len(dst.snapshot()); got != written {
		t.Fatalf("sink received writes after abort: got %d want %d", got, written)
	}
	select {
	case <-p.Done():
	default:
		t.Fatalf("expected pipe to report done after abort")
	}
}

func TestPipeAbortDuringWait(t *testing.T) {
	// one chunk at 100 B/s waits a whole second for its tokens
	p := NewPipe(context.Background(), newLimiter(100))
	dst := newRecordingWriter()

	time.AfterFunc(50*time.Millisecond, p.Abort)

	start := time.Now()
	n, err := p.Copy(dst, bytes.NewReader(bytes.Repeat([]byte("b"), 100)))
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing written, got %d bytes", n)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("abort did not interrupt the wait, took %v", elapsed)
	}
	if got := len(dst.snapshot()); got != 0 {
		t.Fatalf("expected no writes, got %d", got)
	}
}

func TestPipeContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipe(ctx, newLimiter(100))

	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := p.Copy(io.Discard, bytes.NewReader(bytes.Repeat([]byte("c"), 100)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPipeErrorsAreFatal(t *testing.T) {
	writeErr := errors.New("sink broken")
	readErr := errors.New("source broken")

	tests := []struct {
		name string
		dst  io.Writer
		src  io.Reader
		want error
	}{
		{"write error", failingWriter{writeErr}, bytes.NewReader([]byte("data")), writeErr},
		{"read error", io.Discard, failingReader{readErr}, readErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipe(context.Background(), newLimiter(0))
			_, err := p.Copy(tt.dst, tt.src)
			if !errors.Is(err, tt.want) {
				t.Fatalf("unexpected error: got %v want %v", err, tt.want)
			}
		})
	}
}
