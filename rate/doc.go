// Package rate provides the throttling primitives used by the proxy and
// the upload path.
//
// # Overview
//
// A Controller holds the process wide throttle rate in bytes per second.
// The rate can be changed at any point, but a change only affects limiters
// created afterwards: every Limiter captures the rate at construction time
// and keeps it for its whole life.
//
// # Components
//
//   - Controller: shared, concurrently readable rate plus the registry of
//     live limiters
//   - Limiter: per session token bucket built on golang.org/x/time/rate
//   - Pipe: abortable chunked copier paced by a Limiter
//   - Reader: io.ReadCloser adapter paced by a Limiter
//
// # Pacing
//
// The bucket of a new Limiter starts empty and its burst never exceeds one
// chunk, so draining N bytes at rate R takes at least N/R and a steady
// transfer never delivers more than R bytes in any one second window.
//
// A rate of zero means unlimited. Such a Limiter has no bucket and WaitN
// only observes context cancellation.
//
// # Example Usage
//
//	ctrl := rate.NewController(64 * 1024)
//
//	lim, _ := ctrl.NewLimiter(sessionID)
//	defer lim.Release()
//
//	p := rate.NewPipe(ctx, lim)
//	n, err := p.Copy(dst, src)
package rate
