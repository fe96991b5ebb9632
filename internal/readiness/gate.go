// Package readiness detects a literal readiness marker in a child process's
// output stream and turns it into a one-shot notification.
package readiness

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/menace-cli/menace/internal/errors"
)

// DefaultSentinel is the marker printed by the backend once it is serving.
const DefaultSentinel = "FLASK SERVER READY"

// Gate scans output chunks for a sentinel substring. It fires exactly once:
// after the first match it stops scanning, and later occurrences are ignored.
//
// A match may sit anywhere inside a chunk, including in the middle of a
// longer line, and may straddle two consecutive chunks. Gate is safe for
// concurrent use and implements io.Writer so it can sit behind an io.Copy or
// io.MultiWriter.
type Gate struct {
	sentinel []byte

	mu      sync.Mutex
	tail    []byte
	fired   bool
	closed  bool
	firedAt time.Time
	onReady func()

	ready chan struct{}
	ended chan struct{}
}

// New creates a Gate for the given sentinel.
func New(sentinel string) *Gate {
	return &Gate{
		sentinel: []byte(sentinel),
		ready:    make(chan struct{}),
		ended:    make(chan struct{}),
	}
}

// Sentinel returns the marker this gate waits for.
func (g *Gate) Sentinel() string {
	return string(g.sentinel)
}

// OnReady registers a callback invoked once, synchronously, from the
// Observe call that detects the sentinel. It must be set before output is
// observed.
func (g *Gate) OnReady(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReady = fn
}

// Observe scans one chunk of output. It returns true only for the call that
// fired the gate.
func (g *Gate) Observe(chunk []byte) bool {
	g.mu.Lock()
	if g.fired || g.closed {
		g.mu.Unlock()
		return false
	}

	window := make([]byte, 0, len(g.tail)+len(chunk))
	window = append(window, g.tail...)
	window = append(window, chunk...)

	if !bytes.Contains(window, g.sentinel) {
		keep := len(g.sentinel) - 1
		if keep > len(window) {
			keep = len(window)
		}
		if keep < 0 {
			keep = 0
		}
		g.tail = append(g.tail[:0], window[len(window)-keep:]...)
		g.mu.Unlock()
		return false
	}

	g.fired = true
	g.firedAt = time.Now()
	g.tail = nil
	cb := g.onReady
	close(g.ready)
	g.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}

// Write implements io.Writer. It never fails.
func (g *Gate) Write(p []byte) (int, error) {
	g.Observe(p)
	return len(p), nil
}

// StreamClosed marks the end of the observed stream. A gate that has not
// fired by then never will.
func (g *Gate) StreamClosed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	g.tail = nil
	close(g.ended)
}

// Ready is closed when the sentinel has been observed.
func (g *Gate) Ready() <-chan struct{} {
	return g.ready
}

// Observed reports whether the gate has fired.
func (g *Gate) Observed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// FiredAt returns when the gate fired, or the zero time.
func (g *Gate) FiredAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firedAt
}

// Wait blocks until the gate fires, the stream ends, the timeout expires or
// ctx is done. A timeout of zero waits without bound.
//
// It returns nil once ready, errors.ErrBackendNeverReady if the stream ended
// first, a *errors.TimeoutError wrapping ErrBackendNeverReady on timeout, and
// ctx.Err() on cancellation.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-g.ready:
		return nil
	case <-g.ended:
		// A chunk carrying the sentinel may race with end of stream.
		if g.Observed() {
			return nil
		}
		return errors.ErrBackendNeverReady
	case <-expired:
		return errors.NewTimeoutError("waiting for backend readiness", timeout).WithCause(errors.ErrBackendNeverReady)
	case <-ctx.Done():
		return ctx.Err()
	}
}
