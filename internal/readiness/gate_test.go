package readiness

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menace-cli/menace/internal/errors"
)

func TestGate_FiresOnExactChunk(t *testing.T) {
	g := New(DefaultSentinel)

	if g.Observe([]byte("starting...\n")) {
		t.Fatal("gate fired before sentinel")
	}
	if !g.Observe([]byte("FLASK SERVER READY\n")) {
		t.Fatal("gate did not fire on sentinel chunk")
	}
	if !g.Observed() {
		t.Error("Observed() = false after firing")
	}
	if g.FiredAt().IsZero() {
		t.Error("FiredAt() should be set after firing")
	}
	select {
	case <-g.Ready():
	default:
		t.Error("Ready() channel not closed")
	}
}

func TestGate_EmbeddedInLongerLine(t *testing.T) {
	g := New(DefaultSentinel)
	g.Observe([]byte(" * Serving... FLASK SERVER READY on port 5974 ...\n"))
	if !g.Observed() {
		t.Error("substring match inside a longer line should fire")
	}
}

func TestGate_SplitAcrossChunks(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{"two halves", []string{"...FLASK SER", "VER READY..."}},
		{"byte at a time", strings.Split("log FLASK SERVER READY", "")},
		{"tiny leading chunk", []string{"F", "LASK SERVER READY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(DefaultSentinel)
			for _, c := range tt.chunks {
				g.Observe([]byte(c))
			}
			if !g.Observed() {
				t.Errorf("gate did not fire for chunks %q", tt.chunks)
			}
		})
	}
}

func TestGate_NoFalsePositive(t *testing.T) {
	g := New(DefaultSentinel)
	for _, c := range []string{"FLASK SERVER", " NOT ", "READY", "FLASK  SERVER READY", "flask server ready"} {
		g.Observe([]byte(c))
	}
	if g.Observed() {
		t.Error("gate fired without an exact sentinel match")
	}
}

func TestGate_FiresExactlyOnce(t *testing.T) {
	g := New(DefaultSentinel)
	var calls atomic.Int32
	g.OnReady(func() { calls.Add(1) })

	chunks := []string{
		"FLASK SERVER READY FLASK SERVER READY\n",
		"FLASK SERVER READY\n",
		"FLASK SER", "VER READY\n",
	}
	fired := 0
	for _, c := range chunks {
		if g.Observe([]byte(c)) {
			fired++
		}
	}

	if fired != 1 {
		t.Errorf("Observe reported firing %d times, want 1", fired)
	}
	if calls.Load() != 1 {
		t.Errorf("callback invoked %d times, want 1", calls.Load())
	}
}

func TestGate_ConcurrentObserveFiresOnce(t *testing.T) {
	g := New(DefaultSentinel)
	var calls atomic.Int32
	g.OnReady(func() { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Observe([]byte("x FLASK SERVER READY x"))
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("callback invoked %d times, want 1", calls.Load())
	}
}

func TestGate_WriterFacade(t *testing.T) {
	g := New(DefaultSentinel)
	n, err := io.Copy(g, strings.NewReader(strings.Repeat("noise\n", 1000)+"FLASK SERVER READY\n"))
	if err != nil {
		t.Fatalf("io.Copy() error = %v", err)
	}
	if n == 0 {
		t.Error("io.Copy() copied nothing")
	}
	if !g.Observed() {
		t.Error("gate should fire through io.Writer")
	}
}

func TestGate_Wait(t *testing.T) {
	t.Run("returns nil when ready", func(t *testing.T) {
		g := New(DefaultSentinel)
		go func() {
			time.Sleep(10 * time.Millisecond)
			g.Observe([]byte("FLASK SERVER READY"))
		}()
		if err := g.Wait(context.Background(), time.Second); err != nil {
			t.Errorf("Wait() error = %v, want nil", err)
		}
	})

	t.Run("stream ends before sentinel", func(t *testing.T) {
		g := New(DefaultSentinel)
		g.Observe([]byte("starting...\n"))
		g.StreamClosed()
		err := g.Wait(context.Background(), time.Second)
		if !errors.Is(err, errors.ErrBackendNeverReady) {
			t.Errorf("Wait() error = %v, want ErrBackendNeverReady", err)
		}
		if g.Observe([]byte("FLASK SERVER READY")) {
			t.Error("gate must not fire after stream closed")
		}
	})

	t.Run("ready wins over later close", func(t *testing.T) {
		g := New(DefaultSentinel)
		g.Observe([]byte("FLASK SERVER READY"))
		g.StreamClosed()
		if err := g.Wait(context.Background(), 0); err != nil {
			t.Errorf("Wait() error = %v, want nil", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		g := New(DefaultSentinel)
		err := g.Wait(context.Background(), 20*time.Millisecond)
		if !errors.Is(err, errors.ErrTimeout) {
			t.Errorf("Wait() error = %v, want ErrTimeout", err)
		}
		if !errors.Is(err, errors.ErrBackendNeverReady) {
			t.Errorf("Wait() error = %v, want ErrBackendNeverReady", err)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		g := New(DefaultSentinel)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := g.Wait(ctx, 0); err != context.Canceled {
			t.Errorf("Wait() error = %v, want context.Canceled", err)
		}
	})
}

func TestGate_StreamClosedIdempotent(t *testing.T) {
	g := New(DefaultSentinel)
	g.StreamClosed()
	g.StreamClosed()
	if err := g.Wait(context.Background(), 0); !errors.Is(err, errors.ErrBackendNeverReady) {
		t.Errorf("Wait() error = %v, want ErrBackendNeverReady", err)
	}
}

func ExampleGate() {
	g := New(DefaultSentinel)
	g.OnReady(func() { fmt.Println("backend ready") })
	g.Observe([]byte("booting\n"))
	g.Observe([]byte("FLASK SERVER READY\n"))
	g.Observe([]byte("FLASK SERVER READY\n"))
	// Output: backend ready
}
