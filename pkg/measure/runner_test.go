package measure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.temporal.io/sdk/log"
)

// fakeTarget replays console messages when the page is navigated
type fakeTarget struct {
	messages    []string
	navigateErr error
	closeErr    error
	async       bool

	mu       sync.Mutex
	fn       func(string) bool
	stopped  bool
	width    int
	height   int
	url      string
	closes   atomic.Int32
	received []string
}

func (f *fakeTarget) SetViewport(width, height int) error {
	f.width, f.height = width, height
	return nil
}

func (f *fakeTarget) Navigate(url string) error {
	f.url = url
	if f.navigateErr != nil {
		return f.navigateErr
	}
	if f.async {
		go f.replay()
		return nil
	}
	f.replay()
	return nil
}

func (f *fakeTarget) replay() {
	for _, msg := range f.messages {
		f.mu.Lock()
		if f.stopped || f.fn == nil {
			f.mu.Unlock()
			return
		}
		fn := f.fn
		f.received = append(f.received, msg)
		f.mu.Unlock()

		if fn(msg) {
			f.cancel()
			return
		}
	}
}

func (f *fakeTarget) Subscribe(ctx context.Context, fn func(string) bool) func() {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.cancel()
	}()
	return f.cancel
}

func (f *fakeTarget) cancel() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTarget) Close() error {
	f.closes.Add(1)
	return f.closeErr
}

func discardLogger() log.Logger {
	return log.NewStructuredLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestRunner(t *testing.T, timeout time.Duration) *Runner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout = timeout
	r, err := NewRunner(cfg, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func TestObserve(t *testing.T) {
	tests := []struct {
		name      string
		messages  []string
		async     bool
		wantRaw   string
		wantValue float64
		wantFound bool
	}{
		{
			name:      "Fractional frame time",
			messages:  []string{"Average Frame Time: 16.67ms"},
			wantRaw:   "16.67",
			wantValue: 16.67,
			wantFound: true,
		},
		{
			name:      "Zero frame time",
			messages:  []string{"Average Frame Time: 0ms"},
			wantRaw:   "0",
			wantFound: true,
		},
		{
			name:      "Logged after load",
			messages:  []string{"Starting measurement", "Average Frame Time: 12.3ms"},
			async:     true,
			wantRaw:   "12.3",
			wantValue: 12.3,
			wantFound: true,
		},
		{
			name:      "Only first match counts",
			messages:  []string{"Average Frame Time: 8.5ms", "Average Frame Time: 99ms"},
			wantRaw:   "8.5",
			wantValue: 8.5,
			wantFound: true,
		},
		{
			name:     "Malformed value",
			messages: []string{"Average Frame Time: abcms"},
		},
		{
			name: "Silent page",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &fakeTarget{messages: tt.messages, async: tt.async}
			r := newTestRunner(t, 100*time.Millisecond)

			got, err := r.Observe(context.Background(), target)
			if err != nil {
				t.Fatalf("Observe() error = %v", err)
			}

			if got.Found != tt.wantFound {
				t.Errorf("Found = %v, want %v", got.Found, tt.wantFound)
			}
			if got.Raw != tt.wantRaw {
				t.Errorf("Raw = %q, want %q", got.Raw, tt.wantRaw)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Value = %v, want %v", got.Value, tt.wantValue)
			}
			if n := target.closes.Load(); n != 1 {
				t.Errorf("Close called %d times, want 1", n)
			}
			if target.width != DefaultWidth || target.height != DefaultHeight {
				t.Errorf("viewport = %dx%d, want %dx%d", target.width, target.height, DefaultWidth, DefaultHeight)
			}
			if target.url != DefaultURL {
				t.Errorf("url = %q, want %q", target.url, DefaultURL)
			}
		})
	}
}

func TestObserveStopsAfterFirstMatch(t *testing.T) {
	target := &fakeTarget{messages: []string{
		"Average Frame Time: 1ms",
		"Average Frame Time: 2ms",
		"Average Frame Time: 3ms",
	}}
	r := newTestRunner(t, time.Second)

	if _, err := r.Observe(context.Background(), target); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.received) != 1 {
		t.Errorf("delivered %d messages, want 1", len(target.received))
	}
}

func TestObserveReturnsBeforeTimeout(t *testing.T) {
	target := &fakeTarget{messages: []string{"Average Frame Time: 12.3ms"}, async: true}
	r := newTestRunner(t, 30*time.Second)

	start := time.Now()
	got, err := r.Observe(context.Background(), target)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if got.Raw != "12.3" {
		t.Errorf("Raw = %q, want %q", got.Raw, "12.3")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Observe took %v, want well under the timeout", elapsed)
	}
}

func TestObserveTimeout(t *testing.T) {
	target := &fakeTarget{}
	r := newTestRunner(t, 20*time.Millisecond)

	got, err := r.Observe(context.Background(), target)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if !errors.Is(got.Err(), ErrNoMeasurement) {
		t.Errorf("Err() = %v, want ErrNoMeasurement", got.Err())
	}
	if n := target.closes.Load(); n != 1 {
		t.Errorf("Close called %d times, want 1", n)
	}
}

func TestObserveNavigationFailure(t *testing.T) {
	navErr := errors.New("net::ERR_CONNECTION_REFUSED")
	target := &fakeTarget{navigateErr: navErr}
	r := newTestRunner(t, time.Second)

	_, err := r.Observe(context.Background(), target)
	if !errors.Is(err, navErr) {
		t.Fatalf("Observe() error = %v, want %v", err, navErr)
	}
	if n := target.closes.Load(); n != 1 {
		t.Errorf("Close called %d times, want 1", n)
	}
}

func TestObserveCloseFailure(t *testing.T) {
	closeErr := errors.New("already closed")
	target := &fakeTarget{messages: []string{"Average Frame Time: 4ms"}, closeErr: closeErr}
	r := newTestRunner(t, time.Second)

	got, err := r.Observe(context.Background(), target)
	if !errors.Is(err, closeErr) {
		t.Fatalf("Observe() error = %v, want %v", err, closeErr)
	}
	if got.Raw != "4" {
		t.Errorf("Raw = %q, want %q", got.Raw, "4")
	}
	if n := target.closes.Load(); n != 1 {
		t.Errorf("Close called %d times, want 1", n)
	}
}

func TestObserveCanceled(t *testing.T) {
	target := &fakeTarget{}
	r := newTestRunner(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := r.Observe(ctx, target)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Observe() error = %v, want context.Canceled", err)
	}
	if n := target.closes.Load(); n != 1 {
		t.Errorf("Close called %d times, want 1", n)
	}
}

func TestRunLaunchFailure(t *testing.T) {
	launchErr := errors.New("no browser")
	r, err := NewRunner(DefaultConfig(), func(context.Context, Config) (Target, error) {
		return nil, launchErr
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	if _, err := r.Run(context.Background()); !errors.Is(err, launchErr) {
		t.Errorf("Run() error = %v, want %v", err, launchErr)
	}
}

func TestShutdownOnce(t *testing.T) {
	var calls atomic.Int32
	sd := &shutdown{close: func() error {
		calls.Add(1)
		return nil
	}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sd.request()
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("close called %d times, want 1", n)
	}
}
