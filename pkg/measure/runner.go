package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.temporal.io/sdk/log"
)

// ErrNoMeasurement is returned by Result.Err when the page never reported a frame time
var ErrNoMeasurement = errors.New("no frame time reported before timeout")

// Target is the browser page the runner drives
type Target interface {
	SetViewport(width, height int) error
	Navigate(url string) error
	// Subscribe calls fn for every console message until fn returns true,
	// ctx is done, or the returned cancel func is called. cancel may be called more than once.
	Subscribe(ctx context.Context, fn func(text string) (stop bool)) (cancel func())
	Close() error
}

// LaunchFunc starts a browser and returns its page
type LaunchFunc func(ctx context.Context, cfg Config) (Target, error)

// Result is the outcome of one measurement
type Result struct {
	Raw     string        `json:"raw"`
	Value   float64       `json:"value"`
	Found   bool          `json:"found"`
	Elapsed time.Duration `json:"elapsed"`
}

// Err returns ErrNoMeasurement when nothing matched
func (r Result) Err() error {
	if !r.Found {
		return ErrNoMeasurement
	}
	return nil
}

// Runner launches a browser, loads the benchmark page and waits for the frame time
type Runner struct {
	cfg     Config
	matcher *Matcher
	launch  LaunchFunc
	logger  log.Logger
}

// NewRunner creates a runner. A nil launch uses LaunchRod, a nil logger logs through slog.
func NewRunner(cfg Config, launch LaunchFunc, logger log.Logger) (*Runner, error) {
	cfg = cfg.withDefaults()

	matcher, err := NewMatcher(cfg.Pattern)
	if err != nil {
		return nil, err
	}
	if launch == nil {
		launch = LaunchRod
	}
	if logger == nil {
		logger = log.NewStructuredLogger(slog.Default())
	}

	return &Runner{
		cfg:     cfg,
		matcher: matcher,
		launch:  launch,
		logger:  logger,
	}, nil
}

// Config returns the effective configuration
func (r *Runner) Config() Config {
	return r.cfg
}

// Run launches the browser and observes it. The browser is closed before Run returns.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.logger.Info("Launching browser", "headless", r.cfg.Headless)

	target, err := r.launch(ctx, r.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("failed to launch browser: %w", err)
	}

	return r.Observe(ctx, target)
}

// Observe takes ownership of target: it sets the viewport, subscribes to the console,
// navigates and waits for the first match, the timeout, or ctx. target is closed exactly once.
func (r *Runner) Observe(ctx context.Context, target Target) (Result, error) {
	sd := &shutdown{close: target.Close}
	defer sd.request()

	if err := target.SetViewport(r.cfg.Width, r.cfg.Height); err != nil {
		return Result{}, fmt.Errorf("failed to set viewport: %w", err)
	}

	found := make(chan string, 1)
	var matched atomic.Bool

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()

	unsubscribe := target.Subscribe(subCtx, func(text string) bool {
		raw, ok := r.matcher.Match(text)
		if !ok {
			return false
		}
		if matched.CompareAndSwap(false, true) {
			found <- raw
		}
		return true
	})
	defer unsubscribe()

	start := time.Now()
	r.logger.Info("Navigating", "url", r.cfg.URL)
	if err := target.Navigate(r.cfg.URL); err != nil {
		return Result{}, fmt.Errorf("failed to navigate to %s: %w", r.cfg.URL, err)
	}

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()

	var result Result
	select {
	case raw := <-found:
		unsubscribe()
		result = newResult(raw, time.Since(start))
		r.logger.Info("Frame time captured", "value", raw, "elapsed", result.Elapsed)
	case <-timer.C:
		r.logger.Warn("No frame time before timeout", "timeout", r.cfg.Timeout)
	case <-ctx.Done():
		if err := sd.request(); err != nil {
			r.logger.Warn("Failed to close browser", "error", err)
		}
		return Result{}, ctx.Err()
	}

	if err := sd.request(); err != nil {
		return result, fmt.Errorf("failed to close browser: %w", err)
	}
	return result, nil
}

func newResult(raw string, elapsed time.Duration) Result {
	res := Result{Raw: raw, Found: true, Elapsed: elapsed}
	// The pattern allows strings like "1.2.3"; Raw is still reported verbatim.
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		res.Value = v
	}
	return res
}

// shutdown closes the browser once, whichever path asks first
type shutdown struct {
	once  sync.Once
	close func() error
	err   error
}

func (s *shutdown) request() error {
	s.once.Do(func() {
		s.err = s.close()
	})
	return s.err
}
