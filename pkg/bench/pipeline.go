// Package bench builds the wasm benchmark under every configuration of the
// matrix and measures each build in a browser.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.temporal.io/sdk/log"

	"dev/bravebird/frametime-bench/pkg/matrix"
	"dev/bravebird/frametime-bench/pkg/measure"
	"dev/bravebird/frametime-bench/pkg/models"
	"dev/bravebird/frametime-bench/pkg/server"
)

const (
	DefaultProfile = "bevy_wasm_bench"
	DefaultName    = "bevy_wasm_bench"
	DefaultPackage = "bench"
	DefaultOutDir  = "web"
	wasmTarget     = "wasm32-unknown-unknown"
)

// ErrNoMeasurement is returned when the page never reported a frame time
var ErrNoMeasurement = measure.ErrNoMeasurement

// CommandFunc runs a program in dir and returns its combined output
type CommandFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// MeasureFunc measures the page served at cfg.URL
type MeasureFunc func(ctx context.Context, cfg measure.Config, logger log.Logger) (measure.Result, error)

// Options configures a pipeline
type Options struct {
	// Dir is the cargo workspace holding the benchmark crate
	Dir     string
	Profile string
	Name    string
	Package string
	OutDir  string
	// Addr is where the built page is served during measurement.
	// Measure.URL defaults to the server's address.
	Addr    string
	Measure measure.Config

	Logger  log.Logger
	Command CommandFunc
	Run     MeasureFunc
}

// Pipeline runs the build, post-processing and measurement steps in a workspace
type Pipeline struct {
	opts Options
}

// NewPipeline fills in defaults for unset options
func NewPipeline(opts Options) *Pipeline {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if abs, err := filepath.Abs(opts.Dir); err == nil {
		opts.Dir = abs
	}
	if opts.Profile == "" {
		opts.Profile = DefaultProfile
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Package == "" {
		opts.Package = DefaultPackage
	}
	if opts.OutDir == "" {
		opts.OutDir = DefaultOutDir
	}
	if opts.Addr == "" {
		opts.Addr = server.DefaultAddr
	}
	if opts.Logger == nil {
		opts.Logger = log.NewStructuredLogger(slog.Default())
	}
	if opts.Command == nil {
		opts.Command = RunCommand
	}
	if opts.Run == nil {
		opts.Run = RunMeasurement
	}
	return &Pipeline{opts: opts}
}

// WithLogger returns a copy of the pipeline that logs to logger
func (p *Pipeline) WithLogger(logger log.Logger) *Pipeline {
	opts := p.opts
	opts.Logger = logger
	return &Pipeline{opts: opts}
}

// WithHeadless returns a copy of the pipeline measuring with the given window mode
func (p *Pipeline) WithHeadless(headless bool) *Pipeline {
	opts := p.opts
	opts.Measure.Headless = headless
	return &Pipeline{opts: opts}
}

// WithMeasureTimeout returns a copy of the pipeline with a different fallback timeout
func (p *Pipeline) WithMeasureTimeout(timeout time.Duration) *Pipeline {
	opts := p.opts
	opts.Measure.Timeout = timeout
	return &Pipeline{opts: opts}
}

// Options returns the effective options
func (p *Pipeline) Options() Options {
	return p.opts
}

func (p *Pipeline) path(elem ...string) string {
	return filepath.Join(append([]string{p.opts.Dir}, elem...)...)
}

// WasmPath is the cargo output for the benchmark profile
func (p *Pipeline) WasmPath() string {
	return p.path("target", wasmTarget, p.opts.Profile, p.opts.Package+".wasm")
}

// BindgenWasmPath is the wasm-bindgen output served to the browser
func (p *Pipeline) BindgenWasmPath() string {
	return p.path(p.opts.OutDir, p.opts.Name+"_bg.wasm")
}

// PrepareAssets copies the benchmark's assets next to the page
func (p *Pipeline) PrepareAssets() error {
	if err := os.MkdirAll(p.path(p.opts.OutDir, "assets"), 0755); err != nil {
		return fmt.Errorf("failed to create assets dir: %w", err)
	}
	src := p.path(p.opts.Package, "assets", "icon.png")
	dst := p.path(p.opts.OutDir, "assets", "icon.png")
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy assets: %w", err)
	}
	return nil
}

// WriteProfile writes .cargo/config.toml defining the benchmark profile
func (p *Pipeline) WriteProfile(profile matrix.Profile) error {
	if err := os.MkdirAll(p.path(".cargo"), 0755); err != nil {
		return fmt.Errorf("failed to create .cargo dir: %w", err)
	}
	toml := matrix.ProfileTOML(p.opts.Profile, profile)
	if err := os.WriteFile(p.path(".cargo", "config.toml"), []byte(toml), 0644); err != nil {
		return fmt.Errorf("failed to write cargo config: %w", err)
	}
	return nil
}

func (p *Pipeline) command(ctx context.Context, step, name string, args ...string) error {
	out, err := p.opts.Command(ctx, p.opts.Dir, name, args...)
	if err != nil {
		return fmt.Errorf("failed running %s: %w\n%s", step, err, out)
	}
	return nil
}

// Clean removes previous build artifacts
func (p *Pipeline) Clean(ctx context.Context) error {
	p.opts.Logger.Info("Cleaning up")
	return p.command(ctx, "cargo clean", "cargo", "clean")
}

// Build compiles the benchmark crate to wasm and returns how long it took
func (p *Pipeline) Build(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := p.command(ctx, "cargo build", "cargo", "build",
		"-p", p.opts.Package,
		"--target="+wasmTarget,
		"--profile", p.opts.Profile,
	)
	return time.Since(start), err
}

// BuildProfile writes the profile, cleans and builds
func (p *Pipeline) BuildProfile(ctx context.Context, profile matrix.Profile) (time.Duration, error) {
	if err := p.WriteProfile(profile); err != nil {
		return 0, err
	}
	if err := p.Clean(ctx); err != nil {
		return 0, err
	}

	p.opts.Logger.Info("Building", "profile", profile.String())
	buildTime, err := p.Build(ctx)
	if err != nil {
		return 0, err
	}
	p.opts.Logger.Info("Build finished", "profile", profile.String(), "duration", buildTime)
	return buildTime, nil
}

// Bindgen generates the JS glue and the browser wasm module
func (p *Pipeline) Bindgen(ctx context.Context) error {
	p.opts.Logger.Info("Running bindgen")
	return p.command(ctx, "wasm-bindgen", "wasm-bindgen",
		"--out-name", p.opts.Name,
		"--out-dir", p.opts.OutDir,
		"--target", "web",
		p.WasmPath(),
	)
}

// WasmOpt optimizes the bindgen output in place. Disabled levels take no time.
func (p *Pipeline) WasmOpt(ctx context.Context, level matrix.WasmOpt) (time.Duration, error) {
	if !level.Enabled() {
		return 0, nil
	}

	p.opts.Logger.Info("Running wasm-opt", "level", string(level))
	path := p.BindgenWasmPath()
	args := append(level.Args(), path, "-o", path)

	start := time.Now()
	if err := p.command(ctx, "wasm-opt", "wasm-opt", args...); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Compress gzips the bindgen output and returns the raw and gzipped sizes
func (p *Pipeline) Compress() (size, gzipped int64, err error) {
	p.opts.Logger.Info("Compressing")
	path := p.BindgenWasmPath()
	return Compress(path, path+".gz")
}

// Measure serves the output directory and measures the page
func (p *Pipeline) Measure(ctx context.Context) (measure.Result, error) {
	p.opts.Logger.Info("Testing runtime performance")

	srv := server.NewStatic(p.opts.Addr, p.path(p.opts.OutDir))
	if err := srv.Start(); err != nil {
		return measure.Result{}, fmt.Errorf("failed to start web server: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(stopCtx); err != nil {
			p.opts.Logger.Warn("Failed to stop web server", "error", err)
		}
	}()

	cfg := p.opts.Measure
	if cfg.URL == "" {
		cfg.URL = srv.URL()
	}

	res, err := p.opts.Run(ctx, cfg, p.opts.Logger)
	if err != nil {
		return res, fmt.Errorf("failed to measure: %w", err)
	}
	if err := res.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// MeasureVariant post-processes the current build with one wasm-opt level and measures it
func (p *Pipeline) MeasureVariant(ctx context.Context, profile matrix.Profile, level matrix.WasmOpt, buildTime time.Duration) (models.BenchResult, error) {
	result := models.BenchResult{BuildTime: buildTime.Seconds()}
	matrix.Label(&result, profile, level)

	if err := p.Bindgen(ctx); err != nil {
		return result, err
	}

	optTime, err := p.WasmOpt(ctx, level)
	if err != nil {
		return result, err
	}
	result.WasmOptTime = optTime.Seconds()

	size, gzipped, err := p.Compress()
	if err != nil {
		return result, err
	}
	result.Size = size
	result.SizeGzipped = gzipped

	p.opts.Logger.Info("Built variant",
		"size", humanize.Bytes(uint64(size)),
		"gzipped", humanize.Bytes(uint64(gzipped)),
		"build_time", buildTime,
		"wasm_opt_time", optTime,
	)

	res, err := p.Measure(ctx)
	if err != nil {
		return result, err
	}
	result.FrameTime = res.Value
	p.opts.Logger.Info("Measured", "frame_time_ms", res.Value)

	return result, nil
}

// Sink receives each result as soon as it is measured
type Sink func(result models.BenchResult) error

// RunProfile builds one profile and measures it under every given wasm-opt level
func (p *Pipeline) RunProfile(ctx context.Context, profile matrix.Profile, levels []matrix.WasmOpt, sink Sink) error {
	buildTime, err := p.BuildProfile(ctx, profile)
	if err != nil {
		return err
	}

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := p.MeasureVariant(ctx, profile, level, buildTime)
		if err != nil {
			return fmt.Errorf("%s, WasmOpt::%s: %w", profile, level, err)
		}
		if err := sink(result); err != nil {
			return fmt.Errorf("failed to record result: %w", err)
		}
	}
	return nil
}

// RunMatrix builds every profile once and measures it under every wasm-opt level
func (p *Pipeline) RunMatrix(ctx context.Context, plan matrix.Plan, sink Sink) error {
	if err := p.PrepareAssets(); err != nil {
		return err
	}

	total := plan.Size()
	done := 0
	progress := func(result models.BenchResult) error {
		done++
		p.opts.Logger.Info("Progress", "done", done, "total", total)
		return sink(result)
	}

	for _, profile := range plan.Profiles {
		if err := p.RunProfile(ctx, profile, plan.WasmOpts, progress); err != nil {
			return err
		}
	}
	return nil
}

// RunCommand runs a program and fails on a non-zero exit
func RunCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, fmt.Errorf("%s exited with %d", name, exitErr.ExitCode())
	}
	return out, err
}

// RunMeasurement measures with a real browser
func RunMeasurement(ctx context.Context, cfg measure.Config, logger log.Logger) (measure.Result, error) {
	runner, err := measure.NewRunner(cfg, measure.LaunchRod, logger)
	if err != nil {
		return measure.Result{}, err
	}
	return runner.Run(ctx)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
