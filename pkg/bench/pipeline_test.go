package bench

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"go.temporal.io/sdk/log"

	"dev/bravebird/frametime-bench/pkg/matrix"
	"dev/bravebird/frametime-bench/pkg/measure"
	"dev/bravebird/frametime-bench/pkg/models"
)

// fakeToolchain stands in for cargo, wasm-bindgen and wasm-opt
type fakeToolchain struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (f *fakeToolchain) run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()

	if name == f.fail {
		return []byte("error: boom"), errors.New(name + " exited with 1")
	}

	switch name {
	case "wasm-bindgen":
		out := filepath.Join(dir, "web", "bevy_wasm_bench_bg.wasm")
		payload := bytes.Repeat([]byte("\x00asm bevy "), 4096)
		if err := os.WriteFile(out, payload, 0644); err != nil {
			return nil, err
		}
	case "wasm-opt":
		path := args[len(args)-1]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data[:len(data)/2], 0644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *fakeToolchain) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func discardLogger() log.Logger {
	return log.NewStructuredLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	assets := filepath.Join(dir, "bench", "assets")
	if err := os.MkdirAll(assets, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(assets, "icon.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestPipeline(t *testing.T, tc *fakeToolchain, run MeasureFunc) *Pipeline {
	t.Helper()
	return NewPipeline(Options{
		Dir:     newWorkspace(t),
		Addr:    "127.0.0.1:0",
		Logger:  discardLogger(),
		Command: tc.run,
		Run:     run,
	})
}

func fixedFrameTime(raw string, value float64) MeasureFunc {
	return func(ctx context.Context, cfg measure.Config, logger log.Logger) (measure.Result, error) {
		return measure.Result{Raw: raw, Value: value, Found: true}, nil
	}
}

func TestRunMatrix(t *testing.T) {
	tc := &fakeToolchain{}
	p := newTestPipeline(t, tc, fixedFrameTime("16.5", 16.5))

	plan, err := matrix.Resolve(models.MatrixSelection{
		OptLevels:    []string{"S", "Three"},
		Lto:          []string{"Off"},
		CodegenUnits: []string{"Default"},
		WasmOpt:      []string{"None", "Z"},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	var got []models.BenchResult
	err = p.RunMatrix(context.Background(), plan, func(r models.BenchResult) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("RunMatrix() error = %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("got %d results, want 4", len(got))
	}
	if n := tc.count("cargo clean"); n != 2 {
		t.Errorf("cargo clean ran %d times, want 2", n)
	}
	if n := tc.count("cargo build -p bench --target=wasm32-unknown-unknown --profile bevy_wasm_bench"); n != 2 {
		t.Errorf("cargo build ran %d times, want 2", n)
	}
	if n := tc.count("wasm-bindgen --out-name bevy_wasm_bench --out-dir web --target web"); n != 4 {
		t.Errorf("wasm-bindgen ran %d times, want 4", n)
	}
	if n := tc.count("wasm-opt -Oz"); n != 1*2 {
		t.Errorf("wasm-opt ran %d times, want 2", n)
	}

	tests := []struct {
		name        string
		result      models.BenchResult
		wantOpt     string
		wantWasmOpt string
		wantOptTime bool
	}{
		{"First", got[0], "S", "None", false},
		{"Second", got[1], "S", "Z", true},
		{"Last", got[3], "Three", "Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.result
			if r.OptLevel != tt.wantOpt || r.WasmOpt != tt.wantWasmOpt {
				t.Errorf("labels = %s/%s, want %s/%s", r.OptLevel, r.WasmOpt, tt.wantOpt, tt.wantWasmOpt)
			}
			if r.Lto != "Off" || r.CodegenUnits != "Default" || r.Strip != "None" || r.Panic != "Unwind" {
				t.Errorf("unexpected labels %+v", r)
			}
			if r.FrameTime != 16.5 {
				t.Errorf("FrameTime = %v, want 16.5", r.FrameTime)
			}
			if r.Size == 0 || r.SizeGzipped == 0 || r.SizeGzipped >= r.Size {
				t.Errorf("sizes = %d / %d", r.Size, r.SizeGzipped)
			}
			if !tt.wantOptTime && r.WasmOptTime != 0 {
				t.Errorf("WasmOptTime = %v for disabled wasm-opt", r.WasmOptTime)
			}
		})
	}

	if got[1].Size >= got[0].Size {
		t.Errorf("wasm-opt did not shrink the module: %d >= %d", got[1].Size, got[0].Size)
	}

	toml, err := os.ReadFile(filepath.Join(p.Options().Dir, ".cargo", "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(toml), `opt-level = "3"`) {
		t.Errorf("config.toml = %q, want the last profile", toml)
	}
	if _, err := os.Stat(filepath.Join(p.Options().Dir, "web", "assets", "icon.png")); err != nil {
		t.Errorf("assets not copied: %v", err)
	}
}

func TestRunMatrixStopsOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		fail    string
		run     MeasureFunc
		wantErr error
	}{
		{
			name: "Build failure",
			fail: "cargo",
			run:  fixedFrameTime("1", 1),
		},
		{
			name: "Silent page",
			run: func(context.Context, measure.Config, log.Logger) (measure.Result, error) {
				return measure.Result{}, nil
			},
			wantErr: ErrNoMeasurement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := &fakeToolchain{fail: tt.fail}
			p := newTestPipeline(t, tc, tt.run)

			plan, _ := matrix.Resolve(models.MatrixSelection{OptLevels: []string{"S"}, Lto: []string{"Off"}, CodegenUnits: []string{"One"}})
			calls := 0
			err := p.RunMatrix(context.Background(), plan, func(models.BenchResult) error {
				calls++
				return nil
			})
			if err == nil {
				t.Fatal("RunMatrix() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("RunMatrix() error = %v, want %v", err, tt.wantErr)
			}
			if calls != 0 {
				t.Errorf("sink called %d times, want 0", calls)
			}
		})
	}
}

func TestRunProfileSinkError(t *testing.T) {
	tc := &fakeToolchain{}
	p := newTestPipeline(t, tc, fixedFrameTime("8", 8))
	if err := p.PrepareAssets(); err != nil {
		t.Fatal(err)
	}

	errFull := errors.New("disk full")
	calls := 0
	profile := matrix.Profile{OptLevel: matrix.OptLevelZ, Lto: matrix.LtoFat, CodegenUnits: matrix.CodegenUnitsOne}
	err := p.RunProfile(context.Background(), profile, []matrix.WasmOpt{matrix.WasmOptNone, matrix.WasmOptZ}, func(models.BenchResult) error {
		calls++
		return errFull
	})
	if !errors.Is(err, errFull) {
		t.Fatalf("RunProfile() error = %v, want %v", err, errFull)
	}
	if calls != 1 {
		t.Errorf("sink called %d times, want 1", calls)
	}
	if n := tc.count("wasm-opt"); n != 0 {
		t.Errorf("wasm-opt ran %d times after the sink failed", n)
	}
}

func TestMeasureServesOutput(t *testing.T) {
	tc := &fakeToolchain{}
	var seen string
	p := newTestPipeline(t, tc, func(ctx context.Context, cfg measure.Config, logger log.Logger) (measure.Result, error) {
		seen = cfg.URL
		return measure.Result{Raw: "0", Found: true}, nil
	})

	res, err := p.Measure(context.Background())
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}
	if res.Raw != "0" {
		t.Errorf("Raw = %q, want 0", res.Raw)
	}
	if !strings.HasPrefix(seen, "http://127.0.0.1:") || strings.HasSuffix(seen, ":0") {
		t.Errorf("measured %q, want the bound server address", seen)
	}
}

func TestCheckDeps(t *testing.T) {
	installed := map[string]bool{"cargo": true, "wasm-opt": true}
	lookPath := func(name string) (string, error) {
		if installed[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}

	if err := CheckDeps(lookPath, []string{"cargo", "wasm-opt"}); err != nil {
		t.Errorf("CheckDeps() error = %v", err)
	}

	err := CheckDeps(lookPath, []string{"cargo", "wasm-bindgen", "node"})
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("CheckDeps() error = %v, want ErrMissingDependency", err)
	}
	if !strings.Contains(err.Error(), "wasm-bindgen, node") {
		t.Errorf("error %q does not list every missing program", err)
	}
}

func TestCompress(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "module.wasm")
	data := bytes.Repeat([]byte("frame time "), 1000)
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	size, gzipped, err := Compress(src, src+".gz")
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
	if gzipped <= 0 || gzipped >= size {
		t.Errorf("gzipped = %d, want 0 < gzipped < %d", gzipped, size)
	}

	f, err := os.Open(src + ".gz")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	round, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(round, data) {
		t.Error("decompressed content differs")
	}
}
