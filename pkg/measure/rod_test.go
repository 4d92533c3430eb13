package measure

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

const benchPage = `<!DOCTYPE html>
<html>
<body>
<script>
	console.log("Starting measurement");
	console.log("Average Frame Time: 12.3ms");
	console.log("Average Frame Time: 45.6ms");
</script>
</body>
</html>`

func TestRodEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no browser found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, benchPage)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.Headless = true
	cfg.NoSandbox = true
	cfg.Bin = bin

	r, err := NewRunner(cfg, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	got, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Raw != "12.3" {
		t.Errorf("Raw = %q, want %q", got.Raw, "12.3")
	}
	if elapsed := time.Since(start); elapsed > 20*time.Second {
		t.Errorf("Run took %v, want well under %v", elapsed, cfg.Timeout)
	}
}

func TestRodNavigationRefused(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no browser found")
	}

	// Grab a free port, then close it so nothing is listening.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Headless = true
	cfg.NoSandbox = true
	cfg.Bin = bin

	r, err := NewRunner(cfg, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	if _, err := r.Run(context.Background()); err == nil {
		t.Error("Run() error = nil, want navigation error")
	}
}
