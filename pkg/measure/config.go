// Package measure drives a browser to a benchmark page and captures the frame time
// the page reports on its console.
package measure

import (
	"time"
)

const (
	DefaultURL     = "http://127.0.0.1:1334"
	DefaultPattern = `Average Frame Time: ([\d\.]+)ms`
	DefaultWidth   = 1920
	DefaultHeight  = 1080
	DefaultTimeout = 30 * time.Second
)

// Config holds measurement settings
type Config struct {
	URL      string
	Pattern  string
	Width    int
	Height   int
	Timeout  time.Duration
	Headless bool

	// Bin is the browser executable. Empty lets the launcher find or download one.
	Bin string
	// NoSandbox is needed when the browser runs as root inside a container.
	NoSandbox bool
}

// DefaultConfig returns the settings the harness runs with: a visible window,
// a 1920x1080 viewport and a 30 second ceiling.
func DefaultConfig() Config {
	return Config{
		URL:     DefaultURL,
		Pattern: DefaultPattern,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Timeout: DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Pattern == "" {
		c.Pattern = d.Pattern
	}
	if c.Width == 0 {
		c.Width = d.Width
	}
	if c.Height == 0 {
		c.Height = d.Height
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}
