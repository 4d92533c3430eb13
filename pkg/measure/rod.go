package measure

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodTarget is a Target backed by a rod browser with a single page
type RodTarget struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// LaunchRod starts a browser process and opens a blank page
func LaunchRod(ctx context.Context, cfg Config) (Target, error) {
	l := launcher.New().Context(ctx).Headless(cfg.Headless)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.NoSandbox {
		l = l.Set("no-sandbox")
		l = l.Set("disable-dev-shm-usage")
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &RodTarget{
		launcher: l,
		browser:  browser,
		page:     page,
	}, nil
}

// SetViewport sets the page's rendering surface
func (t *RodTarget) SetViewport(width, height int) error {
	return t.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

// Navigate loads url and fails if the browser reports a navigation error
func (t *RodTarget) Navigate(url string) error {
	return t.page.Navigate(url)
}

// Subscribe listens to Runtime.consoleAPICalled. The subscription is live when Subscribe returns.
func (t *RodTarget) Subscribe(ctx context.Context, fn func(text string) bool) func() {
	ctx, cancel := context.WithCancel(ctx)

	wait := t.page.Context(ctx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) bool {
		return fn(ConsoleText(e))
	})
	go wait()

	return cancel
}

// Close closes the browser and waits for the process to exit
func (t *RodTarget) Close() error {
	err := t.browser.Close()
	t.launcher.Cleanup()
	return err
}

// ConsoleText joins the arguments of a console call with spaces
func ConsoleText(e *proto.RuntimeConsoleAPICalled) string {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		switch {
		case arg.Type == proto.RuntimeRemoteObjectTypeString:
			parts = append(parts, arg.Value.Str())
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, arg.Value.String())
		}
	}
	return strings.Join(parts, " ")
}
