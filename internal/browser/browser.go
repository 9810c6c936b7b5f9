// Package browser launches a browser process and opens controllable pages on
// it over the Chrome DevTools Protocol.
//
// The audit worker only sees the small interfaces declared here, so tests can
// swap the real Chrome launcher and chromedp connection for stubs.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// LaunchOptions controls how the browser process is started.
type LaunchOptions struct {
	Headless bool
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Process, error)
}

// Process is a running browser with a remote debugging port.
type Process interface {
	Port() int
	// Kill terminates the browser. It is safe to call more than once.
	Kill() error
}

// Connector opens a control connection to a running browser.
type Connector interface {
	Connect(ctx context.Context, endpoint string) (Browser, error)
}

// Browser is a control connection to a browser.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single controllable tab.
type Page interface {
	// Run executes chromedp actions against the tab.
	Run(actions ...chromedp.Action) error
	// Listen registers fn for every DevTools event of the tab.
	Listen(fn func(ev interface{}))
	Close() error
}

// Endpoint returns the DevTools HTTP endpoint for a local debugging port.
func Endpoint(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}
