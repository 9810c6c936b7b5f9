package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/GriffinCanCode/auditrunner/internal/browser"
)

// Names of the artifacts gathered by Navigation.
const (
	ArtifactConsoleMessages  = "ConsoleMessages"
	ArtifactNavigationTiming = "NavigationTiming"
	ArtifactMainDocument     = "MainDocumentContent"
	ArtifactScreenshot       = "Screenshot"
)

const navigationTimingScript = `JSON.stringify(performance.getEntriesByType('navigation').map(e => e.toJSON()))`

// ConsoleMessage is one console call or uncaught exception seen on the page.
type ConsoleMessage struct {
	Source string `json:"source"`
	Level  string `json:"level"`
	Text   string `json:"text"`
}

// Report is the summary produced by Navigation.
type Report struct {
	RequestedURL string          `json:"requestedUrl"`
	FinalURL     string          `json:"finalUrl"`
	FetchTime    time.Time       `json:"fetchTime"`
	Title        string          `json:"title"`
	LogLevel     string          `json:"logLevel"`
	Config       json.RawMessage `json:"configSettings,omitempty"`
	Document     DocumentSummary `json:"document"`
	Console      ConsoleCounts   `json:"console"`
	Timing       json.RawMessage `json:"timing,omitempty"`
	RunWarnings  []string        `json:"runWarnings"`
}

// ConsoleCounts tallies console messages by level.
type ConsoleCounts struct {
	Total  int `json:"total"`
	Errors int `json:"errors"`
}

// Navigation loads target in page and captures the document, console output,
// navigation timing and a screenshot. It does not compute any scores.
func Navigation(ctx context.Context, page browser.Page, target string, opts Options) (*RunnerResult, error) {
	if page == nil {
		return nil, errors.New("navigation: nil page")
	}
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("navigation: empty target")
	}

	var (
		mu      sync.Mutex
		console []ConsoleMessage
	)
	page.Listen(func(ev interface{}) {
		msg, ok := consoleMessage(ev)
		if !ok {
			return
		}
		mu.Lock()
		console = append(console, msg)
		mu.Unlock()
	})

	fetchTime := time.Now().UTC()
	var (
		finalURL   string
		title      string
		html       string
		timing     string
		screenshot []byte
	)
	err := page.Run(
		chromedp.Navigate(target),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(navigationTimingScript, &timing),
		chromedp.CaptureScreenshot(&screenshot),
	)
	if err != nil {
		return nil, fmt.Errorf("navigation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	messages := append([]ConsoleMessage(nil), console...)
	mu.Unlock()

	var warnings []string
	summary, err := SummarizeDocument(html)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("document summary unavailable: %v", err))
	}
	if finalURL != "" && finalURL != target {
		warnings = append(warnings, fmt.Sprintf("The page may not be loading as expected because your test URL (%s) was redirected to %s.", target, finalURL))
	}

	var timingRaw json.RawMessage
	if json.Valid([]byte(timing)) {
		timingRaw = json.RawMessage(timing)
	}

	report := Report{
		RequestedURL: target,
		FinalURL:     finalURL,
		FetchTime:    fetchTime,
		Title:        title,
		LogLevel:     opts.Flags.LogLevel,
		Config:       opts.Config,
		Document:     summary,
		Console:      countConsole(messages),
		Timing:       timingRaw,
		RunWarnings:  warnings,
	}
	if report.RunWarnings == nil {
		report.RunWarnings = []string{}
	}
	lhr, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("navigation: encode report: %w", err)
	}

	consoleRaw, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("navigation: encode console: %w", err)
	}

	artifacts := &Artifacts{
		RequestedURL: target,
		FinalURL:     finalURL,
		FetchTime:    fetchTime,
		Gathered: map[string]json.RawMessage{
			ArtifactConsoleMessages: consoleRaw,
		},
		Blobs: map[string][]byte{
			ArtifactMainDocument: []byte(html),
		},
	}
	if timingRaw != nil {
		artifacts.Gathered[ArtifactNavigationTiming] = timingRaw
	}
	if len(screenshot) > 0 {
		artifacts.Blobs[ArtifactScreenshot] = screenshot
	}

	return &RunnerResult{LHR: lhr, Artifacts: artifacts}, nil
}

func consoleMessage(ev interface{}) (ConsoleMessage, bool) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			switch {
			case arg.Description != "":
				parts = append(parts, arg.Description)
			case len(arg.Value) > 0:
				parts = append(parts, strings.Trim(string(arg.Value), `"`))
			}
		}
		return ConsoleMessage{
			Source: "console",
			Level:  string(e.Type),
			Text:   strings.Join(parts, " "),
		}, true
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return ConsoleMessage{}, false
		}
		text := e.ExceptionDetails.Text
		if ex := e.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
			text = ex.Description
		}
		return ConsoleMessage{Source: "exception", Level: "error", Text: text}, true
	default:
		return ConsoleMessage{}, false
	}
}

func countConsole(messages []ConsoleMessage) ConsoleCounts {
	counts := ConsoleCounts{Total: len(messages)}
	for _, m := range messages {
		if m.Level == "error" || m.Level == "assert" {
			counts.Errors++
		}
	}
	return counts
}
