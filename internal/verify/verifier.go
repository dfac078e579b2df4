// Package verify runs the CSP verification flow: visit each configured page,
// look for a Content-Security-Policy meta tag, capture a screenshot and
// report the CSP messages the browser logged.
package verify

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajsharma/cspcheck/internal/artifact"
	"github.com/ajsharma/cspcheck/internal/cdp"
	"github.com/ajsharma/cspcheck/internal/config"
	"github.com/ajsharma/cspcheck/internal/control"
	"github.com/ajsharma/cspcheck/internal/events"
	"github.com/ajsharma/cspcheck/internal/monitor"
)

// MetaSelector matches the meta tag that declares a policy.
const MetaSelector = `meta[http-equiv="Content-Security-Policy"]`

// drainTimeout bounds the wait for a page's console events to be delivered.
const drainTimeout = 2 * time.Second

// Result is everything a completed run found.
type Result struct {
	RunID string
	Pages []*events.PageCheckResult
	Log   *events.ViolationLog
}

// Verifier runs the verification flow for a configuration.
type Verifier struct {
	cfg   *config.Config
	out   io.Writer
	runID string
}

// New creates a verifier that prints its findings to out.
func New(cfg *config.Config, out io.Writer) *Verifier {
	return &Verifier{
		cfg:   cfg,
		out:   out,
		runID: uuid.NewString(),
	}
}

// RunID identifies this verifier's run in diagnostics.
func (v *Verifier) RunID() string {
	return v.runID
}

// Run executes the flow. Any browser, navigation, query or screenshot
// failure aborts the run; the browser is released on every path.
// A page without a policy, or logged violations, are findings, not errors.
func (v *Verifier) Run(ctx context.Context) (*Result, error) {
	log.Printf("Run %s: starting browser", v.runID)

	browser, err := cdp.Open(ctx, v.cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Printf("Run %s: error closing browser: %v", v.runID, err)
		}
		log.Printf("Run %s: browser closed", v.runID)
	}()

	violations := events.NewViolationLog()
	mon := monitor.NewConsoleMonitor(v.cfg.ViolationMarker, violations)
	if err := mon.Enable(browser.Context()); err != nil {
		return nil, fmt.Errorf("failed to enable console events: %w", err)
	}

	ctrl := control.NewController(browser.Context())
	ctrl.SetTimeout(v.cfg.NavTimeout)

	result := &Result{
		RunID: v.runID,
		Log:   violations,
	}

	for i, p := range v.cfg.Pages {
		if i > 0 {
			fmt.Fprintln(v.out)
		}
		pr, err := v.checkPage(ctrl, mon, p)
		if err != nil {
			return result, err
		}
		result.Pages = append(result.Pages, pr)
	}

	WriteViolations(v.out, violations)
	log.Printf("Run %s: %d page(s) checked, %d console message(s) seen", v.runID, len(result.Pages), mon.Seen())

	return result, nil
}

// checkPage runs navigate, meta query and screenshot for one page.
func (v *Verifier) checkPage(ctrl *control.Controller, mon *monitor.ConsoleMonitor, p config.Page) (*events.PageCheckResult, error) {
	url := p.URL(v.cfg.BaseURL)
	pr := events.NewPageCheckResult(p.Name, url)

	fmt.Fprintf(v.out, "Checking %s...\n", displayPath(p))

	scope := mon.Scope(p.Name)
	defer scope.Close()

	if err := ctrl.Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	content, found, err := ctrl.QueryAttribute(MetaSelector, "content")
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", p.Name, err)
	}
	pr.Found = found
	pr.Content = content
	WriteFinding(v.out, pr)

	data, err := ctrl.Screenshot(v.cfg.FullPage)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot of %s: %w", p.Name, err)
	}
	shot := p.ScreenshotPath(v.cfg.OutputDir)
	if err := artifact.WriteFile(shot, data); err != nil {
		return nil, fmt.Errorf("failed to save screenshot of %s: %w", p.Name, err)
	}
	pr.Screenshot = shot
	log.Printf("Run %s: saved %s", v.runID, shot)

	// Not fatal: the page was checked; only attribution of late messages is at stake.
	if err := scope.Drain(drainTimeout); err != nil {
		log.Printf("Run %s: warning: %v", v.runID, err)
	}
	pr.Violations = scope.Close()

	return pr, nil
}

// displayPath is how a page is named in the "Checking" line: its path
// relative to the server root, or the full URL for absolute targets.
func displayPath(p config.Page) string {
	if strings.Contains(p.Path, "://") {
		return p.Path
	}
	return strings.TrimLeft(p.Path, "/")
}
