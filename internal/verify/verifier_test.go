package verify

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ajsharma/cspcheck/internal/artifact"
	"github.com/ajsharma/cspcheck/internal/cdp"
	"github.com/ajsharma/cspcheck/internal/config"
)

// requireChrome skips browser-backed tests when no Chrome is available.
func requireChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	chrome := cdp.FindChrome()
	if chrome == "" {
		t.Skip("Chrome not found")
	}
	return chrome
}

// fixtureServer serves the given pages under /web/.
func fixtureServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[strings.TrimPrefix(r.URL.Path, "/web/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, chrome, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ChromePath = chrome
	cfg.BaseURL = baseURL
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestRunReportsPolicyAndViolations(t *testing.T) {
	chrome := requireChrome(t)
	server := fixtureServer(t, map[string]string{
		"index.html":   cdp.CSPPageHTML,
		"metrics.html": cdp.PlainPageHTML,
	})
	cfg := testConfig(t, chrome, server.URL)

	var out bytes.Buffer
	result, err := New(cfg, &out).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	output := out.String()

	for _, want := range []string{
		"Checking web/index.html...",
		"Found CSP in index.html: " + cdp.CSPPolicy,
		"Checking web/metrics.html...",
		"CSP Meta tag NOT found in metrics.html",
		"CSP Violations found:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 page results, got %d", len(result.Pages))
	}
	if !result.Pages[0].Found || result.Pages[0].Content != cdp.CSPPolicy {
		t.Errorf("unexpected index result %+v", result.Pages[0])
	}
	if result.Pages[1].Found {
		t.Errorf("metrics page should have no policy: %+v", result.Pages[1])
	}

	// The blocked inline script is reported against the page that loaded it.
	if len(result.Pages[0].Violations) == 0 {
		t.Error("expected violations attributed to index.html")
	}
	if len(result.Pages[1].Violations) != 0 {
		t.Errorf("expected no violations for metrics.html, got %d", len(result.Pages[1].Violations))
	}

	// Every logged message appears verbatim, in emission order.
	report := output[strings.Index(output, "CSP Violations found:"):]
	last := 0
	for _, text := range result.Log.Texts() {
		if !strings.Contains(text, cfg.ViolationMarker) {
			t.Errorf("logged message without marker: %q", text)
		}
		idx := strings.Index(report[last:], text)
		if idx < 0 {
			t.Errorf("report missing %q in order", text)
			continue
		}
		last += idx + len(text)
	}

	for _, pr := range result.Pages {
		data, err := os.ReadFile(pr.Screenshot)
		if err != nil {
			t.Errorf("screenshot for %s missing: %v", pr.Name, err)
			continue
		}
		if !artifact.IsPNG(data) {
			t.Errorf("screenshot for %s is not PNG", pr.Name)
		}
	}
}

func TestRunWithoutViolations(t *testing.T) {
	chrome := requireChrome(t)
	server := fixtureServer(t, map[string]string{
		"index.html":   cdp.PlainPageHTML,
		"metrics.html": cdp.PlainPageHTML,
	})
	cfg := testConfig(t, chrome, server.URL)
	cfg.FullPage = true

	var out bytes.Buffer
	result, err := New(cfg, &out).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.HasSuffix(out.String(), "\nNo CSP violations logged.\n") {
		t.Errorf("expected no-violations notice, got:\n%s", out.String())
	}
	if result.Log.Len() != 0 {
		t.Errorf("expected empty log, got %d", result.Log.Len())
	}

	entries, err := os.ReadDir(cfg.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected exactly 2 screenshots, got %d", len(entries))
	}
}

func TestRunServerUnreachable(t *testing.T) {
	chrome := requireChrome(t)

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	cfg := testConfig(t, chrome, baseURL)

	var out bytes.Buffer
	_, err := New(cfg, &out).Run(context.Background())
	if err == nil {
		t.Fatal("expected error when the server is unreachable")
	}
	if !strings.Contains(err.Error(), "failed to navigate") {
		t.Errorf("unexpected error: %v", err)
	}

	if _, statErr := os.Stat(cfg.Pages[0].ScreenshotPath(cfg.OutputDir)); !os.IsNotExist(statErr) {
		t.Error("no screenshot should be written for an unreachable page")
	}
	if strings.Contains(out.String(), "Checking web/metrics.html") {
		t.Error("the run should stop at the first failure")
	}
}

func TestRunBrowserLaunchFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ChromePath = filepath.Join(t.TempDir(), "no-such-chrome")

	var out bytes.Buffer
	_, err := New(cfg, &out).Run(context.Background())
	if err == nil {
		t.Fatal("expected launch error")
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be printed before the browser starts, got %q", out.String())
	}
}
