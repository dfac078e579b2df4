// Package config provides configuration management for cspcheck.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ajsharma/cspcheck/internal/artifact"
)

// Version is the current version of cspcheck.
// This is set at build time via ldflags.
var Version = "dev"

// DefaultViolationMarker is the substring that marks a console message as a
// Content Security Policy report.
const DefaultViolationMarker = "Content Security Policy"

// Page is a single verification target.
type Page struct {
	// Name is the label used in output, e.g. "index.html".
	Name string `yaml:"name"`
	// Path is joined to BaseURL unless it is already an absolute URL.
	Path string `yaml:"path"`
	// Screenshot is the file name (relative to OutputDir) or absolute path.
	Screenshot string `yaml:"screenshot"`
}

// Config holds all configuration options for cspcheck.
type Config struct {
	// Browser
	RemotePort string        `yaml:"remote_port"`
	ChromePath string        `yaml:"chrome_path"`
	Headless   bool          `yaml:"headless"`
	NavTimeout time.Duration `yaml:"nav_timeout"`

	// Targets
	BaseURL string `yaml:"base_url"`
	Pages   []Page `yaml:"pages"`

	// Output
	OutputDir string `yaml:"output_dir"`
	FullPage  bool   `yaml:"full_page"`

	// Console filtering
	ViolationMarker string `yaml:"violation_marker"`
}

// DefaultConfig returns the default configuration: the two local pages
// served from localhost:8000.
func DefaultConfig() *Config {
	return &Config{
		// Browser
		RemotePort: "",
		ChromePath: "",
		Headless:   true,
		NavTimeout: 30 * time.Second,

		// Targets
		BaseURL: "http://localhost:8000",
		Pages: []Page{
			{Name: "index.html", Path: "/web/index.html", Screenshot: "csp_verification_index.png"},
			{Name: "metrics.html", Path: "/web/metrics.html", Screenshot: "csp_verification_metrics.png"},
		},

		// Output
		OutputDir: "./verification",
		FullPage:  false,

		// Console filtering
		ViolationMarker: DefaultViolationMarker,
	}
}

// URL returns the absolute URL of the page.
func (p Page) URL(baseURL string) string {
	if strings.Contains(p.Path, "://") {
		return p.Path
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(p.Path, "/")
}

// ScreenshotPath returns where the page's screenshot is written.
func (p Page) ScreenshotPath(outputDir string) string {
	name := p.Screenshot
	if name == "" {
		name = artifact.ScreenshotName(p.Name)
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(outputDir, name)
}
