// Package cdp acquires the Chrome instance a verification run drives.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ajsharma/cspcheck/internal/config"
)

// RemoteWaitTimeout bounds how long Open waits for a remote Chrome to answer.
const RemoteWaitTimeout = 10 * time.Second

// ErrChromeNotFound is returned when an explicit Chrome path does not exist.
var ErrChromeNotFound = errors.New("chrome executable not found")

// Browser is one browser with one open tab. Close releases both.
type Browser struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	remote      bool
}

// Open starts a headless Chrome, or attaches to the Chrome listening on
// cfg.RemotePort, and opens a tab. Launch failures are returned here rather
// than on the first page operation.
func Open(parent context.Context, cfg *config.Config) (*Browser, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)

	if cfg.RemotePort != "" {
		info, err := WaitForChrome(cfg.RemotePort, RemoteWaitTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to get browser info: %w", err)
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, info.WebSocketDebuggerURL)
	} else {
		opts, err := AllocatorOptions(cfg)
		if err != nil {
			return nil, err
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, opts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// An empty Run allocates the browser and creates the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Browser{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		remote:      cfg.RemotePort != "",
	}, nil
}

// Context returns the tab context that page operations run against.
func (b *Browser) Context() context.Context {
	return b.tabCtx
}

// Remote reports whether the browser was attached rather than launched.
func (b *Browser) Remote() bool {
	return b.remote
}

// Close closes the tab and, for a launched browser, the browser process.
// It is safe to call more than once.
func (b *Browser) Close() error {
	var err error
	if b.tabCtx != nil && b.tabCtx.Err() == nil {
		err = chromedp.Cancel(b.tabCtx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}
	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return err
}

// AllocatorOptions returns the exec allocator options for a launched Chrome.
func AllocatorOptions(cfg *config.Config) ([]chromedp.ExecAllocatorOption, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 720),
	)

	// Chrome refuses to start sandboxed as root, which is the norm in containers.
	if runtime.GOOS == "linux" && os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}

	if cfg.ChromePath != "" {
		if _, err := os.Stat(cfg.ChromePath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrChromeNotFound, cfg.ChromePath)
		}
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	return opts, nil
}

// FindChrome locates a Chrome or Chromium executable on the system.
// It returns an empty string when none is installed.
func FindChrome() string {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			filepath.Join(os.Getenv("HOME"), "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"),
		}
	case "linux":
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/usr/bin/headless-shell",
			"/headless-shell/headless-shell",
			"/snap/bin/chromium",
		}
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		programFiles := os.Getenv("PROGRAMFILES")
		programFilesX86 := os.Getenv("PROGRAMFILES(X86)")

		paths = []string{
			filepath.Join(localAppData, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe"),
		}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "chrome", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	return ""
}
