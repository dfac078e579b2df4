// cspcheck verifies that local pages declare a Content Security Policy and
// reports the CSP messages the browser logs while loading them.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajsharma/cspcheck/internal/config"
	"github.com/ajsharma/cspcheck/internal/events"
	"github.com/ajsharma/cspcheck/internal/htmlcheck"
	"github.com/ajsharma/cspcheck/internal/server"
	"github.com/ajsharma/cspcheck/internal/verify"
)

// Root command flags. They override the configuration file only when set.
var (
	configPath string
	baseURL    string
	outputDir  string
	navTimeout time.Duration
	fullPage   bool
	remotePort string
	chromePath string
	headful    bool
)

var rootCmd = &cobra.Command{
	Use:   "cspcheck",
	Short: "Verify Content Security Policy meta tags with headless Chrome",
	Long: `cspcheck loads each configured page in headless Chrome, reports whether it
declares a Content-Security-Policy meta tag, saves a screenshot, and lists
every console message that mentions "Content Security Policy".

The pages must already be served; see "cspcheck serve".

Example:
  # Check web/index.html and web/metrics.html on localhost:8000
  cspcheck

  # Check against another server and keep screenshots elsewhere
  cspcheck --base-url http://localhost:3000 --output ./shots

  # Use an already running Chrome (started with --remote-debugging-port=9222)
  cspcheck --port 9222`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Configuration file (default .cspcheck.yaml or $XDG_CONFIG_HOME/cspcheck/config.yaml)")

	// Target flags
	rootCmd.Flags().StringVar(&baseURL, "base-url", "",
		"Base URL the page paths are resolved against")
	rootCmd.Flags().DurationVarP(&navTimeout, "timeout", "t", 0,
		"Timeout for each browser operation")

	// Output flags
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "",
		"Directory for screenshots")
	rootCmd.Flags().BoolVar(&fullPage, "full-page", false,
		"Capture the full scrollable page instead of the viewport")

	// Browser flags
	rootCmd.Flags().StringVarP(&remotePort, "port", "p", "",
		"Attach to Chrome on this remote debugging port instead of launching one")
	rootCmd.Flags().StringVar(&chromePath, "chrome", "",
		"Path to the Chrome executable")
	rootCmd.Flags().BoolVar(&headful, "headful", false,
		"Show the browser window")

	rootCmd.Version = config.Version

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig resolves the configuration file and applies explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	if flags.Changed("timeout") {
		cfg.NavTimeout = navTimeout
	}
	if flags.Changed("output") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("full-page") {
		cfg.FullPage = fullPage
	}
	if flags.Changed("port") {
		cfg.RemotePort = remotePort
	}
	if flags.Changed("chrome") {
		cfg.ChromePath = chromePath
	}
	if flags.Changed("headful") {
		cfg.Headless = !headful
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			log.Println("Received shutdown signal...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Printf("cspcheck %s", config.Version)
	log.Printf("Screenshot directory: %s", cfg.OutputDir)
	if cfg.RemotePort != "" {
		log.Printf("Connecting to Chrome on port %s...", cfg.RemotePort)
	}

	// Findings are informational; only failures change the exit status.
	_, err = verify.New(cfg, cmd.OutOrStdout()).Run(ctx)
	return err
}

var inspectTimeout time.Duration

var inspectCmd = &cobra.Command{
	Use:   "inspect <file-or-url>...",
	Short: "Check raw HTML for a CSP meta tag without a browser",
	Long: `inspect parses HTML files or http(s) URLs and reports the first
Content-Security-Policy meta tag in each. Scripts are not run, so tags added
at runtime are not seen.

Example:
  cspcheck inspect web/index.html web/metrics.html
  cspcheck inspect http://localhost:8000/web/index.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, source := range args {
			result, err := htmlcheck.CheckSource(source, inspectTimeout)
			if err != nil {
				return err
			}

			verify.WriteFinding(out, &events.PageCheckResult{
				Name:    source,
				Found:   result.Found,
				Content: result.Content,
			})
			if result.Count > 1 {
				log.Printf("%s declares %d policies; only the first is shown", source, result.Count)
			}
		}
		return nil
	},
}

var (
	serveDir  string
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a directory over HTTP for verification",
	Long: `serve exposes a directory over HTTP so the default targets
(http://localhost:8000/web/index.html and /web/metrics.html) can be checked.

Example:
  cspcheck serve --dir .
  cspcheck serve --dir ./site --addr :3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		return server.Serve(ctx, serveAddr, serveDir)
	},
}

func init() {
	inspectCmd.Flags().DurationVarP(&inspectTimeout, "timeout", "t", 10*time.Second,
		"Timeout for fetching URLs")

	serveCmd.Flags().StringVarP(&serveDir, "dir", "d", ".", "Directory to serve")
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", server.DefaultAddr, "Address to listen on")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
