// Package artifact manages the files a verification run leaves on disk.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScreenshotPrefix is prepended to screenshot names derived from page names.
const ScreenshotPrefix = "csp_verification_"

// pngSignature is the 8-byte header every PNG file starts with.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrEmptyScreenshot is returned when the browser hands back no image data.
var ErrEmptyScreenshot = errors.New("empty screenshot data")

// SanitizeName converts a page name into a safe file name component.
func SanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	result := strings.Trim(replacer.Replace(name), "._")
	if result == "" {
		return "page"
	}

	// Leave room for the prefix and extension within the 255 byte limit.
	if limit := 255 - len(ScreenshotPrefix) - len(".png"); len(result) > limit {
		result = result[:limit]
	}

	return result
}

// ScreenshotName derives a screenshot file name from a page name:
// "metrics.html" becomes "csp_verification_metrics.png".
func ScreenshotName(pageName string) string {
	base := filepath.Base(pageName)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return ScreenshotPrefix + SanitizeName(stem) + ".png"
}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// WriteFile writes data to path, creating parent directories and replacing
// any existing file. The write goes through a temporary file in the same
// directory so a failed write never leaves a truncated image behind.
func WriteFile(path string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyScreenshot
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}
