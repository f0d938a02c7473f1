package infrastructure

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Exported cookies go stale quickly (session rotation), so the cache is
// refreshed ahead of the usual 30 minute expiry.
const browserCookieRefresh = 25 * time.Minute

const browserProbeURL = "https://www.youtube.com/"

// BrowserCookieExtractor implements BrowserCookieSource by delegating the
// export to the extraction engine's --cookies-from-browser facility.
type BrowserCookieExtractor struct {
	binary     string
	cookiesDir string
	logger     *zap.Logger
}

// NewBrowserCookieExtractor creates a new browser cookie source writing
// exports under cookiesDir
func NewBrowserCookieExtractor(binary, cookiesDir string, logger *zap.Logger) *BrowserCookieExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserCookieExtractor{
		binary:     binary,
		cookiesDir: cookiesDir,
		logger:     logger,
	}
}

// CookieFilePath returns the path the exported cookie file is written to
func (b *BrowserCookieExtractor) CookieFilePath() string {
	return filepath.Join(b.cookiesDir, "browser_cookies.txt")
}

// Extract exports cookies from the given browser profile and returns the
// written cookie file. A recent previous export is reused.
func (b *BrowserCookieExtractor) Extract(ctx context.Context, browser string) (string, error) {
	if browser == "" {
		browser = "firefox"
	}

	out := b.CookieFilePath()
	if b.cacheFresh(out) {
		b.logger.Debug("Using cached browser cookies", zap.String("file", out))
		return out, nil
	}

	if err := os.MkdirAll(b.cookiesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cookies directory: %w", err)
	}

	args := []string{
		"--cookies-from-browser", browser,
		"--cookies", out,
		"--skip-download",
		"--no-warnings",
		"--quiet",
		browserProbeURL,
	}

	b.logger.Info("Extracting browser cookies", zap.String("browser", browser))

	cmd := exec.CommandContext(ctx, b.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := lastLine(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		b.logger.Warn("Browser cookie extraction failed",
			zap.String("browser", browser),
			zap.String("detail", detail))
		return "", fmt.Errorf("cookie extraction from %s failed: %s", browser, detail)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("no cookies were extracted from %s", browser)
	}
	if !validNetscapeCookies(string(data)) {
		os.Remove(out)
		return "", fmt.Errorf("no cookies were extracted from %s", browser)
	}

	return out, nil
}

// cacheFresh reports whether a previous export is recent enough to reuse
func (b *BrowserCookieExtractor) cacheFresh(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || time.Since(fi.ModTime()) > browserCookieRefresh {
		return false
	}
	data, err := os.ReadFile(path)
	return err == nil && validNetscapeCookies(string(data))
}

// validNetscapeCookies checks the Netscape cookie file shape: a recognised
// header and at least one 7-field entry
func validNetscapeCookies(content string) bool {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return false
	}
	if !strings.HasPrefix(lines[0], "# Netscape HTTP Cookie File") &&
		!strings.HasPrefix(lines[0], "# HTTP Cookie File") {
		return false
	}

	entries := 0
	for _, line := range lines[1:] {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(strings.Split(line, "\t")) != 7 {
			return false
		}
		entries++
	}
	return entries > 0
}
