package domain

import (
	"context"
	"time"
)

// ExtractRequest carries the parameters for a single acquisition attempt
type ExtractRequest struct {
	URL            string
	FormatSelector string
	OutputDir      string
	OutputTemplate string
	CookieFile     string
	Proxy          string
}

// ProgressFunc receives low-level progress events during an acquisition
// attempt. It is called from the worker goroutine running the attempt.
type ProgressFunc func(ev ProgressEvent)

// Extractor defines the contract with the external extraction/download engine
type Extractor interface {
	// ExtractAndDownload runs one acquisition attempt and returns the path
	// of the final artifact. On failure the error message carries the
	// engine's failure text for classification.
	ExtractAndDownload(ctx context.Context, req ExtractRequest, progress ProgressFunc) (string, error)
}

// CredentialSyncer defines the contract with the cloud credential store
type CredentialSyncer interface {
	// Sync pulls fresh credentials into the local cookie file. The message
	// describes the outcome either way.
	Sync(ctx context.Context) (ok bool, message string)
}

// BrowserCookieSource defines the contract for local browser credential extraction
type BrowserCookieSource interface {
	// Extract exports cookies from the given browser profile and returns
	// the path of the written cookie file, or "" if the browser store is
	// unavailable.
	Extract(ctx context.Context, browser string) (string, error)
}

// TranscodeDecider reports whether an artifact needs transcoding. The codec
// policy itself (e.g. AV1-only) lives behind this boundary.
type TranscodeDecider interface {
	ShouldTranscode(path string) bool
}

// Prober reports media duration
type Prober interface {
	// Duration returns the media duration in seconds, or 0 when it cannot
	// be determined.
	Duration(ctx context.Context, path string) float64
}

// TranscodeProcess is a handle on a running transcode subprocess
type TranscodeProcess interface {
	// Progress returns the stream of raw progress lines emitted by the
	// engine. The channel is closed when the process's output ends.
	Progress() <-chan string

	// Wait blocks until the process exits and returns its exit error
	Wait() error

	// Terminate asks the process to stop gracefully, escalating to a
	// forced kill if it is still alive after the grace window.
	Terminate(grace time.Duration)
}

// TranscodeEngine defines the contract with the external transcoding engine
type TranscodeEngine interface {
	// Start launches a transcode of input into output with the configured
	// template arguments placed between input and output.
	Start(ctx context.Context, input, output string, args []string) (TranscodeProcess, error)
}
