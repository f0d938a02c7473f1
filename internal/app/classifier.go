package app

import (
	"strings"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// FailureClassifier assigns a recovery class to a failure reported by the
// extraction engine. The engine surfaces failures as free text with no
// structured taxonomy, so implementations work from the message alone and
// can be swapped when the upstream wording changes.
type FailureClassifier interface {
	Classify(msg string) domain.FailureClass
}

// networkMarkers are the lexical fingerprints of transient transport
// failures as yt-dlp reports them.
var networkMarkers = []string{
	"connection reset",
	"connection aborted",
	"timed out",
	"timeout",
	"ssl",
	"tls",
	"network",
}

// LexicalClassifier is the default classifier. Markers are matched
// case-insensitively and evaluated in a fixed order: network first, then
// authorization, then format availability. Order matters because real
// engine messages can carry more than one marker ("HTTP Error 403 ...
// network unreachable") and the first match wins.
type LexicalClassifier struct{}

// Classify implements FailureClassifier
func (LexicalClassifier) Classify(msg string) domain.FailureClass {
	lower := strings.ToLower(msg)
	for _, marker := range networkMarkers {
		if strings.Contains(lower, marker) {
			return domain.ClassNetwork
		}
	}
	if strings.Contains(lower, "403") || strings.Contains(lower, "forbidden") {
		return domain.ClassAuthRequired
	}
	if strings.Contains(lower, "requested format is not available") {
		return domain.ClassFormatUnavailable
	}
	return domain.ClassOther
}
