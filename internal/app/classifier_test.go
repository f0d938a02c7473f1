package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

func TestLexicalClassifier_Classify(t *testing.T) {
	c := LexicalClassifier{}

	tests := []struct {
		name string
		msg  string
		want domain.FailureClass
	}{
		{
			name: "connection reset",
			msg:  "ERROR: Connection reset by peer",
			want: domain.ClassNetwork,
		},
		{
			name: "connection aborted",
			msg:  "urlopen error: connection aborted",
			want: domain.ClassNetwork,
		},
		{
			name: "read timed out",
			msg:  "ERROR: Unable to download webpage: The read operation timed out",
			want: domain.ClassNetwork,
		},
		{
			name: "timeout",
			msg:  "urlopen error: timeout",
			want: domain.ClassNetwork,
		},
		{
			name: "tls handshake",
			msg:  "TLS handshake failure",
			want: domain.ClassNetwork,
		},
		{
			name: "ssl error",
			msg:  "SSL: CERTIFICATE_VERIFY_FAILED",
			want: domain.ClassNetwork,
		},
		{
			name: "generic network",
			msg:  "ERROR: network is unreachable",
			want: domain.ClassNetwork,
		},
		{
			name: "http 403",
			msg:  "ERROR: unable to download video data: HTTP Error 403: Forbidden",
			want: domain.ClassAuthRequired,
		},
		{
			name: "bare forbidden",
			msg:  "ERROR: fragment 1 not found, unable to continue: FORBIDDEN",
			want: domain.ClassAuthRequired,
		},
		{
			name: "format unavailable",
			msg:  "ERROR: Requested format is not available. Use --list-formats for a list of available formats",
			want: domain.ClassFormatUnavailable,
		},
		{
			name: "unknown error",
			msg:  "ERROR: Video unavailable. This video is private",
			want: domain.ClassOther,
		},
		{
			name: "empty message",
			msg:  "",
			want: domain.ClassOther,
		},
		{
			name: "network marker wins over 403",
			msg:  "HTTP Error 403 after connection reset",
			want: domain.ClassNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.msg))
		})
	}
}
