package infrastructure

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCookies = "# Netscape HTTP Cookie File\n" +
	".youtube.com\tTRUE\t/\tTRUE\t1735689600\tSID\tabc\n"

func TestValidNetscapeCookies(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{
			name:    "valid file",
			content: sampleCookies,
			want:    true,
		},
		{
			name:    "alternate header",
			content: "# HTTP Cookie File\n.youtube.com\tTRUE\t/\tTRUE\t0\ta\tb\n",
			want:    true,
		},
		{
			name:    "header only",
			content: "# Netscape HTTP Cookie File\n",
			want:    false,
		},
		{
			name:    "missing header",
			content: ".youtube.com\tTRUE\t/\tTRUE\t0\ta\tb\n",
			want:    false,
		},
		{
			name:    "wrong field count",
			content: "# Netscape HTTP Cookie File\n.youtube.com\tTRUE\t/\n",
			want:    false,
		},
		{
			name:    "empty",
			content: "",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validNetscapeCookies(tt.content))
		})
	}
}

func TestBrowserExtract_UsesFreshCache(t *testing.T) {
	// A bogus binary proves the engine is never invoked when the cache
	// is fresh
	b := NewBrowserCookieExtractor("definitely-not-a-binary", t.TempDir(), nil)
	require.NoError(t, os.WriteFile(b.CookieFilePath(), []byte(sampleCookies), 0644))

	path, err := b.Extract(context.Background(), "firefox")
	require.NoError(t, err)
	assert.Equal(t, b.CookieFilePath(), path)
}

func TestBrowserExtract_StaleCacheTriggersExport(t *testing.T) {
	b := NewBrowserCookieExtractor("definitely-not-a-binary", t.TempDir(), nil)
	require.NoError(t, os.WriteFile(b.CookieFilePath(), []byte(sampleCookies), 0644))

	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(b.CookieFilePath(), stale, stale))

	_, err := b.Extract(context.Background(), "firefox")
	assert.Error(t, err)
}

func TestBrowserExtract_MissingBinary(t *testing.T) {
	b := NewBrowserCookieExtractor("definitely-not-a-binary", t.TempDir(), nil)

	path, err := b.Extract(context.Background(), "firefox")
	assert.Error(t, err)
	assert.Empty(t, path)
	assert.Contains(t, err.Error(), "firefox")
}

func TestBrowserExtract_DefaultsToFirefox(t *testing.T) {
	b := NewBrowserCookieExtractor("definitely-not-a-binary", t.TempDir(), nil)
	require.NoError(t, os.WriteFile(b.CookieFilePath(), []byte(sampleCookies), 0644))

	path, err := b.Extract(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}
