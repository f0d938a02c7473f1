package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/yt-fetch-go/internal/domain"
	"go.uber.org/zap"
)

const cookieCloudTimeout = 10 * time.Second

// cookieRecord is one cookie as the CookieCloud server reports it
type cookieRecord struct {
	Domain         string  `json:"domain"`
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	ExpirationDate float64 `json:"expirationDate"`
}

// CookieCloudClient implements CredentialSyncer against a CookieCloud
// server. The password is posted with the request so the server returns the
// cookie payload already decrypted.
type CookieCloudClient struct {
	config     *domain.CookieCloudConfig
	cookiesDir string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCookieCloudClient creates a new CookieCloud client writing synced
// cookies under cookiesDir
func NewCookieCloudClient(config *domain.CookieCloudConfig, cookiesDir string, logger *zap.Logger) *CookieCloudClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CookieCloudClient{
		config:     config,
		cookiesDir: cookiesDir,
		httpClient: &http.Client{Timeout: cookieCloudTimeout},
		logger:     logger,
	}
}

// CookieFilePath returns the path the synced Netscape cookie file is
// written to
func (c *CookieCloudClient) CookieFilePath() string {
	return filepath.Join(c.cookiesDir, "cookies.txt")
}

// Sync pulls cookies for the configured domain from the CookieCloud server
// into the local cookie file
func (c *CookieCloudClient) Sync(ctx context.Context) (bool, string) {
	if !c.config.IsConfigured() {
		return false, "CookieCloud is not configured"
	}

	cookies, err := c.fetchDomainCookies(ctx)
	if err != nil {
		c.logger.Warn("CookieCloud fetch failed", zap.Error(err))
		return false, fmt.Sprintf("Failed to sync cookies from CookieCloud: %v", err)
	}
	if len(cookies) == 0 {
		return false, fmt.Sprintf("No cookies found for domain: %s", c.domain())
	}

	if err := writeNetscapeFile(c.CookieFilePath(), cookies); err != nil {
		c.logger.Warn("Failed to write cookie file", zap.Error(err))
		return false, fmt.Sprintf("Failed to save cookies: %v", err)
	}

	c.logger.Info("Synced cookies from CookieCloud",
		zap.Int("count", len(cookies)),
		zap.String("file", c.CookieFilePath()))
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	return true, fmt.Sprintf("Successfully synced %d cookies from CookieCloud at %s", len(cookies), timestamp)
}

// fetchDomainCookies asks the server for the decrypted cookie payload and
// filters it down to the configured domain
func (c *CookieCloudClient) fetchDomainCookies(ctx context.Context) ([]cookieRecord, error) {
	endpoint := strings.TrimRight(c.config.ServerURL, "/") + "/get/" + c.config.UUIDKey
	form := url.Values{"password": {c.config.Password}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status code: %d", resp.StatusCode)
	}

	var payload struct {
		CookieData map[string][]cookieRecord `json:"cookie_data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse cookie data: %w", err)
	}
	if len(payload.CookieData) == 0 {
		return nil, fmt.Errorf("no cookie data in response")
	}

	return filterDomainCookies(payload.CookieData, c.domain()), nil
}

func (c *CookieCloudClient) domain() string {
	if c.config.Domain != "" {
		return c.config.Domain
	}
	return "youtube.com"
}

// filterDomainCookies keeps cookies for the wanted domain and its
// subdomains. For youtube.com the google.com session cookies are included
// too, since playback auth spans both.
func filterDomainCookies(groups map[string][]cookieRecord, want string) []cookieRecord {
	var out []cookieRecord
	for syncDomain, cookies := range groups {
		switch {
		case strings.Contains(syncDomain, want),
			strings.HasSuffix(syncDomain, "."+want):
			out = append(out, cookies...)
		case want == "youtube.com" &&
			(strings.Contains(strings.ToLower(syncDomain), "youtube") ||
				strings.Contains(strings.ToLower(syncDomain), "google")):
			out = append(out, cookies...)
		}
	}
	return out
}

// writeNetscapeFile writes cookies in the Netscape format yt-dlp consumes
func writeNetscapeFile(path string, cookies []cookieRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	f.WriteString("# Netscape HTTP Cookie File\n")
	f.WriteString("# This file was generated by CookieCloud sync\n")
	f.WriteString("# http://curl.haxx.se/rfc/cookie_spec.html\n\n")

	for _, ck := range cookies {
		domainStr := ck.Domain
		includeSubdomains := "FALSE"
		if strings.HasPrefix(domainStr, ".") {
			includeSubdomains = "TRUE"
		} else {
			domainStr = "." + domainStr
		}

		cookiePath := ck.Path
		if cookiePath == "" {
			cookiePath = "/"
		}
		secure := "FALSE"
		if ck.Secure {
			secure = "TRUE"
		}
		expires := strconv.FormatInt(int64(ck.ExpirationDate), 10)

		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			domainStr, includeSubdomains, cookiePath, secure, expires, ck.Name, ck.Value)
		if _, err := f.WriteString(line); err != nil {
			return err
		}
	}

	return nil
}
