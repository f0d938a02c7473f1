package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Download    DownloadConfig    `mapstructure:"download"`
	Recovery    RecoveryConfig    `mapstructure:"recovery"`
	CookieCloud CookieCloudConfig `mapstructure:"cookiecloud"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Transcode   TranscodeConfig   `mapstructure:"transcode"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains acquisition-related configuration
type DownloadConfig struct {
	BaseDir         string        `mapstructure:"base_dir"`
	CookiesDir      string        `mapstructure:"cookies_dir"`
	LogsDir         string        `mapstructure:"logs_dir"`
	ConfigDir       string        `mapstructure:"config_dir"`
	OutputTemplate  string        `mapstructure:"output_template"`
	Format          string        `mapstructure:"format"`
	FallbackFormats []string      `mapstructure:"fallback_formats"`
	Workers         int           `mapstructure:"workers"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	YTDLPBinary     string        `mapstructure:"ytdlp_binary"`
	Proxy           string        `mapstructure:"proxy"`
	CookieFile      string        `mapstructure:"cookie_file"`
}

// RecoveryConfig contains retry/recovery configuration
type RecoveryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	BackoffStep time.Duration `mapstructure:"backoff_step"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
}

// CookieCloudConfig contains cloud credential sync configuration
type CookieCloudConfig struct {
	ServerURL string `mapstructure:"server_url"`
	UUIDKey   string `mapstructure:"uuid_key"`
	Password  string `mapstructure:"password"`
	Domain    string `mapstructure:"domain"`
}

// IsConfigured reports whether all required CookieCloud settings are present
func (c CookieCloudConfig) IsConfigured() bool {
	return c.ServerURL != "" && c.UUIDKey != "" && c.Password != ""
}

// BrowserConfig contains local browser cookie extraction configuration
type BrowserConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Browser string `mapstructure:"browser"` // firefox, chrome, etc.
}

// TranscodeConfig contains post-download transcode configuration
type TranscodeConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	AV1Only       bool          `mapstructure:"av1_only"`
	Command       string        `mapstructure:"command"` // args between input and output
	OutputFormat  string        `mapstructure:"output_format"`
	FFmpegBinary  string        `mapstructure:"ffmpeg_binary"`
	FFprobeBinary string        `mapstructure:"ffprobe_binary"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	Workers       int           `mapstructure:"workers"`
}

// HistoryConfig contains history persistence configuration
type HistoryConfig struct {
	DatabasePath string `mapstructure:"database_path"`
	MaxEntries   int    `mapstructure:"max_entries"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			BaseDir:         "$HOME/Downloads/yt-fetch",
			CookiesDir:      "$HOME/Downloads/yt-fetch/cookies",
			LogsDir:         "$HOME/Downloads/yt-fetch/logs",
			ConfigDir:       "$HOME/Downloads/yt-fetch/config",
			OutputTemplate:  "%(title)s.%(ext)s",
			Format:          "bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best",
			FallbackFormats: []string{"best[ext=mp4]", "worst[ext=mp4]", "best", "worst"},
			Workers:         3,
			PollInterval:    5 * time.Second,
			YTDLPBinary:     "yt-dlp",
		},
		Recovery: RecoveryConfig{
			MaxRetries:  3,
			SettleDelay: 2 * time.Second,
			BackoffStep: 10 * time.Second,
			BackoffCap:  30 * time.Second,
		},
		CookieCloud: CookieCloudConfig{
			Domain: "youtube.com",
		},
		Browser: BrowserConfig{
			Enabled: true,
			Browser: "firefox",
		},
		Transcode: TranscodeConfig{
			Enabled:       false,
			AV1Only:       true,
			Command:       "-c:v libx264 -preset medium -crf 23 -c:a aac -b:a 192k",
			OutputFormat:  "mp4",
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			GracePeriod:   3 * time.Second,
			Workers:       2,
		},
		History: HistoryConfig{
			DatabasePath: "$HOME/Downloads/yt-fetch/config/history.db",
			MaxEntries:   100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
