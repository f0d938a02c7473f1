package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/yt-fetch-go/internal/domain"
	"go.uber.org/zap"
)

const probeTimeout = 10 * time.Second

// durationPattern matches ffmpeg's banner line "Duration: 00:01:23.45".
// The fractional part is centiseconds.
var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// videoStreamPattern pulls the codec name out of ffmpeg's stream banner,
// e.g. "Stream #0:0(und): Video: av1 (Main) ...".
var videoStreamPattern = regexp.MustCompile(`Stream.*Video:\s*(\w+)`)

// FFmpegEngine implements TranscodeEngine by running the configured ffmpeg
// binary with machine-readable progress on stdout.
type FFmpegEngine struct {
	binary string
	logger *zap.Logger
}

// NewFFmpegEngine creates a new ffmpeg backed transcode engine
func NewFFmpegEngine(binary string, logger *zap.Logger) *FFmpegEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegEngine{
		binary: binary,
		logger: logger,
	}
}

// Start launches ffmpeg on input, placing the template args between input
// and output
func (e *FFmpegEngine) Start(ctx context.Context, input, output string, args []string) (domain.TranscodeProcess, error) {
	full := append([]string{"-hide_banner", "-y", "-i", input}, args...)
	full = append(full, "-progress", "pipe:1", "-nostats", output)

	e.logger.Debug("Starting transcode engine",
		zap.String("input", input),
		zap.String("output", output))

	cmd := exec.CommandContext(ctx, e.binary, full...)

	proc := &ffmpegProcess{
		cmd:    cmd,
		lines:  make(chan string, 64),
		exited: make(chan struct{}),
	}
	cmd.Stderr = &proc.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			proc.lines <- strings.TrimSpace(scanner.Text())
		}
		close(proc.lines)
	}()

	return proc, nil
}

// ffmpegProcess is the handle on one running ffmpeg subprocess
type ffmpegProcess struct {
	cmd    *exec.Cmd
	lines  chan string
	stderr bytes.Buffer
	exited chan struct{}
}

// Progress returns the raw -progress key=value line stream
func (p *ffmpegProcess) Progress() <-chan string {
	return p.lines
}

// Wait blocks until ffmpeg exits. The exit error carries the last stderr
// line so failures are actionable.
func (p *ffmpegProcess) Wait() error {
	err := p.cmd.Wait()
	close(p.exited)
	if err != nil {
		if detail := lastLine(p.stderr.String()); detail != "" {
			return fmt.Errorf("%w: %s", err, detail)
		}
	}
	return err
}

// Terminate asks ffmpeg to stop, escalating to a kill when it is still
// alive after the grace window
func (p *ffmpegProcess) Terminate(grace time.Duration) {
	if p.cmd.Process == nil {
		return
	}
	p.cmd.Process.Signal(os.Interrupt)

	select {
	case <-p.exited:
	case <-time.After(grace):
		p.cmd.Process.Kill()
	}
}

// lastLine returns the last non-empty line of s
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// FFprobeProber reports media duration, asking ffprobe first and falling
// back to parsing ffmpeg's banner output
type FFprobeProber struct {
	ffprobeBinary string
	ffmpegBinary  string
	logger        *zap.Logger
}

// NewFFprobeProber creates a new duration prober
func NewFFprobeProber(ffprobeBinary, ffmpegBinary string, logger *zap.Logger) *FFprobeProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFprobeProber{
		ffprobeBinary: ffprobeBinary,
		ffmpegBinary:  ffmpegBinary,
		logger:        logger,
	}
}

// Duration returns the media duration in seconds, 0 when it cannot be
// determined
func (p *FFprobeProber) Duration(ctx context.Context, path string) float64 {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path)
	out, err := cmd.Output()
	if err == nil {
		if d, perr := strconv.ParseFloat(strings.TrimSpace(string(out)), 64); perr == nil && d > 0 {
			return d
		}
	} else {
		p.logger.Debug("ffprobe duration failed, falling back to ffmpeg",
			zap.String("path", path),
			zap.Error(err))
	}

	return p.durationFromBanner(ctx, path)
}

// durationFromBanner runs ffmpeg -i and parses the Duration line from its
// stderr. ffmpeg exits nonzero without an output file, which is expected.
func (p *FFprobeProber) durationFromBanner(ctx context.Context, path string) float64 {
	cmd := exec.CommandContext(ctx, p.ffmpegBinary, "-hide_banner", "-i", path)
	out, _ := cmd.CombinedOutput()
	return parseDurationBanner(string(out))
}

// parseDurationBanner extracts seconds from an ffmpeg banner dump
func parseDurationBanner(out string) float64 {
	m := durationPattern.FindStringSubmatch(out)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])
	return float64(hours*3600+minutes*60+seconds) + float64(centis)/100
}

// AV1Decider implements TranscodeDecider: with av1Only set, only artifacts
// whose video stream is AV1 are transcoded; otherwise everything is.
type AV1Decider struct {
	av1Only       bool
	ffprobeBinary string
	ffmpegBinary  string
	logger        *zap.Logger
}

// NewAV1Decider creates a new codec-based transcode decider
func NewAV1Decider(av1Only bool, ffprobeBinary, ffmpegBinary string, logger *zap.Logger) *AV1Decider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AV1Decider{
		av1Only:       av1Only,
		ffprobeBinary: ffprobeBinary,
		ffmpegBinary:  ffmpegBinary,
		logger:        logger,
	}
}

// ShouldTranscode implements TranscodeDecider
func (d *AV1Decider) ShouldTranscode(path string) bool {
	if !d.av1Only {
		return true
	}

	codec := d.detectVideoCodec(path)
	if codec == "" {
		d.logger.Warn("Could not detect video codec, skipping transcode",
			zap.String("path", path))
		return false
	}

	d.logger.Debug("Detected video codec",
		zap.String("path", path),
		zap.String("codec", codec))
	return isAV1Codec(codec)
}

// detectVideoCodec asks ffprobe for the first video stream's codec name,
// falling back to ffmpeg's stream banner
func (d *AV1Decider) detectVideoCodec(path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffprobeBinary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err == nil {
		if codec := strings.TrimSpace(string(out)); codec != "" {
			return strings.ToLower(codec)
		}
	}

	cmd = exec.CommandContext(ctx, d.ffmpegBinary, "-hide_banner", "-i", path)
	banner, _ := cmd.CombinedOutput()
	if m := videoStreamPattern.FindStringSubmatch(string(banner)); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// isAV1Codec reports whether the codec name is one of the AV1 spellings
func isAV1Codec(codec string) bool {
	switch codec {
	case "av1", "av01", "libaom-av1":
		return true
	}
	return false
}
