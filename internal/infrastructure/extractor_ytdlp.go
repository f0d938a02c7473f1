package infrastructure

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/yt-fetch-go/internal/domain"
	"go.uber.org/zap"
)

// Progress line shapes emitted by yt-dlp in --newline mode. The completion
// line uses "in <elapsed>" where ticks use "ETA <eta>", which is how the two
// are told apart.
var (
	destinationPattern = regexp.MustCompile(`^\[download\] Destination: (.+)$`)
	completionPattern  = regexp.MustCompile(`^\[download\] 100(?:\.0)?% of ~?\s*([\d.]+)(\w+) in `)
	tickPattern        = regexp.MustCompile(`^\[download\]\s+([\d.]+)% of ~?\s*([\d.]+)(\w+)(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)
	mergerPattern      = regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`)
	alreadyPattern     = regexp.MustCompile(`^\[download\] (.+) has already been downloaded`)
)

const stderrTailLines = 8

// YTDLPExtractor implements Extractor by running the configured yt-dlp
// binary and translating its line output into progress events. Raw engine
// output is mirrored into a per-day download log.
type YTDLPExtractor struct {
	config *domain.DownloadConfig
	logger *zap.Logger
}

// NewYTDLPExtractor creates a new yt-dlp backed extractor
func NewYTDLPExtractor(config *domain.DownloadConfig, logger *zap.Logger) *YTDLPExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLPExtractor{
		config: config,
		logger: logger,
	}
}

// ExtractAndDownload runs one acquisition attempt. The returned path is the
// final artifact: the merge output when the engine merged streams, otherwise
// the last download destination.
func (e *YTDLPExtractor) ExtractAndDownload(ctx context.Context, req domain.ExtractRequest, progress domain.ProgressFunc) (string, error) {
	if req.URL == "" {
		return "", fmt.Errorf("url is required")
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	args := e.buildArgs(req)

	downloadLog, err := e.openLogFile()
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	defer downloadLog.Close()

	cmdLine := ShellEscapeCommand(e.config.YTDLPBinary, args...)
	e.writeLogHeader(downloadLog, req.URL, cmdLine)
	e.logger.Debug("Starting extraction engine",
		zap.String("url", req.URL),
		zap.String("format", req.FormatSelector))

	cmd := exec.CommandContext(ctx, e.config.YTDLPBinary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		e.writeLogFooter(downloadLog, false, fmt.Sprintf("failed to start yt-dlp: %v", err))
		return "", fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var (
		wg        sync.WaitGroup
		finalPath string
		errTail   []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		finalPath = e.consumeStdout(stdout, downloadLog, progress)
	}()
	go func() {
		defer wg.Done()
		errTail = e.consumeStderr(stderr, downloadLog)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			e.writeLogFooter(downloadLog, false, "aborted")
			return "", ctx.Err()
		}
		msg := failureMessage(errTail, err)
		e.writeLogFooter(downloadLog, false, msg)
		return "", fmt.Errorf("yt-dlp failed: %s", msg)
	}

	if finalPath == "" {
		e.writeLogFooter(downloadLog, false, "no output file reported")
		return "", fmt.Errorf("yt-dlp reported no output file")
	}

	e.writeLogFooter(downloadLog, true, "Downloaded: "+finalPath)
	return finalPath, nil
}

// buildArgs assembles the engine command line for one attempt
func (e *YTDLPExtractor) buildArgs(req domain.ExtractRequest) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-warnings",
		"--progress",
		"--geo-bypass",
		"-f", req.FormatSelector,
		"-o", req.OutputTemplate,
		"-P", req.OutputDir,
	}

	if req.CookieFile != "" && fileExists(req.CookieFile) {
		args = append(args, "--cookies", req.CookieFile)
	}
	if req.Proxy != "" {
		args = append(args, "--proxy", req.Proxy)
	}

	return append(args, req.URL)
}

// consumeStdout scans engine output, forwarding progress events and
// remembering the final artifact path. Non-progress lines are mirrored into
// the download log; per-tick lines are not, to keep the log readable.
func (e *YTDLPExtractor) consumeStdout(r io.Reader, log *os.File, progress domain.ProgressFunc) string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var currentFile string
	var lastDestination string
	var mergedPath string

	emit := func(ev domain.ProgressEvent) {
		if progress != nil {
			progress(ev)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := destinationPattern.FindStringSubmatch(line); m != nil {
			lastDestination = m[1]
			currentFile = filepath.Base(m[1])
			fmt.Fprintln(log, line)
			continue
		}

		if m := mergerPattern.FindStringSubmatch(line); m != nil {
			mergedPath = m[1]
			fmt.Fprintln(log, line)
			continue
		}

		if m := alreadyPattern.FindStringSubmatch(line); m != nil {
			lastDestination = m[1]
			fmt.Fprintln(log, line)
			continue
		}

		if m := completionPattern.FindStringSubmatch(line); m != nil {
			total := parseByteSize(m[1], m[2])
			emit(domain.ProgressEvent{
				Kind:            domain.EventFileFinished,
				Filename:        currentFile,
				Percent:         100,
				DownloadedBytes: total,
				TotalBytes:      total,
			})
			continue
		}

		if m := tickPattern.FindStringSubmatch(line); m != nil {
			percent, _ := strconv.ParseFloat(m[1], 64)
			total := parseByteSize(m[2], m[3])
			emit(domain.ProgressEvent{
				Kind:            domain.EventTick,
				Filename:        currentFile,
				Percent:         percent,
				DownloadedBytes: int64(percent / 100 * float64(total)),
				TotalBytes:      total,
				Speed:           parseSpeed(m[4]),
				ETASeconds:      parseClock(m[5]),
			})
			continue
		}

		fmt.Fprintln(log, line)
	}

	if mergedPath != "" {
		return mergedPath
	}
	return lastDestination
}

// consumeStderr mirrors engine errors into the download log and keeps the
// tail for the failure message
func (e *YTDLPExtractor) consumeStderr(r io.Reader, log *os.File) []string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var tail []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Fprintln(log, line)
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}
	return tail
}

// failureMessage digs the engine's own error text out of the stderr tail so
// the failure can be classified. Falls back to the exit error.
func failureMessage(tail []string, waitErr error) string {
	for i := len(tail) - 1; i >= 0; i-- {
		if strings.HasPrefix(tail[i], "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(tail[i], "ERROR:"))
		}
	}
	if len(tail) > 0 {
		return strings.Join(tail, "; ")
	}
	return waitErr.Error()
}

// parseByteSize converts yt-dlp's human sizes ("10.00" + "MiB") into bytes
func parseByteSize(value, unit string) int64 {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(strings.TrimSuffix(unit, "/s")) {
	case "B":
		return int64(n)
	case "KIB", "KB":
		return int64(n * 1024)
	case "MIB", "MB":
		return int64(n * 1024 * 1024)
	case "GIB", "GB":
		return int64(n * 1024 * 1024 * 1024)
	case "TIB", "TB":
		return int64(n * 1024 * 1024 * 1024 * 1024)
	}
	return int64(n)
}

// parseSpeed converts "1.20MiB/s" into bytes per second, 0 when unknown
func parseSpeed(s string) float64 {
	s = strings.TrimSuffix(s, "/s")
	if s == "" || strings.EqualFold(s, "Unknown") {
		return 0
	}
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if i <= 0 {
		return 0
	}
	return float64(parseByteSize(s[:i], s[i:]))
}

// parseClock converts "05", "01:23" or "01:02:03" into seconds, 0 when
// unknown
func parseClock(s string) int64 {
	if s == "" || strings.EqualFold(s, "Unknown") {
		return 0
	}
	var total int64
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// openLogFile opens the engine output log for today. All raw engine output
// except per-tick progress goes to this single file.
func (e *YTDLPExtractor) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(e.config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	dateStr := time.Now().Format("20060102")
	downloadPath := filepath.Join(e.config.LogsDir, "download-"+dateStr+".log")
	return os.OpenFile(downloadPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// writeLogHeader writes the attempt start marker
func (e *YTDLPExtractor) writeLogHeader(file *os.File, url, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	file.WriteString(fmt.Sprintf("\n=== [%s] Download: %s ===\n", timestamp, url))
	file.WriteString(fmt.Sprintf("$ %s\n", cmdLine))
}

// writeLogFooter writes the attempt end marker
func (e *YTDLPExtractor) writeLogFooter(file *os.File, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	file.WriteString(fmt.Sprintf("[%s] %s: %s\n", timestamp, status, message))
	file.WriteString("=== END ===\n\n")
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
