package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
	"github.com/yourusername/yt-fetch-go/pkg/logger"
)

// ErrShuttingDown is returned by Submit once shutdown has begun.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Orchestrator composes the task store, phase tracker, hook registry,
// recovery coordinator and transcode supervisor into the task lifecycle:
// submit, observe progress, recover from failures, complete, hand off to
// the transcoder, clean up.
//
// Blocking engine work runs under a worker semaphore so a fixed number of
// acquisitions execute at once regardless of how many tasks are in flight.
// A per-task monitor goroutine polls the record for terminal status and
// fires the completion side effects exactly once.
type Orchestrator struct {
	cfg         *domain.Config
	store       *TaskStore
	phases      *PhaseTracker
	hooks       *HookRegistry
	recovery    *RecoveryCoordinator
	transcoder  *TranscodeSupervisor
	extractor   domain.Extractor
	history     domain.HistoryRepository
	multiLogger *logger.MultiLogger
	logger      *zap.Logger

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator. transcoder, history and
// multiLogger may be nil; the corresponding side effects are skipped.
func NewOrchestrator(
	cfg *domain.Config,
	store *TaskStore,
	phases *PhaseTracker,
	hooks *HookRegistry,
	recovery *RecoveryCoordinator,
	transcoder *TranscodeSupervisor,
	extractor domain.Extractor,
	history domain.HistoryRepository,
	multiLogger *logger.MultiLogger,
	zl *zap.Logger,
) *Orchestrator {
	if zl == nil {
		zl = zap.NewNop()
	}
	workers := cfg.Download.Workers
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		phases:      phases,
		hooks:       hooks,
		recovery:    recovery,
		transcoder:  transcoder,
		extractor:   extractor,
		history:     history,
		multiLogger: multiLogger,
		logger:      zl,
		sem:         make(chan struct{}, workers),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit registers a task and schedules its acquisition. preassignedID may
// be empty, in which case an id is generated. hook, when non-nil, is bound
// before the first attempt can run so that recovery during the very first
// attempt is still observable.
func (o *Orchestrator) Submit(taskURL, formatSelector, preassignedID string, hook domain.NotificationHook) (string, error) {
	if o.ctx.Err() != nil {
		return "", ErrShuttingDown
	}
	if taskURL == "" {
		return "", errors.New("url is required")
	}
	selector := formatSelector
	if selector == "" {
		selector = o.cfg.Download.Format
	}

	task := domain.NewTask(preassignedID, taskURL, selector)
	if err := o.store.Create(task); err != nil {
		return "", err
	}
	if hook != nil {
		o.hooks.Register(task.ID, hook)
	}

	o.logger.Info("Task submitted",
		zap.String("id", task.ID),
		zap.String("url", taskURL),
		zap.String("format", selector))
	if o.multiLogger != nil {
		o.multiLogger.LogTaskEvent("task submitted",
			zap.String("id", task.ID),
			zap.String("url", taskURL))
	}

	o.wg.Add(1)
	go o.process(task.ID, taskURL)
	return task.ID, nil
}

// GetStatus returns a snapshot of the task record.
func (o *Orchestrator) GetStatus(id string) (domain.Task, bool) {
	return o.store.Get(id)
}

// Accepting reports whether new submissions are still accepted.
func (o *Orchestrator) Accepting() bool {
	return o.ctx.Err() == nil
}

// Active returns the number of live task records.
func (o *Orchestrator) Active() int {
	return o.store.Len()
}

// Tasks returns snapshots of every live task record.
func (o *Orchestrator) Tasks() []domain.Task {
	return o.store.Snapshots()
}

// CancelTranscode cancels the task's transcode job. deleteInput also removes
// the downloaded source file.
func (o *Orchestrator) CancelTranscode(id string, deleteInput bool) error {
	if o.transcoder == nil {
		return ErrTranscodeNotFound
	}
	return o.transcoder.Cancel(id, deleteInput)
}

// RegisterHook binds a notification hook to a task id.
func (o *Orchestrator) RegisterHook(id string, hook domain.NotificationHook) {
	o.hooks.Register(id, hook)
}

// RebindHook moves a hook between task ids after an id reassignment.
func (o *Orchestrator) RebindHook(oldID, newID string) {
	o.hooks.Rebind(oldID, newID)
}

// Cleanup removes every trace of the task: record, phase state and hook
// binding. Retry counters live and die with the recovery run itself. The
// monitor goroutine notices the missing record on its next tick and stops.
func (o *Orchestrator) Cleanup(id string) bool {
	removed := o.store.Remove(id)
	o.phases.Forget(id)
	o.hooks.Remove(id)
	if removed {
		o.logger.Info("Task cleaned up", zap.String("id", id))
	}
	return removed
}

// Close stops accepting submissions, aborts in-flight waits and drains all
// task goroutines, then shuts down the transcoder and the hook dispatcher.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
	if o.transcoder != nil {
		o.transcoder.Close()
	}
	o.hooks.Close()
}

func (o *Orchestrator) process(id, taskURL string) {
	defer o.wg.Done()

	o.wg.Add(1)
	go o.monitor(id, taskURL)

	select {
	case o.sem <- struct{}{}:
	case <-o.ctx.Done():
		return
	}
	defer func() { <-o.sem }()

	task, ok := o.store.Get(id)
	if !ok {
		return // cleaned up while queued
	}

	attempt := func(ctx context.Context, cookieFile string) (string, error) {
		return o.runAttempt(ctx, id, taskURL, task.Format, cookieFile)
	}

	path, err := o.recovery.Run(o.ctx, id, taskURL, attempt)
	if err != nil {
		var cerr *ClassifiedError
		if !errors.As(err, &cerr) {
			// shutdown or mid-flight cleanup
			o.logger.Warn("Acquisition aborted",
				zap.String("id", id),
				zap.Error(err))
			return
		}
		switch cerr.Class {
		case domain.ClassFormatUnavailable:
			path, err = o.runFallbackCascade(o.ctx, id, taskURL)
			if err != nil {
				o.surfaceTerminal(id, taskURL, domain.ClassFormatUnavailable, err)
				return
			}
		case domain.ClassOther:
			o.surfaceTerminal(id, taskURL, domain.ClassOther, cerr.Err)
			return
		default:
			// network/auth exhaustion was already surfaced by the coordinator
			return
		}
	}

	o.finishAcquisition(id, path)
}

// runAttempt performs one engine invocation under a fresh attempt epoch.
// Progress callbacks are tagged with the epoch so that events from a
// superseded attempt can no longer touch the record.
func (o *Orchestrator) runAttempt(ctx context.Context, id, taskURL, selector, cookieFile string) (string, error) {
	var epoch int
	if !o.store.Mutate(id, func(t *domain.Task) {
		epoch = t.BeginAttempt()
		t.MarkDownloading()
	}) {
		return "", fmt.Errorf("task removed: %s", id)
	}

	if cookieFile == "" {
		cookieFile = o.cfg.Download.CookieFile
	}
	req := domain.ExtractRequest{
		URL:            taskURL,
		FormatSelector: selector,
		OutputDir:      o.cfg.Download.BaseDir,
		OutputTemplate: o.cfg.Download.OutputTemplate,
		CookieFile:     cookieFile,
		Proxy:          o.cfg.Download.Proxy,
	}
	progress := func(ev domain.ProgressEvent) {
		update, ok := o.phases.Apply(id, ev)
		if !ok {
			return
		}
		o.store.MutateAttempt(id, epoch, func(t *domain.Task) {
			t.Status = update.Status
			if update.Filename != "" {
				t.Filename = update.Filename
			}
			t.Progress = update.Progress
		})
	}
	return o.extractor.ExtractAndDownload(ctx, req, progress)
}

// runFallbackCascade tries progressively more permissive format selectors.
// Attempts are independent: not retry-counted, no backoff, first success
// wins and its selector is written back to the record.
func (o *Orchestrator) runFallbackCascade(ctx context.Context, id, taskURL string) (string, error) {
	var lastErr error
	for _, selector := range o.cfg.Download.FallbackFormats {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		o.logger.Info("Trying fallback format",
			zap.String("id", id),
			zap.String("format", selector))
		path, err := o.runAttempt(ctx, id, taskURL, selector, "")
		if err == nil {
			o.store.Mutate(id, func(t *domain.Task) { t.Format = selector })
			return path, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no fallback formats configured")
	}
	return "", fmt.Errorf("all fallback formats failed, last error: %w", lastErr)
}

func (o *Orchestrator) finishAcquisition(id, path string) {
	o.store.Mutate(id, func(t *domain.Task) {
		if t.IsTerminal() {
			return
		}
		t.MarkCompleted(path)
	})
	o.logger.Info("Acquisition completed",
		zap.String("id", id),
		zap.String("file", path))
	if o.multiLogger != nil {
		o.multiLogger.LogTaskEvent("acquisition completed",
			zap.String("id", id),
			zap.String("file", path))
	}
}

// surfaceTerminal records a terminal failure and sends its single final
// notification.
func (o *Orchestrator) surfaceTerminal(id, taskURL string, class domain.FailureClass, cause error) {
	o.store.Mutate(id, func(t *domain.Task) {
		if t.IsTerminal() {
			return
		}
		t.MarkError(class, cause)
	})
	o.hooks.Invoke(id, domain.Notification{
		TaskID: id,
		URL:    taskURL,
		Status: cause.Error(),
		Final:  true,
	})
	o.logger.Error("Task failed",
		zap.String("id", id),
		zap.String("class", string(class)),
		zap.Error(cause))
	if o.multiLogger != nil {
		o.multiLogger.LogAppError("task failed",
			zap.String("id", id),
			zap.String("class", string(class)),
			zap.Error(cause))
	}
}

// monitor polls the record until it reaches a terminal state, then fires
// the terminal side effects once: completion notification, history record,
// transcode hand-off. It stops silently when the record disappears.
func (o *Orchestrator) monitor(id, taskURL string) {
	defer o.wg.Done()

	interval := o.cfg.Download.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
		}

		task, ok := o.store.Get(id)
		if !ok {
			return
		}
		switch task.Status {
		case domain.StatusCompleted:
			o.hooks.Invoke(id, domain.Notification{
				TaskID:  id,
				URL:     taskURL,
				Status:  "Download completed",
				Attempt: task.Attempt,
				Final:   true,
				Success: true,
			})
			o.writeHistory(task)
			o.maybeTranscode(task)
			return
		case domain.StatusError:
			o.writeHistory(task)
			return
		case domain.StatusCancelled:
			return
		}
	}
}

func (o *Orchestrator) maybeTranscode(task domain.Task) {
	if o.transcoder == nil || !o.cfg.Transcode.Enabled || task.FilePath == "" {
		return
	}
	if o.transcoder.Submit(o.ctx, task.ID, task.FilePath) {
		o.logger.Info("Task handed off to transcoder",
			zap.String("id", task.ID),
			zap.String("input", task.FilePath))
	}
}

func (o *Orchestrator) writeHistory(task domain.Task) {
	if o.history == nil {
		return
	}
	entry := &domain.HistoryEntry{
		ID:           task.ID,
		URL:          task.URL,
		Title:        titleFromFilename(task.Filename),
		Status:       string(task.Status),
		FilePath:     task.FilePath,
		Source:       sourceFromURL(task.URL),
		ErrorMessage: task.Error,
		DownloadedAt: time.Now(),
	}
	if task.FilePath != "" {
		if info, err := os.Stat(task.FilePath); err == nil {
			entry.FileSize = info.Size()
		}
	}
	if err := o.history.Create(entry); err != nil {
		o.logger.Warn("Failed to record history",
			zap.String("id", task.ID),
			zap.Error(err))
	}
}

func titleFromFilename(filename string) string {
	if filename == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}

func sourceFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return host
}
