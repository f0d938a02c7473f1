package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// ErrTranscodeNotFound is returned by Cancel when the task has no live
// transcode job.
var ErrTranscodeNotFound = errors.New("transcode job not found")

type transcodeJob struct {
	taskID string
	input  string
	output string
	done   chan struct{}

	mu          sync.Mutex
	proc        domain.TranscodeProcess
	cancelled   bool
	deleteInput bool
}

func (j *transcodeJob) isCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// TranscodeSupervisor runs the external transcoding engine over completed
// acquisitions. At most cfg.Workers transcodes run at once; further jobs
// queue. Transcode failures never touch the acquisition outcome: the task
// keeps its completed status and its original file on any path except a
// clean engine exit.
type TranscodeSupervisor struct {
	cfg     domain.TranscodeConfig
	engine  domain.TranscodeEngine
	decider domain.TranscodeDecider
	prober  domain.Prober
	store   *TaskStore
	logger  *zap.Logger

	mu   sync.Mutex
	jobs map[string]*transcodeJob
	sem  chan struct{}
	wg   sync.WaitGroup
}

func NewTranscodeSupervisor(
	cfg domain.TranscodeConfig,
	engine domain.TranscodeEngine,
	decider domain.TranscodeDecider,
	prober domain.Prober,
	store *TaskStore,
	logger *zap.Logger,
) *TranscodeSupervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &TranscodeSupervisor{
		cfg:     cfg,
		engine:  engine,
		decider: decider,
		prober:  prober,
		store:   store,
		logger:  logger,
		jobs:    make(map[string]*transcodeJob),
		sem:     make(chan struct{}, workers),
	}
}

// OutputPath returns the transcode target for an input file, next to it:
// <stem>_transcoded.<output format>.
func (s *TranscodeSupervisor) OutputPath(input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name := fmt.Sprintf("%s_transcoded.%s", stem, s.cfg.OutputFormat)
	return filepath.Join(filepath.Dir(input), name)
}

// Submit hands a finished acquisition to the transcoder. It returns false,
// leaving the task record untouched, when the input does not need
// transcoding or the task already has a job.
func (s *TranscodeSupervisor) Submit(ctx context.Context, taskID, input string) bool {
	if s.decider != nil && !s.decider.ShouldTranscode(input) {
		return false
	}

	job := &transcodeJob{
		taskID: taskID,
		input:  input,
		output: s.OutputPath(input),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if _, exists := s.jobs[taskID]; exists {
		s.mu.Unlock()
		return false
	}
	s.jobs[taskID] = job
	s.mu.Unlock()

	s.store.Mutate(taskID, func(t *domain.Task) {
		t.Transcode = &domain.TranscodeState{
			Status:     domain.TranscodeQueued,
			InputPath:  job.input,
			OutputPath: job.output,
		}
	})
	s.logger.Info("Transcode queued",
		zap.String("id", taskID),
		zap.String("input", job.input),
		zap.String("output", job.output))

	s.wg.Add(1)
	go s.run(ctx, job)
	return true
}

// Cancel terminates the task's transcode: graceful stop, forced kill after
// the grace window, partial output removed, input removed only when
// requested. It returns once the runner has finished cleaning up, so no
// process and no partial output survive the call.
func (s *TranscodeSupervisor) Cancel(taskID string, deleteInput bool) error {
	s.mu.Lock()
	job := s.jobs[taskID]
	s.mu.Unlock()
	if job == nil {
		return ErrTranscodeNotFound
	}

	job.mu.Lock()
	job.cancelled = true
	job.deleteInput = deleteInput
	proc := job.proc
	job.mu.Unlock()

	if proc != nil {
		proc.Terminate(s.cfg.GracePeriod)
	}
	<-job.done
	return nil
}

// Close terminates every live job and waits for the runners to drain.
// Inputs are kept; interrupted jobs end cancelled.
func (s *TranscodeSupervisor) Close() {
	s.mu.Lock()
	jobs := make([]*transcodeJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.mu.Lock()
		j.cancelled = true
		proc := j.proc
		j.mu.Unlock()
		if proc != nil {
			proc.Terminate(s.cfg.GracePeriod)
		}
	}
	s.wg.Wait()
}

func (s *TranscodeSupervisor) run(ctx context.Context, job *transcodeJob) {
	defer s.wg.Done()
	defer close(job.done)
	defer func() {
		s.mu.Lock()
		delete(s.jobs, job.taskID)
		s.mu.Unlock()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.finishCancelled(job)
		return
	}
	defer func() { <-s.sem }()

	if job.isCancelled() {
		s.finishCancelled(job)
		return
	}

	var total float64
	if s.prober != nil {
		total = s.prober.Duration(ctx, job.input)
	}

	proc, err := s.engine.Start(ctx, job.input, job.output, strings.Fields(s.cfg.Command))
	if err != nil {
		s.logger.Error("Transcode engine failed to start",
			zap.String("id", job.taskID),
			zap.Error(err))
		s.store.Mutate(job.taskID, func(t *domain.Task) {
			if t.Transcode != nil {
				t.Transcode.Status = domain.TranscodeError
				t.Transcode.Error = err.Error()
			}
		})
		return
	}

	job.mu.Lock()
	job.proc = proc
	cancelledEarly := job.cancelled
	job.mu.Unlock()
	if cancelledEarly {
		// Cancel arrived before the process handle existed.
		proc.Terminate(s.cfg.GracePeriod)
	}

	s.store.Mutate(job.taskID, func(t *domain.Task) {
		if t.Transcode != nil {
			t.Transcode.Status = domain.TranscodeRunning
			t.Transcode.TotalTime = total
		}
		t.Progress.Phase = domain.PhaseTranscoding
		t.Progress.Percent = 0
		t.Progress.CurrentTime = 0
		t.Progress.TotalTime = total
	})

	start := time.Now()
	for line := range proc.Progress() {
		position, ok := parseOutTime(line)
		if !ok {
			continue
		}
		s.applyProgress(job.taskID, position, total, time.Since(start))
	}

	err = proc.Wait()

	switch {
	case job.isCancelled():
		s.finishCancelled(job)
	case err != nil:
		s.finishError(job, err)
	default:
		s.finishCompleted(job)
	}
}

func (s *TranscodeSupervisor) applyProgress(taskID string, position, total float64, elapsed time.Duration) {
	var percent float64
	var eta int64
	if total > 0 {
		percent = position / total * 100
		if percent > 100 {
			percent = 100
		}
		if sec := elapsed.Seconds(); sec > 0 && position > 0 {
			speed := position / sec
			if remaining := (total - position) / speed; remaining > 0 {
				eta = int64(remaining)
			}
		}
	}
	s.store.Mutate(taskID, func(t *domain.Task) {
		if t.Transcode != nil {
			t.Transcode.Percent = percent
			t.Transcode.CurrentTime = position
			t.Transcode.ETASeconds = eta
		}
		t.Progress.Percent = percent
		t.Progress.CurrentTime = position
		t.Progress.ETASeconds = eta
	})
}

// finishCompleted applies the clean-exit contract: the original input is
// replaced by the transcoded file.
func (s *TranscodeSupervisor) finishCompleted(job *transcodeJob) {
	os.Remove(job.input)
	s.store.Mutate(job.taskID, func(t *domain.Task) {
		if t.Transcode != nil {
			t.Transcode.Status = domain.TranscodeCompleted
			t.Transcode.Percent = 100
			t.Transcode.CurrentTime = t.Transcode.TotalTime
			t.Transcode.ETASeconds = 0
		}
		t.FilePath = job.output
		t.Filename = filepath.Base(job.output)
		t.Progress.Phase = domain.PhaseCompleted
		t.Progress.Percent = 100
	})
	s.logger.Info("Transcode completed",
		zap.String("id", job.taskID),
		zap.String("output", job.output))
}

// finishError keeps the input, drops the partial output and leaves the
// acquisition's completed status alone.
func (s *TranscodeSupervisor) finishError(job *transcodeJob, cause error) {
	os.Remove(job.output)
	s.store.Mutate(job.taskID, func(t *domain.Task) {
		if t.Transcode != nil {
			t.Transcode.Status = domain.TranscodeError
			t.Transcode.Error = cause.Error()
		}
		t.Progress.Phase = domain.PhaseCompleted
		t.Progress.Percent = 100
	})
	s.logger.Error("Transcode failed, keeping original file",
		zap.String("id", job.taskID),
		zap.String("input", job.input),
		zap.Error(cause))
}

func (s *TranscodeSupervisor) finishCancelled(job *transcodeJob) {
	job.mu.Lock()
	deleteInput := job.deleteInput
	job.mu.Unlock()

	os.Remove(job.output)
	if deleteInput {
		os.Remove(job.input)
	}
	s.store.Mutate(job.taskID, func(t *domain.Task) {
		if t.Transcode != nil {
			t.Transcode.Status = domain.TranscodeCancelled
		}
		if deleteInput {
			t.MarkCancelled()
		} else {
			t.Progress.Phase = domain.PhaseCompleted
			t.Progress.Percent = 100
		}
	})
	s.logger.Info("Transcode cancelled",
		zap.String("id", job.taskID),
		zap.Bool("delete_input", deleteInput))
}

// parseOutTime extracts the media position in seconds from an ffmpeg
// -progress key=value line. Both out_time_us and out_time_ms carry
// microseconds (an ffmpeg quirk), so they parse identically.
func parseOutTime(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	var v string
	switch {
	case strings.HasPrefix(line, "out_time_us="):
		v = strings.TrimPrefix(line, "out_time_us=")
	case strings.HasPrefix(line, "out_time_ms="):
		v = strings.TrimPrefix(line, "out_time_ms=")
	default:
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return float64(us) / 1e6, true
}
