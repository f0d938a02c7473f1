package app

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// StreamClassifier judges whether a finished artifact is an intermediate
// stream file (a merge input) rather than the final output. The judgement is
// filename based, not engine-confirmed, so it is pluggable.
type StreamClassifier interface {
	IsIntermediate(filename string) bool
}

// fragmentPattern matches the engine's adaptive-stream naming convention
// `<title>.f<format-id>.<ext>`.
var fragmentPattern = regexp.MustCompile(`\.f\d+\.`)

// SuffixClassifier is the default stream classifier: fragment-named files
// and bare mp4/m4a/webm containers are treated as merge inputs.
type SuffixClassifier struct{}

// IsIntermediate implements StreamClassifier
func (SuffixClassifier) IsIntermediate(filename string) bool {
	if filename == "" {
		return false
	}
	if fragmentPattern.MatchString(filename) {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".m4a", ".webm":
		return true
	}
	return false
}

// ProgressUpdate is the outcome of folding one low-level event into a
// task's phase state, ready to be applied to the task record.
type ProgressUpdate struct {
	Status   domain.TaskStatus
	Filename string
	Progress domain.Progress
}

// phaseState tracks per-task file accounting between events
type phaseState struct {
	currentFile     string
	filesCompleted  int
	totalDownloaded int64
	phase           domain.Phase
	lastPercent     float64
}

// PhaseTracker derives the coarse phase of each task from the stream of
// low-level progress events. An adaptive acquisition downloads two streams
// that are merged into one file: the first stream maps to acquiring-video,
// the second to acquiring-audio, and once two intermediates have finished
// the phase saturates at merging/100% (merge time is not tracked
// separately). Phase state survives retry attempts; it is dropped only at
// task cleanup.
type PhaseTracker struct {
	mu         sync.Mutex
	states     map[string]*phaseState
	classifier StreamClassifier
}

// NewPhaseTracker creates a phase tracker with the given classifier,
// defaulting to SuffixClassifier.
func NewPhaseTracker(classifier StreamClassifier) *PhaseTracker {
	if classifier == nil {
		classifier = SuffixClassifier{}
	}
	return &PhaseTracker{
		states:     make(map[string]*phaseState),
		classifier: classifier,
	}
}

// Apply folds one event into the task's phase state and returns the
// resulting update. Percent is clamped non-decreasing within a phase;
// the clamp context resets when a new file begins.
func (pt *PhaseTracker) Apply(id string, ev domain.ProgressEvent) (ProgressUpdate, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	st, ok := pt.states[id]
	if !ok {
		st = &phaseState{}
		pt.states[id] = st
	}

	switch ev.Kind {
	case domain.EventTick:
		return pt.applyTick(st, ev), true
	case domain.EventFileFinished:
		return pt.applyFinished(st, ev), true
	}
	return ProgressUpdate{}, false
}

func (pt *PhaseTracker) applyTick(st *phaseState, ev domain.ProgressEvent) ProgressUpdate {
	if ev.Filename != "" && ev.Filename != st.currentFile {
		st.currentFile = ev.Filename
		if st.filesCompleted > 0 {
			st.phase = domain.PhaseAcquiringAudio
		} else {
			st.phase = domain.PhaseAcquiringVideo
		}
		st.lastPercent = 0
	}
	if st.phase == "" {
		st.phase = domain.PhaseAcquiringVideo
	}

	percent := ev.Percent
	if percent == 0 && ev.TotalBytes > 0 {
		percent = float64(ev.DownloadedBytes) / float64(ev.TotalBytes) * 100
	}
	if percent < st.lastPercent {
		percent = st.lastPercent
	} else {
		st.lastPercent = percent
	}

	return ProgressUpdate{
		Status:   domain.StatusDownloading,
		Filename: ev.Filename,
		Progress: domain.Progress{
			Phase:           st.phase,
			Percent:         percent,
			DownloadedBytes: ev.DownloadedBytes,
			TotalBytes:      ev.TotalBytes,
			Speed:           ev.Speed,
			ETASeconds:      ev.ETASeconds,
			FilesCompleted:  st.filesCompleted,
		},
	}
}

func (pt *PhaseTracker) applyFinished(st *phaseState, ev domain.ProgressEvent) ProgressUpdate {
	if pt.classifier.IsIntermediate(ev.Filename) {
		st.filesCompleted++
		st.totalDownloaded += ev.TotalBytes
		st.lastPercent = 100

		if st.filesCompleted >= 2 {
			st.phase = domain.PhaseMerging
			return ProgressUpdate{
				Status:   domain.StatusProcessing,
				Filename: ev.Filename,
				Progress: domain.Progress{
					Phase:           domain.PhaseMerging,
					Percent:         100,
					DownloadedBytes: st.totalDownloaded,
					TotalBytes:      st.totalDownloaded,
					FilesCompleted:  st.filesCompleted,
				},
			}
		}

		// First stream finished: pin it at 100%, phase advances on the
		// next stream's first tick
		return ProgressUpdate{
			Status:   domain.StatusDownloading,
			Filename: ev.Filename,
			Progress: domain.Progress{
				Phase:           st.phase,
				Percent:         100,
				DownloadedBytes: ev.TotalBytes,
				TotalBytes:      ev.TotalBytes,
				FilesCompleted:  st.filesCompleted,
			},
		}
	}

	// Any other finished artifact is judged final: a single-file
	// acquisition skips merging entirely
	st.phase = domain.PhaseCompleted
	st.lastPercent = 100
	total := st.totalDownloaded
	if total == 0 {
		total = ev.TotalBytes
	}
	return ProgressUpdate{
		Status:   domain.StatusProcessing,
		Filename: ev.Filename,
		Progress: domain.Progress{
			Phase:           domain.PhaseCompleted,
			Percent:         100,
			DownloadedBytes: total,
			TotalBytes:      total,
			FilesCompleted:  st.filesCompleted,
		},
	}
}

// Forget drops the phase state for a task
func (pt *PhaseTracker) Forget(id string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.states, id)
}
