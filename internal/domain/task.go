package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current status of a retrieval task
type TaskStatus string

const (
	StatusPending     TaskStatus = "pending"
	StatusDownloading TaskStatus = "downloading"
	StatusProcessing  TaskStatus = "processing"
	StatusRetrying    TaskStatus = "retrying"
	StatusCompleted   TaskStatus = "completed"
	StatusError       TaskStatus = "error"
	StatusCancelled   TaskStatus = "cancelled"
)

// Phase represents the coarse stage of a task's acquisition/transcode lifecycle
type Phase string

const (
	PhaseAcquiringVideo Phase = "acquiring-video"
	PhaseAcquiringAudio Phase = "acquiring-audio"
	PhaseMerging        Phase = "merging"
	PhaseTranscoding    Phase = "transcoding"
	PhaseCompleted      Phase = "completed"
)

// FailureClass represents the recovery category assigned to an engine failure
type FailureClass string

const (
	ClassNetwork           FailureClass = "network"
	ClassAuthRequired      FailureClass = "auth-required"
	ClassFormatUnavailable FailureClass = "format-unavailable"
	ClassOther             FailureClass = "other"
)

// Progress carries the live progress fields for a task. During transcoding
// CurrentTime/TotalTime hold the media-time position and duration in seconds.
type Progress struct {
	Phase           Phase   `json:"phase,omitempty"`
	Percent         float64 `json:"percent"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Speed           float64 `json:"speed"` // bytes per second
	ETASeconds      int64   `json:"eta"`
	FilesCompleted  int     `json:"files_completed"`
	CurrentTime     float64 `json:"current_time,omitempty"`
	TotalTime       float64 `json:"total_time,omitempty"`
}

// TranscodeStatus represents the state of a task's transcode job
type TranscodeStatus string

const (
	TranscodeQueued    TranscodeStatus = "queued"
	TranscodeRunning   TranscodeStatus = "transcoding"
	TranscodeCompleted TranscodeStatus = "completed"
	TranscodeError     TranscodeStatus = "error"
	TranscodeCancelled TranscodeStatus = "cancelled"
)

// TranscodeState is the transcode sub-record attached to a task once a
// transcode job has been queued for it.
type TranscodeState struct {
	Status      TranscodeStatus `json:"status"`
	InputPath   string          `json:"input_path,omitempty"`
	OutputPath  string          `json:"output_path,omitempty"`
	Percent     float64         `json:"percent"`
	CurrentTime float64         `json:"current_time"`
	TotalTime   float64         `json:"total_time"`
	ETASeconds  int64           `json:"eta"`
	Error       string          `json:"error,omitempty"`
}

// Task represents a media retrieval task. Records live in memory inside the
// task store and are mutated only through its atomic update contract; the
// Attempt counter marks the current acquisition attempt so that callbacks
// from a superseded attempt can be discarded.
type Task struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	Status      TaskStatus      `json:"status"`
	Progress    Progress        `json:"progress"`
	Filename    string          `json:"filename,omitempty"`
	FilePath    string          `json:"file_path,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorClass  FailureClass    `json:"error_class,omitempty"`
	Attempt     int             `json:"attempt"`
	Format      string          `json:"format,omitempty"`
	Transcode   *TranscodeState `json:"transcode,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewTask creates a new pending task
func NewTask(id, url, format string) *Task {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	return &Task{
		ID:        id,
		URL:       url,
		Status:    StatusPending,
		Format:    format,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkDownloading marks the task as actively acquiring
func (t *Task) MarkDownloading() {
	t.Status = StatusDownloading
	now := time.Now()
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.UpdatedAt = now
}

// MarkProcessing marks the task as post-acquisition processing (merge)
func (t *Task) MarkProcessing() {
	t.Status = StatusProcessing
	t.UpdatedAt = time.Now()
}

// MarkRetrying marks the task as waiting on a recovery step
func (t *Task) MarkRetrying(class FailureClass, err error) {
	t.Status = StatusRetrying
	t.ErrorClass = class
	if err != nil {
		t.Error = err.Error()
	}
	t.UpdatedAt = time.Now()
}

// MarkCompleted marks the task as completed with its final artifact
func (t *Task) MarkCompleted(filePath string) {
	t.Status = StatusCompleted
	t.FilePath = filePath
	t.Progress.Phase = PhaseCompleted
	t.Progress.Percent = 100
	t.Error = ""
	t.ErrorClass = ""
	now := time.Now()
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// MarkError marks the task as terminally failed
func (t *Task) MarkError(class FailureClass, err error) {
	t.Status = StatusError
	t.ErrorClass = class
	if err != nil {
		t.Error = err.Error()
	}
	t.UpdatedAt = time.Now()
}

// MarkCancelled marks the task as cancelled
func (t *Task) MarkCancelled() {
	t.Status = StatusCancelled
	t.UpdatedAt = time.Now()
}

// BeginAttempt advances the attempt counter for a new acquisition attempt
// and returns the new attempt number.
func (t *Task) BeginAttempt() int {
	t.Attempt++
	t.UpdatedAt = time.Now()
	return t.Attempt
}

// IsTerminal checks if the task is in a terminal state
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusError || t.Status == StatusCancelled
}

// IsActive checks if the task is still being worked on
func (t *Task) IsActive() bool {
	return !t.IsTerminal()
}

// Snapshot returns an independent copy of the task safe to hand to
// concurrent readers.
func (t *Task) Snapshot() Task {
	snap := *t
	if t.Transcode != nil {
		tc := *t.Transcode
		snap.Transcode = &tc
	}
	return snap
}
