package domain

// ProgressEventKind distinguishes the two low-level signals emitted by the
// extraction engine while an acquisition attempt runs.
type ProgressEventKind string

const (
	// EventTick is a byte-level progress update for the current file
	EventTick ProgressEventKind = "tick"
	// EventFileFinished signals that the current file finished downloading
	EventFileFinished ProgressEventKind = "finished"
)

// ProgressEvent is a low-level progress signal from the extraction engine.
// Events for a single task arrive in emission order on the worker goroutine
// running the attempt.
type ProgressEvent struct {
	Kind            ProgressEventKind
	Filename        string
	Percent         float64
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes per second
	ETASeconds      int64
}

// Notification is the payload delivered to a task's registered hook. Status
// is a short human-readable description of the recovery step or outcome.
// Final marks the last notification the task will ever emit; Success marks
// a completion that needed at least one retry, so observers can surface
// "recovered" messaging distinctly from a first-attempt success.
type Notification struct {
	TaskID  string `json:"task_id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	Attempt int    `json:"attempt"`
	Final   bool   `json:"final"`
	Success bool   `json:"success"`
}

// NotificationHook receives lifecycle notifications for a single task.
// Hooks are invoked from a dispatcher goroutine, never from worker threads,
// and should still return quickly.
type NotificationHook func(n Notification)
