package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// defaultHookQueue bounds the number of undelivered notifications held
// before new ones are dropped.
const defaultHookQueue = 64

type hookDelivery struct {
	id string
	n  domain.Notification
}

// HookRegistry holds at most one notification hook per task and delivers
// notifications to it from a single dispatch goroutine. Workers hand off
// through a bounded queue and never run hook code themselves, so a slow or
// misbehaving hook cannot stall recovery or progress reporting.
type HookRegistry struct {
	mu     sync.RWMutex
	hooks  map[string]domain.NotificationHook
	queue  chan hookDelivery
	closed bool
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewHookRegistry creates a registry and starts its dispatcher. queueSize <= 0
// selects the default bound.
func NewHookRegistry(queueSize int, logger *zap.Logger) *HookRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultHookQueue
	}
	r := &HookRegistry{
		hooks:  make(map[string]domain.NotificationHook),
		queue:  make(chan hookDelivery, queueSize),
		logger: logger,
	}
	r.wg.Add(1)
	go r.dispatch()
	return r
}

func (r *HookRegistry) dispatch() {
	defer r.wg.Done()
	for d := range r.queue {
		r.mu.RLock()
		hook := r.hooks[d.id]
		r.mu.RUnlock()
		if hook == nil {
			continue
		}
		hook(d.n)
	}
}

// Register binds a hook to a task id, replacing any existing binding.
// Callers register before the first acquisition attempt so that failures on
// that attempt are still reported.
func (r *HookRegistry) Register(id string, hook domain.NotificationHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.hooks[id] = hook
}

// Rebind moves the hook registered under oldID to newID. Used when a task
// submitted without a pre-assigned id had its hook registered under a
// provisional one.
func (r *HookRegistry) Rebind(oldID, newID string) {
	if oldID == newID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	hook, ok := r.hooks[oldID]
	if !ok {
		return
	}
	delete(r.hooks, oldID)
	r.hooks[newID] = hook
}

// Invoke queues a notification for the task's hook. Without a registered
// hook it is a no-op. A full queue drops the notification rather than
// blocking the caller.
func (r *HookRegistry) Invoke(id string, n domain.Notification) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || r.hooks[id] == nil {
		return
	}
	select {
	case r.queue <- hookDelivery{id: id, n: n}:
	default:
		r.logger.Warn("Notification queue full, dropping",
			zap.String("id", id),
			zap.String("status", n.Status),
			zap.Bool("final", n.Final))
	}
}

// Remove unbinds the task's hook. Queued deliveries for the id are skipped
// by the dispatcher, so invocations after removal are no-ops.
func (r *HookRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, id)
}

// Close stops accepting notifications, drains the queue and waits for the
// dispatcher to exit.
func (r *HookRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.queue)
	r.wg.Wait()
}
