package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

func recvNotification(t *testing.T, ch <-chan domain.Notification) domain.Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return domain.Notification{}
	}
}

func TestHookRegistry_RegisterAndInvoke(t *testing.T) {
	r := NewHookRegistry(0, nil)
	defer r.Close()

	got := make(chan domain.Notification, 1)
	r.Register("task-1", func(n domain.Notification) {
		got <- n
	})

	r.Invoke("task-1", domain.Notification{
		TaskID:  "task-1",
		URL:     "https://example.com/watch?v=abc",
		Status:  "Network error, retrying",
		Attempt: 1,
	})

	n := recvNotification(t, got)
	assert.Equal(t, "task-1", n.TaskID)
	assert.Equal(t, 1, n.Attempt)
	assert.False(t, n.Final)
}

func TestHookRegistry_InvokeWithoutHook(t *testing.T) {
	r := NewHookRegistry(0, nil)
	defer r.Close()

	// No hook registered for this id, the call must be a silent no-op.
	r.Invoke("unknown", domain.Notification{TaskID: "unknown"})
}

func TestHookRegistry_RegisterReplaces(t *testing.T) {
	r := NewHookRegistry(0, nil)
	defer r.Close()

	first := make(chan domain.Notification, 1)
	second := make(chan domain.Notification, 1)
	r.Register("task-1", func(n domain.Notification) { first <- n })
	r.Register("task-1", func(n domain.Notification) { second <- n })

	r.Invoke("task-1", domain.Notification{TaskID: "task-1"})

	recvNotification(t, second)
	assert.Empty(t, first)
}

func TestHookRegistry_Rebind(t *testing.T) {
	r := NewHookRegistry(0, nil)
	defer r.Close()

	got := make(chan domain.Notification, 1)
	r.Register("provisional", func(n domain.Notification) { got <- n })
	r.Rebind("provisional", "final-id")

	r.Invoke("provisional", domain.Notification{TaskID: "provisional"})
	r.Invoke("final-id", domain.Notification{TaskID: "final-id"})

	n := recvNotification(t, got)
	assert.Equal(t, "final-id", n.TaskID)
	assert.Empty(t, got)
}

func TestHookRegistry_RemoveMakesInvokeNoop(t *testing.T) {
	r := NewHookRegistry(0, nil)
	defer r.Close()

	got := make(chan domain.Notification, 1)
	r.Register("task-1", func(n domain.Notification) { got <- n })
	r.Remove("task-1")

	r.Invoke("task-1", domain.Notification{TaskID: "task-1"})

	select {
	case <-got:
		t.Fatal("hook invoked after removal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHookRegistry_OrderPreserved(t *testing.T) {
	r := NewHookRegistry(0, nil)
	defer r.Close()

	got := make(chan domain.Notification, 3)
	r.Register("task-1", func(n domain.Notification) { got <- n })

	for i := 1; i <= 3; i++ {
		r.Invoke("task-1", domain.Notification{TaskID: "task-1", Attempt: i})
	}

	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, recvNotification(t, got).Attempt)
	}
}

func TestHookRegistry_FullQueueDrops(t *testing.T) {
	r := NewHookRegistry(1, nil)
	defer r.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	got := make(chan domain.Notification, 3)
	r.Register("task-1", func(n domain.Notification) {
		if n.Attempt == 1 {
			entered <- struct{}{}
			<-release
		}
		got <- n
	})

	// First delivery occupies the dispatcher, second fills the queue,
	// third has nowhere to go.
	r.Invoke("task-1", domain.Notification{TaskID: "task-1", Attempt: 1})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never picked up first notification")
	}
	r.Invoke("task-1", domain.Notification{TaskID: "task-1", Attempt: 2})
	r.Invoke("task-1", domain.Notification{TaskID: "task-1", Attempt: 3})
	close(release)

	assert.Equal(t, 1, recvNotification(t, got).Attempt)
	assert.Equal(t, 2, recvNotification(t, got).Attempt)
	select {
	case n := <-got:
		t.Fatalf("expected third notification to be dropped, got attempt %d", n.Attempt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHookRegistry_CloseStopsDelivery(t *testing.T) {
	r := NewHookRegistry(0, nil)

	got := make(chan domain.Notification, 1)
	r.Register("task-1", func(n domain.Notification) { got <- n })
	r.Close()

	r.Invoke("task-1", domain.Notification{TaskID: "task-1"})
	require.Empty(t, got)

	// Close is idempotent.
	r.Close()
}
