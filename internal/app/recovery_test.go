package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

func testRecoveryConfig() domain.RecoveryConfig {
	return domain.RecoveryConfig{
		MaxRetries:  3,
		SettleDelay: time.Millisecond,
		BackoffStep: time.Millisecond,
		BackoffCap:  3 * time.Millisecond,
	}
}

func TestPlanRecovery_NetworkBackoff(t *testing.T) {
	cfg := domain.RecoveryConfig{
		MaxRetries:  5,
		SettleDelay: 2 * time.Second,
		BackoffStep: 10 * time.Second,
		BackoffCap:  30 * time.Second,
	}
	var state RetryState

	wantDelays := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		30 * time.Second,
		30 * time.Second, // capped
	}
	for i, want := range wantDelays {
		plan := planRecovery(domain.ClassNetwork, &state, cfg)
		require.False(t, plan.Exhausted, "pass %d", i+1)
		assert.Equal(t, i+1, plan.Attempt)
		assert.Equal(t, want, plan.Delay)
	}
}

func TestPlanRecovery_ExhaustsAfterBound(t *testing.T) {
	cfg := testRecoveryConfig()
	var state RetryState

	for i := 0; i < cfg.MaxRetries; i++ {
		plan := planRecovery(domain.ClassNetwork, &state, cfg)
		require.False(t, plan.Exhausted)
	}
	plan := planRecovery(domain.ClassNetwork, &state, cfg)
	assert.True(t, plan.Exhausted)
	assert.Equal(t, cfg.MaxRetries, plan.Attempt)

	// Exhaustion is sticky.
	plan = planRecovery(domain.ClassNetwork, &state, cfg)
	assert.True(t, plan.Exhausted)
}

func TestPlanRecovery_ClassCountersIndependent(t *testing.T) {
	cfg := testRecoveryConfig()
	var state RetryState

	for i := 0; i < cfg.MaxRetries; i++ {
		planRecovery(domain.ClassNetwork, &state, cfg)
	}
	require.True(t, planRecovery(domain.ClassNetwork, &state, cfg).Exhausted)

	// The auth budget is untouched by network exhaustion.
	plan := planRecovery(domain.ClassAuthRequired, &state, cfg)
	assert.False(t, plan.Exhausted)
	assert.Equal(t, 1, plan.Attempt)
	assert.Equal(t, cfg.SettleDelay, plan.Delay)
}

type notificationRecorder struct {
	mu  sync.Mutex
	all []domain.Notification
}

func (r *notificationRecorder) hook() domain.NotificationHook {
	return func(n domain.Notification) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.all = append(r.all, n)
	}
}

func (r *notificationRecorder) list() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, len(r.all))
	copy(out, r.all)
	return out
}

func (r *notificationRecorder) finals() []domain.Notification {
	var out []domain.Notification
	for _, n := range r.list() {
		if n.Final {
			out = append(out, n)
		}
	}
	return out
}

type scriptedAttempt struct {
	mu      sync.Mutex
	errs    []error // consumed per call; nil entry or exhausted slice means success
	path    string
	cookies []string
}

func (a *scriptedAttempt) fn() AttemptFunc {
	return func(ctx context.Context, cookieFile string) (string, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.cookies = append(a.cookies, cookieFile)
		if len(a.errs) == 0 {
			return a.path, nil
		}
		next := a.errs[0]
		a.errs = a.errs[1:]
		if next == nil {
			return a.path, nil
		}
		return "", next
	}
}

func (a *scriptedAttempt) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cookies)
}

type stubSyncer struct {
	mu      sync.Mutex
	results []bool
	calls   int
}

func (s *stubSyncer) Sync(ctx context.Context) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := false
	if s.calls < len(s.results) {
		ok = s.results[s.calls]
	}
	s.calls++
	if ok {
		return true, "Successfully synced 42 cookies"
	}
	return false, "sync endpoint returned 500"
}

type stubBrowser struct {
	file string
	err  error
}

func (b *stubBrowser) Extract(ctx context.Context, browser string) (string, error) {
	return b.file, b.err
}

func newRecoveryFixture(t *testing.T, syncer domain.CredentialSyncer, browser domain.BrowserCookieSource) (*RecoveryCoordinator, *TaskStore, *HookRegistry, *notificationRecorder) {
	t.Helper()
	store := NewTaskStore(nil)
	hooks := NewHookRegistry(0, nil)
	rec := &notificationRecorder{}

	task := domain.NewTask("t1", "https://example.com/watch?v=abc", "")
	require.NoError(t, store.Create(task))
	hooks.Register("t1", rec.hook())

	c := NewRecoveryCoordinator(testRecoveryConfig(), LexicalClassifier{}, store, hooks,
		syncer, browser, "firefox", "cloud-cookies.txt", nil)
	return c, store, hooks, rec
}

func TestRecoveryCoordinator_FirstAttemptSuccess(t *testing.T) {
	c, _, hooks, rec := newRecoveryFixture(t, nil, nil)
	attempt := &scriptedAttempt{path: "/downloads/video.mp4"}

	path, err := c.Run(context.Background(), "t1", "https://example.com/watch?v=abc", attempt.fn())
	hooks.Close()

	require.NoError(t, err)
	assert.Equal(t, "/downloads/video.mp4", path)
	assert.Equal(t, 1, attempt.calls())
	// No recovery ran, so no recovered notification either.
	assert.Empty(t, rec.list())
}

func TestRecoveryCoordinator_NetworkRetryThenSuccess(t *testing.T) {
	c, store, hooks, rec := newRecoveryFixture(t, nil, nil)
	attempt := &scriptedAttempt{
		errs: []error{errors.New("ERROR: Connection reset by peer")},
		path: "/downloads/video.mp4",
	}

	path, err := c.Run(context.Background(), "t1", "https://example.com/watch?v=abc", attempt.fn())
	hooks.Close()

	require.NoError(t, err)
	assert.Equal(t, "/downloads/video.mp4", path)
	assert.Equal(t, 2, attempt.calls())

	all := rec.list()
	require.Len(t, all, 2)
	assert.False(t, all[0].Final)
	assert.False(t, all[0].Success)
	assert.Equal(t, 1, all[0].Attempt)
	assert.True(t, all[1].Success)
	assert.False(t, all[1].Final)
	assert.Equal(t, 1, all[1].Attempt)

	// The coordinator leaves completion to its caller.
	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusRetrying, task.Status)
}

func TestRecoveryCoordinator_AuthRecoveryScenario(t *testing.T) {
	// First pass: cloud sync fails, browser extraction covers it. Second
	// pass: cloud sync succeeds. Third attempt downloads.
	syncer := &stubSyncer{results: []bool{false, true}}
	browser := &stubBrowser{file: "browser-cookies.txt"}
	c, _, hooks, rec := newRecoveryFixture(t, syncer, browser)

	forbidden := errors.New("ERROR: unable to download video data: HTTP Error 403: Forbidden")
	attempt := &scriptedAttempt{
		errs: []error{forbidden, forbidden},
		path: "/downloads/video.mp4",
	}

	path, err := c.Run(context.Background(), "t1", "https://example.com/watch?v=abc", attempt.fn())
	hooks.Close()

	require.NoError(t, err)
	assert.Equal(t, "/downloads/video.mp4", path)
	require.Equal(t, 3, attempt.calls())
	assert.Equal(t, []string{"", "browser-cookies.txt", "cloud-cookies.txt"}, attempt.cookies)

	all := rec.list()
	require.Len(t, all, 3)
	assert.False(t, all[0].Final)
	assert.Equal(t, 1, all[0].Attempt)
	assert.False(t, all[1].Final)
	assert.Equal(t, 2, all[1].Attempt)
	assert.True(t, all[2].Success)
	assert.False(t, all[2].Final)
	assert.Equal(t, 2, all[2].Attempt)
}

func TestRecoveryCoordinator_NetworkExhaustion(t *testing.T) {
	c, store, hooks, rec := newRecoveryFixture(t, nil, nil)
	netErr := errors.New("ERROR: The read operation timed out")
	attempt := &scriptedAttempt{
		errs: []error{netErr, netErr, netErr, netErr},
	}

	_, err := c.Run(context.Background(), "t1", "https://example.com/watch?v=abc", attempt.fn())
	hooks.Close()

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.ClassNetwork, cerr.Class)

	// Initial attempt plus three granted retries, never a fifth.
	assert.Equal(t, 4, attempt.calls())

	finals := rec.finals()
	require.Len(t, finals, 1)
	assert.Equal(t, 3, finals[0].Attempt)
	assert.False(t, finals[0].Success)
	assert.Len(t, rec.list(), 4)

	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusError, task.Status)
	assert.Equal(t, domain.ClassNetwork, task.ErrorClass)
	assert.NotEmpty(t, task.Error)
}

func TestRecoveryCoordinator_AuthWithoutSourcesExhausts(t *testing.T) {
	c, store, hooks, rec := newRecoveryFixture(t, nil, nil)
	attempt := &scriptedAttempt{
		errs: []error{errors.New("HTTP Error 403: Forbidden")},
	}

	_, err := c.Run(context.Background(), "t1", "https://example.com/watch?v=abc", attempt.fn())
	hooks.Close()

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.ClassAuthRequired, cerr.Class)
	assert.Equal(t, 1, attempt.calls())

	all := rec.list()
	require.Len(t, all, 2)
	assert.False(t, all[0].Final)
	assert.True(t, all[1].Final)

	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusError, task.Status)
}

func TestRecoveryCoordinator_FormatErrorPassesThrough(t *testing.T) {
	c, store, hooks, rec := newRecoveryFixture(t, nil, nil)
	attempt := &scriptedAttempt{
		errs: []error{errors.New("ERROR: Requested format is not available")},
	}

	_, err := c.Run(context.Background(), "t1", "https://example.com/watch?v=abc", attempt.fn())
	hooks.Close()

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.ClassFormatUnavailable, cerr.Class)
	assert.Equal(t, 1, attempt.calls())
	assert.Empty(t, rec.list())

	// The fallback cascade owns this class, the record is left alone.
	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, task.Status)
}

func TestRecoveryCoordinator_OtherErrorPassesThrough(t *testing.T) {
	c, _, hooks, rec := newRecoveryFixture(t, nil, nil)
	attempt := &scriptedAttempt{
		errs: []error{errors.New("ERROR: Video unavailable. This video is private")},
	}

	_, err := c.Run(context.Background(), "t1", "https://example.com/watch?v=abc", attempt.fn())
	hooks.Close()

	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.ClassOther, cerr.Class)
	assert.Equal(t, 1, attempt.calls())
	assert.Empty(t, rec.list())
}

func TestRecoveryCoordinator_ContextCancelledDuringBackoff(t *testing.T) {
	store := NewTaskStore(nil)
	hooks := NewHookRegistry(0, nil)
	defer hooks.Close()
	require.NoError(t, store.Create(domain.NewTask("t1", "u", "")))

	cfg := testRecoveryConfig()
	cfg.BackoffStep = time.Hour
	cfg.BackoffCap = time.Hour
	c := NewRecoveryCoordinator(cfg, LexicalClassifier{}, store, hooks, nil, nil, "firefox", "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	attempt := &scriptedAttempt{errs: []error{errors.New("network is unreachable")}}

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, "t1", "u", attempt.fn())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.Equal(t, 1, attempt.calls())
}
