package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// ClassifiedError wraps an engine failure with the class assigned to it so
// callers can pick the follow-up (fallback cascade, terminal surfacing)
// without re-classifying.
type ClassifiedError struct {
	Class domain.FailureClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// RetryState counts granted recovery passes per failure class for one task.
// The counters are independent: three network retries do not consume the
// auth budget and vice versa.
type RetryState struct {
	Network int
	Auth    int
}

// Total is the combined number of recovery passes, used when reporting a
// success after retry.
func (s RetryState) Total() int {
	return s.Network + s.Auth
}

// RecoveryPlan is the outcome of one classifying transition: either another
// recovery pass, with its pass number and the wait before re-attempting, or
// exhaustion of the class budget.
type RecoveryPlan struct {
	Exhausted bool
	Attempt   int
	Delay     time.Duration
}

// planRecovery is the transition function of the recovery state machine,
// kept free of side effects apart from bumping the granted-pass counter.
// Network passes wait min(step*attempt, cap); auth passes wait the settle
// delay after the credential refresh the driver performs.
func planRecovery(class domain.FailureClass, state *RetryState, cfg domain.RecoveryConfig) RecoveryPlan {
	counter := &state.Network
	if class == domain.ClassAuthRequired {
		counter = &state.Auth
	}
	if *counter >= cfg.MaxRetries {
		return RecoveryPlan{Exhausted: true, Attempt: *counter}
	}
	*counter++
	plan := RecoveryPlan{Attempt: *counter}
	if class == domain.ClassNetwork {
		delay := time.Duration(*counter) * cfg.BackoffStep
		if delay > cfg.BackoffCap {
			delay = cfg.BackoffCap
		}
		plan.Delay = delay
	} else {
		plan.Delay = cfg.SettleDelay
	}
	return plan
}

// AttemptFunc runs one acquisition attempt. cookieFile overrides the
// credential file for the attempt; empty means the caller's default. It
// returns the final artifact path.
type AttemptFunc func(ctx context.Context, cookieFile string) (string, error)

// RecoveryCoordinator drives bounded recovery for network and auth-required
// failures: it classifies each failure, refreshes credentials or backs off,
// and re-invokes the acquisition attempt. Format and other failures are
// returned to the caller as ClassifiedError untouched.
type RecoveryCoordinator struct {
	cfg              domain.RecoveryConfig
	classifier       FailureClassifier
	store            *TaskStore
	hooks            *HookRegistry
	syncer           domain.CredentialSyncer    // nil when cloud sync is not configured
	browser          domain.BrowserCookieSource // nil when browser extraction is disabled
	browserName      string
	syncedCookieFile string
	logger           *zap.Logger
}

// NewRecoveryCoordinator creates a coordinator. syncer and browser may be
// nil; syncedCookieFile is where a successful cloud sync deposits
// credentials.
func NewRecoveryCoordinator(
	cfg domain.RecoveryConfig,
	classifier FailureClassifier,
	store *TaskStore,
	hooks *HookRegistry,
	syncer domain.CredentialSyncer,
	browser domain.BrowserCookieSource,
	browserName string,
	syncedCookieFile string,
	logger *zap.Logger,
) *RecoveryCoordinator {
	if classifier == nil {
		classifier = LexicalClassifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryCoordinator{
		cfg:              cfg,
		classifier:       classifier,
		store:            store,
		hooks:            hooks,
		syncer:           syncer,
		browser:          browser,
		browserName:      browserName,
		syncedCookieFile: syncedCookieFile,
		logger:           logger,
	}
}

// Run drives acquisition for one task: the initial attempt plus recovery
// re-attempts, until success, budget exhaustion or an unrecoverable class.
// On success it returns the artifact path and, when any recovery pass ran,
// reports a success-after-retry notification. On exhaustion it marks the
// task errored and reports exactly one final notification before returning
// the classified failure.
func (c *RecoveryCoordinator) Run(ctx context.Context, taskID, url string, attempt AttemptFunc) (string, error) {
	var state RetryState
	cookieFile := ""

	path, err := attempt(ctx, cookieFile)
	for err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		class := c.classifier.Classify(err.Error())
		cerr := &ClassifiedError{Class: class, Err: err}

		switch class {
		case domain.ClassNetwork:
			plan := planRecovery(class, &state, c.cfg)
			if plan.Exhausted {
				c.fail(taskID, url, cerr, "Network error, retries exhausted", plan.Attempt)
				return "", cerr
			}
			c.markRetrying(taskID, class, err)
			c.hooks.Invoke(taskID, domain.Notification{
				TaskID:  taskID,
				URL:     url,
				Status:  fmt.Sprintf("Network error, retrying in %s (attempt %d/%d)", plan.Delay, plan.Attempt, c.cfg.MaxRetries),
				Attempt: plan.Attempt,
			})
			c.logger.Warn("Network failure, backing off",
				zap.String("id", taskID),
				zap.Int("attempt", plan.Attempt),
				zap.Duration("delay", plan.Delay),
				zap.Error(err))
			if werr := sleepCtx(ctx, plan.Delay); werr != nil {
				return "", werr
			}

		case domain.ClassAuthRequired:
			plan := planRecovery(class, &state, c.cfg)
			if plan.Exhausted {
				c.fail(taskID, url, cerr, "Access forbidden, retries exhausted", plan.Attempt)
				return "", cerr
			}
			c.markRetrying(taskID, class, err)
			c.hooks.Invoke(taskID, domain.Notification{
				TaskID:  taskID,
				URL:     url,
				Status:  fmt.Sprintf("Access forbidden, refreshing credentials (attempt %d/%d)", plan.Attempt, c.cfg.MaxRetries),
				Attempt: plan.Attempt,
			})
			refreshed := c.refreshCredentials(ctx, taskID)
			if refreshed == "" {
				cause := &ClassifiedError{Class: class, Err: errors.New("credential refresh failed: no working cookie source")}
				c.fail(taskID, url, cause, "Credential refresh failed", plan.Attempt)
				return "", cause
			}
			cookieFile = refreshed
			if werr := sleepCtx(ctx, plan.Delay); werr != nil {
				return "", werr
			}

		default:
			// format-unavailable and other are not retry-counted here.
			return "", cerr
		}

		path, err = attempt(ctx, cookieFile)
	}

	if state.Total() > 0 {
		c.hooks.Invoke(taskID, domain.Notification{
			TaskID:  taskID,
			URL:     url,
			Status:  "Download recovered after retry",
			Attempt: state.Total(),
			Success: true,
		})
		c.logger.Info("Download recovered after retry",
			zap.String("id", taskID),
			zap.Int("attempts", state.Total()))
	}
	return path, nil
}

// refreshCredentials tries the cloud sync first, then browser extraction,
// and returns the cookie file the next attempt should use, or "" when no
// source produced one.
func (c *RecoveryCoordinator) refreshCredentials(ctx context.Context, taskID string) string {
	if c.syncer != nil {
		ok, message := c.syncer.Sync(ctx)
		if ok {
			c.logger.Info("Cloud credential sync succeeded",
				zap.String("id", taskID),
				zap.String("message", message))
			return c.syncedCookieFile
		}
		c.logger.Warn("Cloud credential sync failed",
			zap.String("id", taskID),
			zap.String("message", message))
	}
	if c.browser != nil {
		file, err := c.browser.Extract(ctx, c.browserName)
		if err != nil {
			c.logger.Warn("Browser cookie extraction failed",
				zap.String("id", taskID),
				zap.String("browser", c.browserName),
				zap.Error(err))
		} else if file != "" {
			c.logger.Info("Browser cookie extraction succeeded",
				zap.String("id", taskID),
				zap.String("browser", c.browserName))
			return file
		}
	}
	return ""
}

func (c *RecoveryCoordinator) markRetrying(taskID string, class domain.FailureClass, cause error) {
	c.store.Mutate(taskID, func(t *domain.Task) {
		if t.IsTerminal() {
			return
		}
		t.MarkRetrying(class, cause)
	})
}

// fail surfaces a terminal failure: the task record moves to error and the
// hook receives its single final report.
func (c *RecoveryCoordinator) fail(taskID, url string, cerr *ClassifiedError, status string, attempts int) {
	c.store.Mutate(taskID, func(t *domain.Task) {
		if t.IsTerminal() {
			return
		}
		t.MarkError(cerr.Class, cerr.Err)
	})
	c.hooks.Invoke(taskID, domain.Notification{
		TaskID:  taskID,
		URL:     url,
		Status:  status,
		Attempt: attempts,
		Final:   true,
	})
	c.logger.Error("Recovery exhausted",
		zap.String("id", taskID),
		zap.String("class", string(cerr.Class)),
		zap.Int("attempts", attempts),
		zap.Error(cerr.Err))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
