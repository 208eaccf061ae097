package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/netprobe/api/schemas"
	"github.com/xkilldash9x/netprobe/internal/config"
	"github.com/xkilldash9x/netprobe/internal/observability"
	"go.uber.org/zap"
)

// Session outcomes reported to the Recorder.
const (
	OutcomeSuccess         = "success"
	OutcomeLaunchError     = "launch_error"
	OutcomeNavigationError = "navigation_error"
	OutcomeCanceled        = "canceled"
)

// Browser is a launched browser owned by exactly one session.
type Browser interface {
	Page() Page
	Close() error
}

// Launcher starts a browser configured by a profile.
type Launcher interface {
	Launch(ctx context.Context, profile BrowserProfile) (Browser, error)
}

// ScratchReleaser frees engine scratch resources left by a session. It is
// called at teardown whether or not the launch succeeded.
type ScratchReleaser interface {
	Release(sessionID string) error
}

// Recorder receives session telemetry. All methods must be safe for concurrent use.
type Recorder interface {
	ObserveVerdict(verdict string)
	ObserveSession(outcome string, elapsed time.Duration, captured int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveVerdict(string)                      {}
func (nopRecorder) ObserveSession(string, time.Duration, int) {}

// Runner executes scrape sessions end to end.
type Runner struct {
	launcher   Launcher
	scratch    ScratchReleaser
	browserCfg config.BrowserConfig
	timings    Timings
	recorder   Recorder
	sleep      SleepFunc
	newID      func() string
	logger     *zap.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRecorder routes session telemetry to rec.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithSleep replaces the timer used for settle and trailing delays.
func WithSleep(fn SleepFunc) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

// WithIDGenerator replaces the session identifier source.
func WithIDGenerator(fn func() string) RunnerOption {
	return func(r *Runner) { r.newID = fn }
}

// NewRunner creates a Runner. scratch may be nil when the launcher leaves nothing behind.
func NewRunner(launcher Launcher, scratch ScratchReleaser, cfg *config.Config, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		launcher:   launcher,
		scratch:    scratch,
		browserCfg: cfg.Browser,
		timings:    TimingsFromConfig(cfg.Session),
		recorder:   nopRecorder{},
		sleep:      Sleep,
		newID:      uuid.NewString,
		logger:     logger.Named("scrape"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one session. The browser is closed and scratch resources are
// released exactly once on every path; failures there are logged and never
// replace the session's own result.
func (r *Runner) Run(ctx context.Context, sc SessionConfig) (result *schemas.ScrapeResult, err error) {
	id := r.newID()
	logger := observability.ForSession(r.logger, id)
	start := time.Now()
	captures := &CaptureLog{}

	logger.Info("Starting session.",
		zap.String("url", sc.TargetURL),
		zap.Bool("iframe", sc.UseIframe),
		zap.Bool("stealth", sc.Stealth),
		zap.Bool("headful", sc.Headful),
	)

	defer func() {
		if r.scratch != nil {
			if rerr := r.scratch.Release(id); rerr != nil {
				logger.Warn("Failed to release scratch resources.", zap.Error(rerr))
			}
		}
		outcome := classifyOutcome(err)
		r.recorder.ObserveSession(outcome, time.Since(start), captures.Len())
		logger.Info("Session finished.",
			zap.String("outcome", outcome),
			zap.Int("captured", captures.Len()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	profile := BuildProfile(id, sc, r.browserCfg)
	browser, err := r.launcher.Launch(ctx, profile)
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			logger.Warn("Failed to close browser.", zap.Error(cerr))
		}
	}()

	filter := NewFilter(sc.Filter, captures)
	filter.OnVerdict(func(v Verdict) { r.recorder.ObserveVerdict(v.String()) })

	page := browser.Page()
	if err := page.Intercept(ctx, filter); err != nil {
		return nil, &LaunchError{Err: fmt.Errorf("enable request interception: %w", err)}
	}

	nav := NewNavigator(page, sc, r.timings, r.browserCfg.StorageResetScope, r.sleep, logger)
	outcome, err := nav.Run(ctx)
	if err != nil {
		return nil, err
	}
	if outcome.Interaction.Skipped {
		logger.Info("Click step skipped.", zap.Error(outcome.Interaction.Reason))
	}

	return &schemas.ScrapeResult{
		Message:  fmt.Sprintf("Successfully scraped %s", sc.TargetURL),
		Requests: captures.Snapshot(),
		Meta: schemas.ResultMeta{
			StealthEnabled: sc.Stealth,
			Headful:        sc.Headful,
		},
	}, nil
}

func classifyOutcome(err error) string {
	var launchErr *LaunchError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &launchErr):
		return OutcomeLaunchError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeNavigationError
	}
}
