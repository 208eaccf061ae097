package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/netprobe/internal/config"
	"go.uber.org/zap"
)

// clearStorageScript runs in the active document before the storage reset re-fetch.
const clearStorageScript = `localStorage.clear()`

// State is a step of the navigation state machine. States only move forward.
type State int

const (
	StateInit State = iota
	StateLoaded
	StateStorageCleared
	StateClicked
	StateWaited
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoaded:
		return "loaded"
	case StateStorageCleared:
		return "storage_cleared"
	case StateClicked:
		return "clicked"
	case StateWaited:
		return "waited"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Document is a browsing context that navigation steps act on: either the
// top-level page or the document embedded in the wrapper iframe.
type Document interface {
	// Navigate loads url and returns once the DOM content is parsed.
	Navigate(ctx context.Context, url string) error
	// Reload re-fetches the current document and returns once the DOM content is parsed.
	Reload(ctx context.Context) error
	// WaitSelector blocks until an element matching sel exists or ctx is done.
	WaitSelector(ctx context.Context, sel string) error
	Click(ctx context.Context, sel string) error
	Evaluate(ctx context.Context, expression string) error
}

// Page is the top-level browsing context of a session.
type Page interface {
	Document
	// Intercept routes every outgoing request of the page through i.
	Intercept(ctx context.Context, i Interceptor) error
	// InjectFrame replaces the page content with a single iframe pointing at url.
	InjectFrame(ctx context.Context, url string) error
	// EmbeddedDocument waits for the injected iframe and returns its document.
	EmbeddedDocument(ctx context.Context) (Document, error)
}

// InteractionResult describes the outcome of the optional click step.
// A skipped interaction never fails the session.
type InteractionResult struct {
	Attempted bool
	Clicked   bool
	Skipped   bool
	Reason    error
}

// Outcome summarizes a completed navigation run.
type Outcome struct {
	// Path lists every state entered, in order.
	Path        []State
	Embedded    bool
	Refetched   bool
	Interaction InteractionResult
}

// Timings bounds the waits of a navigation run.
type Timings struct {
	Settle      time.Duration
	Interaction time.Duration
	Navigation  time.Duration
}

// TimingsFromConfig maps the session section of the configuration.
func TimingsFromConfig(c config.SessionConfig) Timings {
	return Timings{
		Settle:      c.SettleDelay,
		Interaction: c.InteractionTimeout,
		Navigation:  c.NavigationTimeout,
	}
}

// SleepFunc holds for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Navigator drives one session's page through the navigation state machine.
type Navigator struct {
	page       Page
	cfg        SessionConfig
	timings    Timings
	resetScope string
	sleep      SleepFunc
	logger     *zap.Logger

	state   State
	active  Document
	outcome Outcome
}

// NewNavigator returns a navigator for page. A nil sleep uses a real timer.
func NewNavigator(page Page, cfg SessionConfig, timings Timings, resetScope string, sleep SleepFunc, logger *zap.Logger) *Navigator {
	if sleep == nil {
		sleep = Sleep
	}
	if resetScope == "" {
		resetScope = config.ResetScopeFrame
	}
	return &Navigator{
		page:       page,
		cfg:        cfg,
		timings:    timings,
		resetScope: resetScope,
		sleep:      sleep,
		logger:     logger.Named("navigator"),
		state:      StateInit,
		active:     page,
		outcome:    Outcome{Path: []State{StateInit}},
	}
}

// Run executes every applicable step in order. Any returned error is fatal.
func (n *Navigator) Run(ctx context.Context) (Outcome, error) {
	if err := n.load(ctx); err != nil {
		return n.outcome, err
	}
	if n.cfg.ClearLocalStorage {
		if err := n.clearStorage(ctx); err != nil {
			return n.outcome, err
		}
	}
	if n.cfg.ClickSelector != "" {
		if err := n.click(ctx); err != nil {
			return n.outcome, err
		}
	}
	if n.cfg.Wait > 0 {
		n.logger.Debug("Holding before finalizing.", zap.Duration("wait", n.cfg.Wait))
		if err := n.sleep(ctx, n.cfg.Wait); err != nil {
			return n.outcome, err
		}
		n.advance(StateWaited)
	}
	n.advance(StateDone)
	return n.outcome, nil
}

// State returns the current state.
func (n *Navigator) State() State { return n.state }

func (n *Navigator) advance(s State) {
	if s <= n.state {
		panic(fmt.Sprintf("navigator: illegal transition %s -> %s", n.state, s))
	}
	n.state = s
	n.outcome.Path = append(n.outcome.Path, s)
}

func (n *Navigator) load(ctx context.Context) error {
	if !n.cfg.UseIframe {
		if err := n.navigate(ctx, n.page, "navigate"); err != nil {
			return err
		}
		n.advance(StateLoaded)
		return nil
	}

	if err := n.embed(ctx); err != nil {
		return err
	}
	n.advance(StateLoaded)
	return nil
}

// embed injects the wrapper iframe and makes its document active. A missing
// iframe element is tolerated; the top-level page stays active.
func (n *Navigator) embed(ctx context.Context) error {
	if err := n.page.InjectFrame(ctx, n.cfg.TargetURL); err != nil {
		return &NavigationError{Step: "inject iframe", URL: n.cfg.TargetURL, Err: err}
	}

	waitCtx, cancel := withTimeout(ctx, n.timings.Interaction)
	doc, err := n.page.EmbeddedDocument(waitCtx)
	cancel()
	switch {
	case err == nil:
		n.active = doc
		n.outcome.Embedded = true
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		n.logger.Warn("Embedded document not available; continuing on the wrapper page.",
			zap.Error(&InteractionTimeout{Selector: "iframe", Timeout: n.timings.Interaction, Err: err}))
	}

	return n.sleep(ctx, n.timings.Settle)
}

func (n *Navigator) clearStorage(ctx context.Context) error {
	if n.cfg.UseIframe && !n.outcome.Embedded {
		// The wrapper has an opaque origin and no storage; navigating it would
		// drop the iframe. A fresh wrapper is the only reset left.
		n.logger.Warn("No embedded document to clear; re-injecting the wrapper page.")
		n.active = n.page
		if err := n.embed(ctx); err != nil {
			return err
		}
		n.outcome.Refetched = true
		n.advance(StateStorageCleared)
		return nil
	}

	n.logger.Debug("Clearing local storage.", zap.Bool("embedded", n.outcome.Embedded))
	if err := n.active.Evaluate(ctx, clearStorageScript); err != nil {
		return &NavigationError{Step: "clear local storage", URL: n.cfg.TargetURL, Err: err}
	}

	var err error
	switch {
	case !n.cfg.UseIframe:
		err = n.reload(ctx)
	case n.resetScope == config.ResetScopeWrapper:
		// A fresh wrapper yields a fresh embedded document.
		n.active, n.outcome.Embedded = n.page, false
		err = n.embed(ctx)
	default:
		err = n.navigate(ctx, n.active, "re-navigate")
	}
	if err != nil {
		return err
	}
	n.outcome.Refetched = true
	n.advance(StateStorageCleared)
	return nil
}

func (n *Navigator) navigate(ctx context.Context, doc Document, step string) error {
	navCtx, cancel := withTimeout(ctx, n.timings.Navigation)
	defer cancel()
	if err := doc.Navigate(navCtx, n.cfg.TargetURL); err != nil {
		return &NavigationError{Step: step, URL: n.cfg.TargetURL, Err: err}
	}
	return nil
}

func (n *Navigator) reload(ctx context.Context) error {
	navCtx, cancel := withTimeout(ctx, n.timings.Navigation)
	defer cancel()
	if err := n.page.Reload(navCtx); err != nil {
		return &NavigationError{Step: "reload", URL: n.cfg.TargetURL, Err: err}
	}
	return nil
}

// click is best effort. Only cancellation of ctx escapes as an error.
func (n *Navigator) click(ctx context.Context) error {
	sel := n.cfg.ClickSelector
	n.outcome.Interaction.Attempted = true

	waitCtx, cancel := withTimeout(ctx, n.timings.Interaction)
	err := n.active.WaitSelector(waitCtx, sel)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &InteractionTimeout{Selector: sel, Timeout: n.timings.Interaction, Err: err}
		}
		n.skip(err)
		return nil
	}

	if err := n.active.Click(ctx, sel); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.skip(err)
		return nil
	}
	n.logger.Debug("Clicked element.", zap.String("selector", sel))
	n.outcome.Interaction.Clicked = true

	if err := n.sleep(ctx, n.timings.Settle); err != nil {
		return err
	}
	n.advance(StateClicked)
	return nil
}

func (n *Navigator) skip(reason error) {
	n.outcome.Interaction.Skipped = true
	n.outcome.Interaction.Reason = reason
	n.logger.Warn("Could not find or click the element; continuing.",
		zap.String("selector", n.cfg.ClickSelector), zap.Error(reason))
}

// withTimeout bounds ctx by d. A non-positive d leaves it unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Sleep holds for d, returning early with ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
