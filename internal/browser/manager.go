// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/netprobe/internal/browser/stealth"
	"github.com/xkilldash9x/netprobe/internal/config"
	"github.com/xkilldash9x/netprobe/internal/scrape"
)

// Manager launches one dedicated browser per session and keeps track of the
// live ones so they can be torn down on shutdown.
type Manager struct {
	cfg     config.BrowserConfig
	scratch *Scratch
	logger  *zap.Logger

	sessions map[string]*Session
	mu       sync.Mutex
	wg       sync.WaitGroup
}

var _ scrape.Launcher = (*Manager)(nil)

// NewManager creates a Manager. Browsers are only started by Launch.
func NewManager(cfg config.BrowserConfig, scratch *Scratch, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		scratch:  scratch,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
	m.logger.Info("Browser manager created.", zap.String("scratch_dir", scratch.Root()))
	return m
}

// Launch starts a browser for profile, opens its tab and applies the profile.
// Canceling ctx aborts a launch in progress.
func (m *Manager) Launch(ctx context.Context, profile scrape.BrowserProfile) (scrape.Browser, error) {
	logger := m.logger.With(zap.String("session_id", profile.SessionID))

	execPath := profile.ExecPath
	if execPath == "" {
		execPath = m.cfg.ExecPath
	}
	execPath, err := ResolveExecutable(execPath)
	if err != nil {
		return nil, err
	}
	userDataDir, err := m.scratch.Acquire(profile.SessionID)
	if err != nil {
		return nil, err
	}

	// The allocator must outlive ctx; the session owns it from here on.
	opts := allocatorOptions(profile, execPath, userDataDir, m.cfg.LaunchTimeout)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	cdpLogger := logger.Named("cdp").Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(cdpLogger.Debugf),
		chromedp.WithErrorf(cdpLogger.Warnf),
	)

	logger.Debug("Launching browser.",
		zap.String("exec_path", execPath),
		zap.Bool("headless", profile.Headless),
		zap.Bool("stealth", profile.Stealth),
	)

	// The first Run starts the process; it must see the tab context itself.
	stop := context.AfterFunc(ctx, allocCancel)
	err = chromedp.Run(tabCtx)
	stop()
	if err != nil {
		tabCancel()
		allocCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("start browser: %w", err)
	}

	var mainFrame *page.FrameTree
	setupCtx, setupCancel := CombineContext(tabCtx, ctx)
	defer setupCancel()
	err = chromedp.Run(setupCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		mainFrame, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err == nil {
		err = chromedp.Run(setupCtx, setupTasks(profile, logger))
	}
	if err != nil {
		_ = chromedp.Cancel(tabCtx)
		allocCancel()
		return nil, fmt.Errorf("prepare browser tab: %w", err)
	}

	m.wg.Add(1)
	var session *Session
	session = newSession(tabCtx, tabCancel, profile.SessionID, mainFrame.Frame.ID, logger, func() {
		allocCancel()
		m.unregister(session)
	})
	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	logger.Info("Browser launched.")
	return session, nil
}

// setupTasks applies the profile to a fresh tab.
func setupTasks(p scrape.BrowserProfile, logger *zap.Logger) chromedp.Tasks {
	headers := make(network.Headers, len(p.Headers))
	for k, v := range p.Headers {
		headers[k] = v
	}

	tasks := chromedp.Tasks{
		page.SetLifecycleEventsEnabled(true),
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		emulation.SetDeviceMetricsOverride(p.Viewport.Width, p.Viewport.Height, 1, p.Persona.Mobile),
	}
	if p.Stealth {
		tasks = append(tasks, stealth.Apply(p.Persona, logger)...)
	}
	return tasks
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	if _, ok := m.sessions[s.ID()]; ok {
		delete(m.sessions, s.ID())
		m.wg.Done()
	}
	m.mu.Unlock()
}

// Active returns the number of live browsers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live browser and waits for them to exit or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	if len(live) > 0 {
		m.logger.Info("Closing live browsers.", zap.Int("count", len(live)))
	}

	var g errgroup.Group
	for _, s := range live {
		g.Go(s.Close)
	}
	closeErr := g.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for browsers to close: %w", ctx.Err())
	}
}
