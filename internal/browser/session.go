// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/netprobe/internal/scrape"
)

// iframeTemplate is the wrapper document written into the main frame when a
// session runs in iframe mode.
const iframeTemplate = `<iframe src="%s" style="width:100%%; height:100vh;" frameBorder="0"></iframe>`

// Session is one launched browser with a single tab. It implements
// scrape.Browser and scrape.Page.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mainFrame cdp.FrameID
	main      *frameDocument
	requests  *requestInterceptor

	// onClose releases the allocator once the tab is gone.
	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var (
	_ scrape.Browser = (*Session)(nil)
	_ scrape.Page    = (*Session)(nil)
)

func newSession(ctx context.Context, cancel context.CancelFunc, id string, mainFrame cdp.FrameID, logger *zap.Logger, onClose func()) *Session {
	s := &Session{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		mainFrame: mainFrame,
		onClose:   onClose,
	}
	s.main = &frameDocument{session: s, frameID: mainFrame, top: true}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Page returns the session's only tab.
func (s *Session) Page() scrape.Page { return s }

// Close shuts the tab and the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.requests != nil {
		s.requests.Stop()
	}

	// Cancel closes the tab and waits for the browser process to exit.
	err := chromedp.Cancel(s.ctx)
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Navigate loads url in the top-level frame.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.main.Navigate(ctx, url)
}

// Reload re-fetches the top-level document.
func (s *Session) Reload(ctx context.Context) error {
	return s.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		loaded := listenDOMContentLoaded(ctx, s.mainFrame)
		if err := page.Reload().Do(ctx); err != nil {
			return err
		}
		return loaded.waitOther(ctx, tree.Frame.LoaderID)
	}))
}

// WaitSelector blocks until sel matches in the top-level document.
func (s *Session) WaitSelector(ctx context.Context, sel string) error {
	return s.runActions(ctx, chromedp.WaitReady(sel, chromedp.ByQuery))
}

// Click clicks the first element matching sel in the top-level document.
func (s *Session) Click(ctx context.Context, sel string) error {
	return s.runActions(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

// Evaluate runs expression in the top-level document and discards the result.
func (s *Session) Evaluate(ctx context.Context, expression string) error {
	return s.runActions(ctx, chromedp.Evaluate(expression, nil))
}

// InjectFrame replaces the top-level document with a single full-size iframe.
func (s *Session) InjectFrame(ctx context.Context, url string) error {
	return s.runActions(ctx, page.SetDocumentContent(s.mainFrame, wrapperHTML(url)))
}

// EmbeddedDocument waits for the wrapper iframe and returns its document.
func (s *Session) EmbeddedDocument(ctx context.Context) (scrape.Document, error) {
	var frameID cdp.FrameID
	err := s.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes("iframe", &nodes, chromedp.ByQuery).Do(ctx); err != nil {
			return err
		}
		if len(nodes) > 0 && nodes[0].FrameID != "" {
			frameID = nodes[0].FrameID
			return nil
		}
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		frameID = firstChildFrame(tree)
		if frameID == "" {
			return fmt.Errorf("iframe has no frame attached")
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Resolved embedded document.", zap.String("frame_id", frameID.String()))
	return &frameDocument{session: s, frameID: frameID}, nil
}

// Intercept pauses every request of the tab and resolves it with i's verdict.
func (s *Session) Intercept(ctx context.Context, i scrape.Interceptor) error {
	s.mu.Lock()
	if s.requests != nil {
		s.mu.Unlock()
		return fmt.Errorf("request interception already enabled")
	}
	s.requests = newRequestInterceptor(s.ctx, i, s.logger)
	s.mu.Unlock()

	return s.requests.Start(ctx)
}

// runActions executes chromedp actions bound to both the session lifetime and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

func wrapperHTML(url string) string {
	return fmt.Sprintf(iframeTemplate, html.EscapeString(url))
}

func firstChildFrame(tree *page.FrameTree) cdp.FrameID {
	if tree == nil {
		return ""
	}
	for _, child := range tree.ChildFrames {
		if child != nil && child.Frame != nil {
			return child.Frame.ID
		}
	}
	return ""
}
