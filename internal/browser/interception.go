// internal/browser/interception.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/netprobe/internal/scrape"
)

// resolveTimeout bounds a single continue/fail command for a paused request.
const resolveTimeout = 5 * time.Second

// requestInterceptor pauses every request of a tab at the Fetch domain, asks
// the interceptor for a verdict and resumes or fails the request.
type requestInterceptor struct {
	sessionCtx  context.Context
	interceptor scrape.Interceptor
	logger      *zap.Logger

	lock           sync.Mutex
	listenerCtx    context.Context
	cancelListener context.CancelFunc
	isStarted      bool

	// pendingMu orders pending.Add against Stop. It is separate from lock,
	// which Start holds across a CDP round-trip.
	pendingMu sync.Mutex
	stopped   bool
	pending   sync.WaitGroup
}

func newRequestInterceptor(sessionCtx context.Context, i scrape.Interceptor, logger *zap.Logger) *requestInterceptor {
	return &requestInterceptor{
		sessionCtx:  sessionCtx,
		interceptor: i,
		logger:      logger.Named("interceptor"),
	}
}

// Start registers the listener before enabling the Fetch domain so no paused
// request is missed.
func (r *requestInterceptor) Start(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.isStarted {
		return nil
	}

	r.pendingMu.Lock()
	r.stopped = false
	r.pendingMu.Unlock()

	// Derived from the session, so the listener dies with the tab.
	r.listenerCtx, r.cancelListener = context.WithCancel(r.sessionCtx)
	chromedp.ListenTarget(r.listenerCtx, func(ev interface{}) {
		if e, ok := ev.(*fetch.EventRequestPaused); ok {
			r.handleRequestPaused(e)
		}
	})

	runCtx, cancel := CombineContext(r.sessionCtx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, fetch.Enable()); err != nil {
		r.cancelListener()
		return err
	}

	r.isStarted = true
	r.logger.Debug("Request interception enabled.")
	return nil
}

// Stop detaches the listener and waits for in-flight resolutions.
func (r *requestInterceptor) Stop() {
	r.lock.Lock()
	if r.cancelListener != nil {
		r.cancelListener()
		r.cancelListener = nil
	}
	r.isStarted = false
	r.lock.Unlock()

	// Events already queued for the listener may still arrive; they are dropped.
	r.pendingMu.Lock()
	r.stopped = true
	r.pendingMu.Unlock()

	r.pending.Wait()
}

// handleRequestPaused runs on the listener goroutine. The verdict is taken
// synchronously so decisions follow the browser's request order; the CDP
// round-trip happens off the listener, which must never block.
func (r *requestInterceptor) handleRequestPaused(e *fetch.EventRequestPaused) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if r.stopped {
		return
	}

	req := toInterceptedRequest(e)
	verdict := r.interceptor.Decide(req)
	r.logger.Debug("Request intercepted.",
		zap.String("url", req.URL),
		zap.String("resource_type", req.ResourceType),
		zap.Stringer("verdict", verdict))

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.resolve(e.RequestID, verdict)
	}()
}

func (r *requestInterceptor) resolve(id fetch.RequestID, verdict scrape.Verdict) {
	c := chromedp.FromContext(r.sessionCtx)
	if c == nil || c.Target == nil || r.sessionCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(cdp.WithExecutor(r.sessionCtx, c.Target), resolveTimeout)
	defer cancel()

	var err error
	if verdict == scrape.Abort {
		err = fetch.FailRequest(id, network.ErrorReasonFailed).Do(ctx)
	} else {
		err = fetch.ContinueRequest(id).Do(ctx)
	}
	if err != nil && r.sessionCtx.Err() == nil {
		// Requests vanish when their frame navigates away; not worth more than debug.
		r.logger.Debug("Could not resolve paused request.",
			zap.String("request_id", string(id)),
			zap.Stringer("verdict", verdict),
			zap.Error(err))
	}
}

func toInterceptedRequest(e *fetch.EventRequestPaused) scrape.InterceptedRequest {
	req := scrape.InterceptedRequest{ResourceType: string(e.ResourceType)}
	if e.Request == nil {
		return req
	}
	req.URL = e.Request.URL + e.Request.URLFragment
	req.Method = e.Request.Method
	req.Headers = headerStrings(e.Request.Headers)
	return req
}

// headerStrings flattens CDP header values, which are untyped JSON, to strings.
func headerStrings(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
