// internal/browser/frame.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
)

const (
	// domContentLoaded is the lifecycle event a navigation waits for.
	domContentLoaded     = "DOMContentLoaded"
	// isolatedWorldName names the world scripts run in inside embedded frames.
	isolatedWorldName    = "netprobe"
	selectorPollInterval = 100 * time.Millisecond
)

// frameDocument is a browsing context addressed by frame ID. The top-level
// frame reuses it for navigation; embedded frames use it for everything.
type frameDocument struct {
	session *Session
	frameID cdp.FrameID
	top     bool
}

// Navigate loads url in the frame and waits for its DOM content.
func (d *frameDocument) Navigate(ctx context.Context, url string) error {
	return d.session.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return navigateFrame(ctx, d.frameID, url)
	}))
}

// Reload navigates the frame to the URL it currently shows.
func (d *frameDocument) Reload(ctx context.Context) error {
	if d.top {
		return d.session.Reload(ctx)
	}
	return d.session.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		frame := findFrame(tree, d.frameID)
		if frame == nil {
			return fmt.Errorf("frame %s is detached", d.frameID)
		}
		return navigateFrame(ctx, d.frameID, frame.URL+frame.URLFragment)
	}))
}

// WaitSelector polls the frame until sel matches or ctx is done.
func (d *frameDocument) WaitSelector(ctx context.Context, sel string) error {
	if d.top {
		return d.session.WaitSelector(ctx, sel)
	}
	script, err := selectorScript(sel, "el !== null")
	if err != nil {
		return err
	}
	ticker := time.NewTicker(selectorPollInterval)
	defer ticker.Stop()
	for {
		found, err := d.evaluateBool(ctx, script)
		if err != nil && ctx.Err() == nil {
			// The frame may be between documents; keep polling.
			found = false
		}
		if found {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Click clicks the first element matching sel.
func (d *frameDocument) Click(ctx context.Context, sel string) error {
	if d.top {
		return d.session.Click(ctx, sel)
	}
	script, err := selectorScript(sel, "el !== null && (el.click(), true)")
	if err != nil {
		return err
	}
	clicked, err := d.evaluateBool(ctx, script)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no element matches %q", sel)
	}
	return nil
}

// Evaluate runs expression in an isolated world of the frame. Isolated worlds
// share the DOM and storage of the frame but not its globals.
func (d *frameDocument) Evaluate(ctx context.Context, expression string) error {
	if d.top {
		return d.session.Evaluate(ctx, expression)
	}
	_, err := d.evaluate(ctx, expression)
	return err
}

func (d *frameDocument) evaluateBool(ctx context.Context, expression string) (bool, error) {
	res, err := d.evaluate(ctx, expression)
	if err != nil {
		return false, err
	}
	return res != nil && string(res.Value) == "true", nil
}

func (d *frameDocument) evaluate(ctx context.Context, expression string) (*runtime.RemoteObject, error) {
	var res *runtime.RemoteObject
	err := d.session.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		execCtx, err := page.CreateIsolatedWorld(d.frameID).WithWorldName(isolatedWorldName).Do(ctx)
		if err != nil {
			return fmt.Errorf("create isolated world: %w", err)
		}
		obj, exception, err := runtime.Evaluate(expression).
			WithContextID(execCtx).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return exception
		}
		res = obj
		return nil
	}))
	return res, err
}

// selectorScript builds an expression binding el to the first match of sel.
func selectorScript(sel, body string) (string, error) {
	quoted, err := jsoniter.MarshalToString(sel)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	return fmt.Sprintf("(() => { const el = document.querySelector(%s); return %s; })()", quoted, body), nil
}

func findFrame(tree *page.FrameTree, id cdp.FrameID) *cdp.Frame {
	if tree == nil || tree.Frame == nil {
		return nil
	}
	if tree.Frame.ID == id {
		return tree.Frame
	}
	for _, child := range tree.ChildFrames {
		if f := findFrame(child, id); f != nil {
			return f
		}
	}
	return nil
}

// navigateFrame issues Page.navigate for a frame and waits for the new
// document's DOMContentLoaded. ctx must carry a chromedp executor.
func navigateFrame(ctx context.Context, frameID cdp.FrameID, url string) error {
	loaded := listenDOMContentLoaded(ctx, frameID)
	defer loaded.stop()

	_, loaderID, errorText, _, err := page.Navigate(url).WithFrameID(frameID).Do(ctx)
	if err != nil {
		return err
	}
	if errorText != "" {
		return fmt.Errorf("page load error %s", errorText)
	}
	if loaderID == "" {
		// Same-document navigation; nothing new to wait for.
		return nil
	}
	return loaded.waitFor(ctx, loaderID)
}

// lifecycleWaiter collects DOMContentLoaded loader IDs for one frame.
type lifecycleWaiter struct {
	loaders chan cdp.LoaderID
	stop    context.CancelFunc
}

func listenDOMContentLoaded(ctx context.Context, frameID cdp.FrameID) *lifecycleWaiter {
	lctx, cancel := context.WithCancel(ctx)
	w := &lifecycleWaiter{loaders: make(chan cdp.LoaderID, 16), stop: cancel}
	chromedp.ListenTarget(lctx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.FrameID != frameID || e.Name != domContentLoaded {
			return
		}
		select {
		case w.loaders <- e.LoaderID:
		default:
		}
	})
	return w
}

func (w *lifecycleWaiter) waitFor(ctx context.Context, loaderID cdp.LoaderID) error {
	return w.wait(ctx, func(id cdp.LoaderID) bool { return id == loaderID })
}

func (w *lifecycleWaiter) waitOther(ctx context.Context, previous cdp.LoaderID) error {
	defer w.stop()
	return w.wait(ctx, func(id cdp.LoaderID) bool { return id != previous })
}

func (w *lifecycleWaiter) wait(ctx context.Context, match func(cdp.LoaderID) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-w.loaders:
			if match(id) {
				return nil
			}
		}
	}
}
