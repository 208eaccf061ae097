package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// eventLog records the calls made against fake documents in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) count(event string) int {
	n := 0
	for _, e := range l.all() {
		if e == event {
			n++
		}
	}
	return n
}

// fakeDoc is an in-memory Document. Loads replay traffic through the page's interceptor.
type fakeDoc struct {
	name string
	log  *eventLog
	page *fakePage

	traffic     []InterceptedRequest
	navigateErr error
	reloadErr   error
	evalErr     error
	clickErr    error
	// present lists selectors WaitSelector finds; anything else blocks until ctx is done.
	present map[string]bool
}

func (d *fakeDoc) replay() {
	if d.page == nil || d.page.interceptor == nil {
		return
	}
	for _, r := range d.traffic {
		v := d.page.interceptor.Decide(r)
		d.page.verdicts = append(d.page.verdicts, v)
	}
}

func (d *fakeDoc) Navigate(ctx context.Context, url string) error {
	d.log.add("%s:navigate:%s", d.name, url)
	if d.navigateErr != nil {
		return d.navigateErr
	}
	d.replay()
	return nil
}

func (d *fakeDoc) Reload(ctx context.Context) error {
	d.log.add("%s:reload", d.name)
	if d.reloadErr != nil {
		return d.reloadErr
	}
	d.replay()
	return nil
}

func (d *fakeDoc) WaitSelector(ctx context.Context, sel string) error {
	d.log.add("%s:wait:%s", d.name, sel)
	if d.present[sel] {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDoc) Click(ctx context.Context, sel string) error {
	d.log.add("%s:click:%s", d.name, sel)
	return d.clickErr
}

func (d *fakeDoc) Evaluate(ctx context.Context, expression string) error {
	d.log.add("%s:eval:%s", d.name, expression)
	return d.evalErr
}

// fakePage is an in-memory Page with an optional embedded frame.
type fakePage struct {
	fakeDoc
	frame        *fakeDoc
	interceptor  Interceptor
	verdicts     []Verdict
	interceptErr error
	injectErr    error
	// frameMissing makes EmbeddedDocument block until ctx is done.
	frameMissing bool
}

func newFakePage(log *eventLog) *fakePage {
	p := &fakePage{}
	p.fakeDoc = fakeDoc{name: "page", log: log, page: p, present: map[string]bool{}}
	p.frame = &fakeDoc{name: "frame", log: log, page: p, present: map[string]bool{}}
	return p
}

func (p *fakePage) Intercept(ctx context.Context, i Interceptor) error {
	p.log.add("page:intercept")
	if p.interceptErr != nil {
		return p.interceptErr
	}
	p.interceptor = i
	return nil
}

func (p *fakePage) InjectFrame(ctx context.Context, url string) error {
	p.log.add("page:inject:%s", url)
	if p.injectErr != nil {
		return p.injectErr
	}
	p.frame.replay()
	return nil
}

func (p *fakePage) EmbeddedDocument(ctx context.Context) (Document, error) {
	p.log.add("page:embedded")
	if p.frameMissing {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.frame, nil
}

// fakeSleeper records requested delays without waiting.
type fakeSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *fakeSleeper) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

// testTimings keeps bounded waits short so timeouts fire quickly.
var testTimings = Timings{
	Settle:      5 * time.Second,
	Interaction: 20 * time.Millisecond,
	Navigation:  time.Second,
}

func req(resourceType, url string) InterceptedRequest {
	return InterceptedRequest{
		ResourceType: resourceType,
		URL:          url,
		Method:       "GET",
		Headers:      map[string]string{"accept": "*/*"},
	}
}
