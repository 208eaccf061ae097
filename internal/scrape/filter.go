package scrape

import (
	"net/url"
	"strings"
	"sync"

	"github.com/xkilldash9x/netprobe/api/schemas"
)

// Verdict is the interception decision for a single request.
type Verdict int

const (
	// Continue lets the request through without recording it.
	Continue Verdict = iota
	// Record appends the request to the capture log and lets it through.
	Record
	// Abort fails the request before it leaves the browser.
	Abort
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case Record:
		return "record"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// InterceptedRequest is the view of a paused request the filter decides on.
// ResourceType is matched case-insensitively ("Image" and "image" are equal).
type InterceptedRequest struct {
	ResourceType string
	URL          string
	Method       string
	Headers      map[string]string
}

var blockedResourceTypes = map[string]struct{}{
	"image":      {},
	"stylesheet": {},
	"font":       {},
}

var blockedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg",
	".css",
	".woff", ".woff2", ".ttf", ".otf",
}

var trackerMarkers = []string{
	"google-analytics",
	"googletagmanager",
}

// Interceptor decides the fate of each paused request. Implementations must
// return quickly; the page's network activity is blocked on the answer.
type Interceptor interface {
	Decide(r InterceptedRequest) Verdict
}

// Filter is the per-session interception pipeline.
type Filter struct {
	substring string
	log       *CaptureLog
	observe   func(Verdict)
}

// NewFilter returns a filter recording into log. An empty substring records
// every request that is not blocked.
func NewFilter(substring string, log *CaptureLog) *Filter {
	return &Filter{substring: substring, log: log}
}

// OnVerdict registers fn to be called with every decision. Not safe to call
// once the filter is in use.
func (f *Filter) OnVerdict(fn func(Verdict)) {
	f.observe = fn
}

// Classify returns the verdict for r without side effects. First match wins.
func (f *Filter) Classify(r InterceptedRequest) Verdict {
	if _, ok := blockedResourceTypes[strings.ToLower(r.ResourceType)]; ok {
		return Abort
	}
	if hasBlockedExtension(r.URL) {
		return Abort
	}
	for _, marker := range trackerMarkers {
		if strings.Contains(r.URL, marker) {
			return Abort
		}
	}
	if f.substring == "" || strings.Contains(r.URL, f.substring) {
		return Record
	}
	return Continue
}

// Decide classifies r and records it when the verdict is Record.
func (f *Filter) Decide(r InterceptedRequest) Verdict {
	v := f.Classify(r)
	if v == Record && f.log != nil {
		f.log.Append(schemas.CapturedRequest{
			URL:     r.URL,
			Method:  r.Method,
			Headers: r.Headers,
		})
	}
	if f.observe != nil {
		f.observe(v)
	}
	return v
}

// hasBlockedExtension checks both the parsed path and the raw URL, so a
// static asset is caught whether or not it carries a query string. Matching
// is case-sensitive: "/PHOTO.JPG" is not blocked by extension.
func hasBlockedExtension(raw string) bool {
	candidates := []string{raw}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		candidates = append(candidates, u.Path)
	}
	for _, c := range candidates {
		for _, ext := range blockedExtensions {
			if strings.HasSuffix(c, ext) {
				return true
			}
		}
	}
	return false
}

// CaptureLog is the ordered list of recorded requests for one session.
type CaptureLog struct {
	mu      sync.Mutex
	records []schemas.CapturedRequest
}

// Append records r in arrival order. The header map is copied.
func (c *CaptureLog) Append(r schemas.CapturedRequest) {
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	r.Headers = headers

	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

// Len returns the number of recorded requests.
func (c *CaptureLog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Snapshot returns a copy of the records. It is never nil.
func (c *CaptureLog) Snapshot() []schemas.CapturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schemas.CapturedRequest, len(c.records))
	copy(out, c.records)
	return out
}
