package schemas

// -- Scrape Session Schemas --

// CapturedRequest is one outgoing request observed during a session.
type CapturedRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

// ResultMeta echoes the browser flags a session actually ran with.
type ResultMeta struct {
	StealthEnabled bool `json:"stealthEnabled"`
	Headful        bool `json:"headful"`
}

// ScrapeResult is the payload returned for a successful session.
type ScrapeResult struct {
	Message  string            `json:"message"`
	Requests []CapturedRequest `json:"requests"`
	Meta     ResultMeta        `json:"meta"`
}
