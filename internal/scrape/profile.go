package scrape

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/netprobe/api/schemas"
	"github.com/xkilldash9x/netprobe/internal/config"
)

// sandboxArgs are required to run Chrome inside containers and serverless sandboxes.
var sandboxArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
}

// Header values sent with every navigation. They match DefaultPersona.
const (
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	defaultAcceptLanguage = "en-US,en;q=0.5"
)

// Viewport is the emulated window size in CSS pixels.
type Viewport struct {
	Width  int64
	Height int64
}

// BrowserProfile is everything the launcher needs to start one session's
// browser. It is built once per session and never shared.
type BrowserProfile struct {
	SessionID string
	// ExecPath is passed through to the launcher, which resolves it.
	ExecPath  string
	Headless  bool
	Stealth   bool
	Args      []string
	UserAgent string
	// Headers are sent as extra HTTP headers on every request of the page.
	Headers  map[string]string
	Viewport Viewport
	Locale   string
	Persona  schemas.Persona
}

// BuildProfile derives the browser profile for a session. It has no side effects.
func BuildProfile(sessionID string, sc SessionConfig, bc config.BrowserConfig) BrowserProfile {
	persona := schemas.DefaultPersona
	width, height := bc.ViewportSize()
	persona.Width, persona.Height = int64(width), int64(height)
	if bc.Locale != "" {
		persona.Locale = bc.Locale
	}
	if bc.TimezoneID != "" {
		persona.Timezone = bc.TimezoneID
	}

	args := make([]string, 0, len(sandboxArgs)+len(bc.Args)+1)
	args = append(args, sandboxArgs...)
	if sc.Stealth {
		// Hides navigator.webdriver at the engine level.
		args = append(args, "--disable-blink-features=AutomationControlled")
	}
	args = append(args, bc.Args...)

	return BrowserProfile{
		SessionID: sessionID,
		ExecPath:  bc.ExecPath,
		Headless:  !sc.Headful,
		Stealth:   sc.Stealth,
		Args:      args,
		UserAgent: persona.UserAgent,
		Headers:   buildHeaders(persona, sc),
		Viewport:  Viewport{Width: persona.Width, Height: persona.Height},
		Locale:    persona.Locale,
		Persona:   persona,
	}
}

func buildHeaders(p schemas.Persona, sc SessionConfig) map[string]string {
	headers := map[string]string{
		"accept":                    defaultAccept,
		"accept-language":           defaultAcceptLanguage,
		"sec-gpc":                   "1",
		"upgrade-insecure-requests": "1",
		"sec-ch-ua":                 SecCHUA(p),
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        fmt.Sprintf("%q", hintsPlatform(p)),
	}
	if p.Mobile {
		headers["sec-ch-ua-mobile"] = "?1"
	}
	if sc.Origin != "" {
		headers["Origin"] = sc.Origin
	}
	if sc.Referer != "" {
		headers["Referer"] = sc.Referer
	}
	return headers
}

// SecCHUA renders the persona's brand list as a sec-ch-ua header value.
func SecCHUA(p schemas.Persona) string {
	if p.ClientHintsData == nil {
		return ""
	}
	parts := make([]string, 0, len(p.ClientHintsData.Brands))
	for _, b := range p.ClientHintsData.Brands {
		parts = append(parts, fmt.Sprintf("%q;v=%q", b.Brand, b.Version))
	}
	return strings.Join(parts, ", ")
}

func hintsPlatform(p schemas.Persona) string {
	if p.ClientHintsData != nil && p.ClientHintsData.Platform != "" {
		return p.ClientHintsData.Platform
	}
	return "Windows"
}
