package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/netprobe/internal/scrape"
)

// launchFlag is a single Chrome command-line switch. A false value removes a
// switch that chromedp would otherwise pass by default.
type launchFlag struct {
	name  string
	value interface{}
}

// launchFlags assembles the switches for a session's browser on top of
// chromedp.DefaultExecAllocatorOptions.
func launchFlags(p scrape.BrowserProfile, userDataDir string) []launchFlag {
	flags := []launchFlag{
		{"headless", p.Headless},
		{"window-size", fmt.Sprintf("%d,%d", p.Viewport.Width, p.Viewport.Height)},
		{"lang", p.Locale},
		{"user-agent", p.UserAgent},
	}
	if !p.Headless {
		// chromedp.Headless also sets these; a visible window should look normal.
		flags = append(flags, launchFlag{"hide-scrollbars", false}, launchFlag{"mute-audio", false})
	}
	if p.Stealth {
		// Removes the automation infobar and the navigator.webdriver hint.
		flags = append(flags, launchFlag{"enable-automation", false})
	}
	if userDataDir != "" {
		flags = append(flags, launchFlag{"user-data-dir", userDataDir})
	}
	for _, arg := range p.Args {
		flags = append(flags, parseArg(arg))
	}
	return flags
}

// parseArg converts "--name" or "--name=value" into a launchFlag.
func parseArg(arg string) launchFlag {
	parts := strings.SplitN(arg, "=", 2)
	name := strings.TrimPrefix(parts[0], "--")
	if len(parts) == 2 {
		return launchFlag{name, parts[1]}
	}
	return launchFlag{name, true}
}

// allocatorOptions builds the chromedp allocator options for a session.
func allocatorOptions(p scrape.BrowserProfile, execPath, userDataDir string, launchTimeout time.Duration) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if launchTimeout > 0 {
		opts = append(opts, chromedp.WSURLReadTimeout(launchTimeout))
	}
	for _, f := range launchFlags(p, userDataDir) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}
