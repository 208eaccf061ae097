package scrape

import (
	"math"
	"strconv"
	"time"
)

// Query parameter names accepted by Resolve.
const (
	ParamURL               = "url"
	ParamFilter            = "filter"
	ParamClickSelector     = "clickSelector"
	ParamOrigin            = "origin"
	ParamReferer           = "referer"
	ParamIframe            = "iframe"
	ParamWait              = "wait"
	ParamClearLocalStorage = "clearlocalstorage"
	ParamStealth           = "stealth"
	ParamHeadful           = "headful"
)

// Params is any source of optional string parameters. url.Values satisfies it.
type Params interface {
	Get(key string) string
}

// SessionConfig is the typed form of one invocation's parameters.
type SessionConfig struct {
	TargetURL         string
	Filter            string
	ClickSelector     string
	Origin            string
	Referer           string
	UseIframe         bool
	Wait              time.Duration
	ClearLocalStorage bool
	Stealth           bool
	Headful           bool
}

// Resolve turns raw parameters into a SessionConfig. The only failure is a
// missing url; every other field falls back to its default. URLs are not
// validated here, a malformed one fails at navigation.
func Resolve(p Params) (SessionConfig, error) {
	target := p.Get(ParamURL)
	if target == "" {
		return SessionConfig{}, &MissingTargetError{}
	}

	return SessionConfig{
		TargetURL:         target,
		Filter:            p.Get(ParamFilter),
		ClickSelector:     p.Get(ParamClickSelector),
		Origin:            p.Get(ParamOrigin),
		Referer:           p.Get(ParamReferer),
		UseIframe:         presenceFlag(p.Get(ParamIframe)),
		Wait:              parseWait(p.Get(ParamWait)),
		ClearLocalStorage: strictFlag(p.Get(ParamClearLocalStorage)),
		Stealth:           strictFlag(p.Get(ParamStealth)),
		Headful:           strictFlag(p.Get(ParamHeadful)),
	}, nil
}

// strictFlag is true only for the literal "true". Default false.
func strictFlag(v string) bool {
	return v == "true"
}

// presenceFlag is true for any non-empty value other than "false" or "0". Default false.
func presenceFlag(v string) bool {
	switch v {
	case "", "false", "0":
		return false
	}
	return true
}

// parseWait reads decimal seconds. Negative, non-finite or unparsable input yields zero.
func parseWait(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return 0
	}
	// Guard against overflowing time.Duration.
	if secs > math.MaxInt64/float64(time.Second) {
		return 0
	}
	return time.Duration(math.Round(secs * float64(time.Second)))
}
