package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/netprobe/api/schemas"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsJS string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsPersona is the subset of a persona the evasion script reads.
type jsPersona struct {
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
}

// Script returns the evasion script bound to p, ready for
// Page.addScriptToEvaluateOnNewDocument.
func Script(p schemas.Persona) (string, error) {
	data, err := json.Marshal(jsPersona{
		Platform:  p.Platform,
		Languages: p.Languages,
		Width:     p.Width,
		Height:    p.Height,
	})
	if err != nil {
		return "", fmt.Errorf("encode persona: %w", err)
	}
	return fmt.Sprintf("(%s)(%s);", strings.TrimSpace(evasionsJS), data), nil
}

// UserAgentMetadata converts the persona's client hints for Emulation.setUserAgentOverride.
// It returns nil when the persona carries no hints.
func UserAgentMetadata(p schemas.Persona) *emulation.UserAgentMetadata {
	h := p.ClientHintsData
	if h == nil {
		return nil
	}
	brands := make([]*emulation.UserAgentBrandVersion, 0, len(h.Brands))
	for _, b := range h.Brands {
		brands = append(brands, &emulation.UserAgentBrandVersion{Brand: b.Brand, Version: b.Version})
	}
	return &emulation.UserAgentMetadata{
		Brands:          brands,
		Platform:        h.Platform,
		PlatformVersion: h.PlatformVersion,
		Architecture:    h.Architecture,
		Bitness:         h.Bitness,
		Mobile:          h.Mobile,
	}
}

// AcceptLanguage renders the persona languages with descending quality values.
func AcceptLanguage(p schemas.Persona) string {
	if len(p.Languages) == 0 {
		return p.Locale
	}
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Apply returns the actions that make an automated tab present the persona:
// a consistent user agent with client hints, the evasion script on every new
// document, and matching timezone and locale.
func Apply(p schemas.Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	ua := emulation.SetUserAgentOverride(p.UserAgent).
		WithAcceptLanguage(AcceptLanguage(p)).
		WithPlatform(p.Platform)
	if md := UserAgentMetadata(p); md != nil {
		ua = ua.WithUserAgentMetadata(md)
	}

	return chromedp.Tasks{
		ua,
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := Script(p)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
	}
}
