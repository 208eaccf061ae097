package stealth

import (
	"strings"
	"testing"

	"github.com/chromedp/cdproto/emulation"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/netprobe/api/schemas"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestScript(t *testing.T) {
	script, err := Script(schemas.DefaultPersona)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "("), "script must be an invocation")
	assert.True(t, strings.HasSuffix(script, `"width":1280,"height":720});`))
	assert.Contains(t, script, `"platform":"Win32"`)
	assert.Contains(t, script, `"languages":["en-US","en"]`)
	assert.Contains(t, script, "webdriver")
}

func TestUserAgentMetadata(t *testing.T) {
	t.Run("FromClientHints", func(t *testing.T) {
		want := &emulation.UserAgentMetadata{
			Brands: []*emulation.UserAgentBrandVersion{
				{Brand: "Chromium", Version: "120"},
				{Brand: "Google Chrome", Version: "120"},
				{Brand: "Not A;Brand", Version: "99"},
			},
			Platform:        "Windows",
			PlatformVersion: "10.0.0",
			Architecture:    "x86",
			Bitness:         "64",
		}
		if diff := cmp.Diff(want, UserAgentMetadata(schemas.DefaultPersona)); diff != "" {
			t.Errorf("UserAgentMetadata mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("NoHints", func(t *testing.T) {
		p := schemas.DefaultPersona
		p.ClientHintsData = nil
		assert.Nil(t, UserAgentMetadata(p))
	})
}

func TestAcceptLanguage(t *testing.T) {
	tests := []struct {
		name      string
		languages []string
		locale    string
		want      string
	}{
		{"Default", []string{"en-US", "en"}, "en-US", "en-US,en;q=0.9"},
		{"Single", []string{"de-DE"}, "de-DE", "de-DE"},
		{"FallsBackToLocale", nil, "fr-FR", "fr-FR"},
		{"Many", []string{"a", "b", "c"}, "", "a,b;q=0.9,c;q=0.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := schemas.Persona{Languages: tt.languages, Locale: tt.locale}
			assert.Equal(t, tt.want, AcceptLanguage(p))
		})
	}
}

func TestApply(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tasks := Apply(schemas.DefaultPersona, zap.New(core))

	assert.Len(t, tasks, 4)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Applying browser stealth persona", entry.Message)
	assert.Equal(t, "Win32", entry.ContextMap()["platform"])
}
