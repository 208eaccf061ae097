// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/netprobe/internal/config"
	"github.com/xkilldash9x/netprobe/internal/observability"
	"github.com/xkilldash9x/netprobe/internal/scrape"
)

// execute runs a fresh command tree and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	t.Run("VersionFlag", func(t *testing.T) {
		out, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "netprobe version dev")
	})

	t.Run("VersionCommand", func(t *testing.T) {
		out, err := execute(t, "version")
		require.NoError(t, err)
		assert.Equal(t, "netprobe version dev\n", out)
	})

	t.Run("NoArgsPrintsHelp", func(t *testing.T) {
		out, err := execute(t)
		require.NoError(t, err)
		assert.Contains(t, out, "netprobe loads pages in a real browser")
		assert.Contains(t, out, "serve")
		assert.Contains(t, out, "scrape")
	})

	t.Run("ScrapeWithoutURL", func(t *testing.T) {
		_, err := execute(t, "scrape", "--stealth")
		require.Error(t, err)
		var missing *scrape.MissingTargetError
		assert.True(t, errors.As(err, &missing))
		assert.Equal(t, "Please provide a URL parameter.", err.Error())
	})

	t.Run("UnreadableConfig", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
		_, err := execute(t, "--config", path, "scrape", "https://example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}

func TestConfigLoading(t *testing.T) {
	newState := func(t *testing.T, yaml string) *cliState {
		t.Helper()
		t.Cleanup(observability.ResetForTest)
		st := &cliState{v: viper.New()}
		config.SetDefaults(st.v)
		if yaml != "" {
			st.cfgFile = filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(st.cfgFile, []byte(yaml), 0o600))
		}
		return st
	}

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		st := newState(t, `
server:
  listen_addr: "127.0.0.1:9999"
  max_concurrent_sessions: 4
browser:
  storage_reset_scope: wrapper
session:
  settle_delay: 2s
`)
		require.NoError(t, st.load())
		assert.Equal(t, "127.0.0.1:9999", st.cfg.Server.ListenAddr)
		assert.Equal(t, 4, st.cfg.Server.MaxConcurrentSessions)
		assert.Equal(t, config.ResetScopeWrapper, st.cfg.Browser.StorageResetScope)
		assert.Equal(t, 2*time.Second, st.cfg.Session.SettleDelay)
		// Untouched keys keep their defaults.
		assert.Equal(t, "s-maxage=3600, stale-while-revalidate", st.cfg.Server.CacheControl)
	})

	t.Run("EnvironmentOverridesFile", func(t *testing.T) {
		t.Setenv("NETPROBE_SERVER_LISTEN_ADDR", ":7070")
		st := newState(t, "server:\n  listen_addr: \":9999\"\n")
		require.NoError(t, st.load())
		assert.Equal(t, ":7070", st.cfg.Server.ListenAddr)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		st := newState(t, "server:\n  max_concurrent_sessions: 0\n")
		err := st.load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Nil(t, st.cfg)
	})
}

func TestScrapeOptionsParams(t *testing.T) {
	t.Run("OnlyTarget", func(t *testing.T) {
		q := scrapeOptions{}.params("https://example.com")
		assert.Equal(t, "url=https%3A%2F%2Fexample.com", q.Encode())
	})

	t.Run("AllOptions", func(t *testing.T) {
		opts := scrapeOptions{
			filter:            "api",
			clickSelector:     "#accept",
			origin:            "https://origin.example",
			referer:           "https://ref.example/",
			iframe:            true,
			wait:              1.5,
			clearLocalStorage: true,
			stealth:           true,
			headful:           true,
		}
		sc, err := scrape.Resolve(opts.params("https://example.com"))
		require.NoError(t, err)
		assert.Equal(t, scrape.SessionConfig{
			TargetURL:         "https://example.com",
			Filter:            "api",
			ClickSelector:     "#accept",
			Origin:            "https://origin.example",
			Referer:           "https://ref.example/",
			UseIframe:         true,
			Wait:              1500 * time.Millisecond,
			ClearLocalStorage: true,
			Stealth:           true,
			Headful:           true,
		}, sc)
	})

	t.Run("NoTarget", func(t *testing.T) {
		_, err := scrape.Resolve(scrapeOptions{filter: "api"}.params(""))
		var missing *scrape.MissingTargetError
		assert.True(t, errors.As(err, &missing))
	})
}
