package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/netprobe/internal/scrape"
)

func TestCollector(t *testing.T) {
	t.Run("Verdicts", func(t *testing.T) {
		c := New()
		c.ObserveVerdict("abort")
		c.ObserveVerdict("abort")
		c.ObserveVerdict("record")

		assert.Equal(t, 2.0, testutil.ToFloat64(c.verdicts.WithLabelValues("abort")))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.verdicts.WithLabelValues("record")))
		assert.Equal(t, 0.0, testutil.ToFloat64(c.verdicts.WithLabelValues("continue")))
	})

	t.Run("Sessions", func(t *testing.T) {
		c := New()
		c.ObserveSession(scrape.OutcomeSuccess, 3*time.Second, 7)
		c.ObserveSession(scrape.OutcomeLaunchError, time.Second, 0)

		assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions.WithLabelValues(scrape.OutcomeSuccess)))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions.WithLabelValues(scrape.OutcomeLaunchError)))
		assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
		// Only successful sessions report a capture size.
		families, err := c.Registry().Gather()
		require.NoError(t, err)
		var samples uint64
		for _, mf := range families {
			if mf.GetName() == "netprobe_captured_requests" {
				samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
			}
		}
		assert.Equal(t, uint64(1), samples)
	})

	t.Run("InFlightAndRejected", func(t *testing.T) {
		c := New()
		c.SessionStarted()
		c.SessionStarted()
		c.SessionFinished()
		c.Rejected()

		assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.rejected))
	})

	t.Run("Handler", func(t *testing.T) {
		c := New()
		c.ObserveVerdict("record")

		srv := httptest.NewServer(c.Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		text := string(body)
		assert.True(t, strings.Contains(text, `netprobe_intercepted_requests_total{verdict="record"} 1`), text)
		assert.Contains(t, text, "go_goroutines")
	})
}
