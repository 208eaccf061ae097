package scrape

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterClassify(t *testing.T) {
	testCases := []struct {
		name   string
		filter string
		req    InterceptedRequest
		want   Verdict
	}{
		{"image type", "", req("Image", "https://cdn.example/a"), Abort},
		{"stylesheet type lower", "", req("stylesheet", "https://cdn.example/a"), Abort},
		{"font type", "", req("Font", "https://cdn.example/a"), Abort},
		{"png path", "", req("Other", "https://cdn.example/logo.png"), Abort},
		{"uppercase jpg is case-sensitive", "", req("XHR", "https://cdn.example/PHOTO.JPG"), Record},
		{"css with query", "", req("Other", "https://cdn.example/site.css?v=3"), Abort},
		{"woff2", "", req("Other", "https://cdn.example/f.woff2"), Abort},
		{"svg in query tail", "", req("XHR", "https://api.example/thumb?src=a.svg"), Abort},
		{"analytics marker", "", req("Script", "https://www.google-analytics.com/analytics.js"), Abort},
		{"tag manager marker", "", req("Script", "https://www.googletagmanager.com/gtm.js?id=1"), Abort},
		{"blocked despite matching filter", "png", req("Other", "https://cdn.example/a.png"), Abort},
		{"tracker despite matching filter", "google", req("XHR", "https://google-analytics.com/collect"), Abort},
		{"no filter records", "", req("Document", "https://example.com/"), Record},
		{"filter match records", ".m3u8", req("XHR", "https://media.example/master.m3u8"), Record},
		{"filter miss continues", ".m3u8", req("XHR", "https://api.example/config.json"), Continue},
		{"filter is case sensitive", "M3U8", req("XHR", "https://media.example/master.m3u8"), Continue},
		{"extension in middle of path", "", req("XHR", "https://api.example/img.png/meta"), Record},
		{"unparsable url", "", req("Other", "http://[::1"), Record},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFilter(tc.filter, &CaptureLog{})
			got := f.Classify(tc.req)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, f.Classify(tc.req), "classification must be idempotent")
		})
	}
}

func TestFilterDecide(t *testing.T) {
	t.Run("only Record verdicts are captured", func(t *testing.T) {
		log := &CaptureLog{}
		f := NewFilter("api", log)

		assert.Equal(t, Abort, f.Decide(req("Image", "https://api.example/a")))
		assert.Equal(t, Continue, f.Decide(req("XHR", "https://cdn.example/x")))
		assert.Equal(t, Record, f.Decide(req("XHR", "https://api.example/v1")))

		got := log.Snapshot()
		require.Len(t, got, 1)
		assert.Equal(t, "https://api.example/v1", got[0].URL)
		assert.Equal(t, "GET", got[0].Method)
		assert.Equal(t, map[string]string{"accept": "*/*"}, got[0].Headers)
	})

	t.Run("arrival order preserved without dedup", func(t *testing.T) {
		log := &CaptureLog{}
		f := NewFilter("", log)
		urls := []string{"https://a/3", "https://a/1", "https://a/3", "https://a/2"}
		for _, u := range urls {
			f.Decide(req("XHR", u))
		}
		got := log.Snapshot()
		require.Len(t, got, len(urls))
		for i, u := range urls {
			assert.Equal(t, u, got[i].URL)
		}
	})

	t.Run("observer sees every verdict", func(t *testing.T) {
		var seen []Verdict
		f := NewFilter("", &CaptureLog{})
		f.OnVerdict(func(v Verdict) { seen = append(seen, v) })
		f.Decide(req("Font", "https://a/f"))
		f.Decide(req("XHR", "https://a/x"))
		assert.Equal(t, []Verdict{Abort, Record}, seen)
	})

	t.Run("captured headers are copied", func(t *testing.T) {
		log := &CaptureLog{}
		r := req("XHR", "https://a/x")
		NewFilter("", log).Decide(r)
		r.Headers["accept"] = "mutated"
		assert.Equal(t, "*/*", log.Snapshot()[0].Headers["accept"])
	})
}

func TestCaptureLog(t *testing.T) {
	t.Run("empty snapshot is not nil", func(t *testing.T) {
		log := &CaptureLog{}
		assert.NotNil(t, log.Snapshot())
		assert.Equal(t, 0, log.Len())
	})

	t.Run("snapshot is detached", func(t *testing.T) {
		log := &CaptureLog{}
		NewFilter("", log).Decide(req("XHR", "https://a/1"))
		snap := log.Snapshot()
		NewFilter("", log).Decide(req("XHR", "https://a/2"))
		assert.Len(t, snap, 1)
		assert.Equal(t, 2, log.Len())
	})

	t.Run("concurrent appends are safe", func(t *testing.T) {
		log := &CaptureLog{}
		f := NewFilter("", log)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f.Decide(req("XHR", fmt.Sprintf("https://a/%d", i)))
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 50, log.Len())
	})
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "abort", Abort.String())
	assert.Equal(t, "record", Record.String())
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}
