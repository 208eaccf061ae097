package cmd

import (
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/netprobe/internal/observability"
	"github.com/xkilldash9x/netprobe/internal/scrape"
)

// scrapeOptions mirrors the HTTP query parameters.
type scrapeOptions struct {
	filter            string
	clickSelector     string
	origin            string
	referer           string
	iframe            bool
	wait              float64
	clearLocalStorage bool
	stealth           bool
	headful           bool
}

// params renders the options the way the HTTP API would receive them, so both
// entry points resolve through scrape.Resolve.
func (o scrapeOptions) params(target string) url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set(scrape.ParamURL, target)
	set(scrape.ParamFilter, o.filter)
	set(scrape.ParamClickSelector, o.clickSelector)
	set(scrape.ParamOrigin, o.origin)
	set(scrape.ParamReferer, o.referer)
	if o.iframe {
		q.Set(scrape.ParamIframe, "true")
	}
	if o.wait > 0 {
		q.Set(scrape.ParamWait, strconv.FormatFloat(o.wait, 'f', -1, 64))
	}
	if o.clearLocalStorage {
		q.Set(scrape.ParamClearLocalStorage, "true")
	}
	if o.stealth {
		q.Set(scrape.ParamStealth, "true")
	}
	if o.headful {
		q.Set(scrape.ParamHeadful, "true")
	}
	return q
}

func newScrapeCmd(st *cliState) *cobra.Command {
	var opts scrapeOptions

	scrapeCmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Run one scrape session and print the captured requests as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			sc, err := scrape.Resolve(opts.params(target))
			if err != nil {
				return err
			}

			logger := observability.GetLogger()
			comps, err := initializeComponents(st.cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown(st.cfg, logger)

			result, err := comps.Runner.Run(cmd.Context(), sc)
			if err != nil {
				return err
			}

			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	flags := scrapeCmd.Flags()
	flags.StringVar(&opts.filter, "filter", "", "record only requests whose URL contains this substring")
	flags.StringVar(&opts.clickSelector, "click-selector", "", "CSS selector to click after load")
	flags.StringVar(&opts.origin, "origin", "", "Origin header to send")
	flags.StringVar(&opts.referer, "referer", "", "Referer header to send")
	flags.BoolVar(&opts.iframe, "iframe", false, "load the target inside a wrapper iframe")
	flags.Float64Var(&opts.wait, "wait", 0, "seconds to hold before collecting results")
	flags.BoolVar(&opts.clearLocalStorage, "clear-local-storage", false, "clear localStorage and re-fetch the page")
	flags.BoolVar(&opts.stealth, "stealth", false, "apply the stealth persona")
	flags.BoolVar(&opts.headful, "headful", false, "run the browser with a visible window")
	return scrapeCmd
}
