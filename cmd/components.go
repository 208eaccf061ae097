package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/netprobe/internal/browser"
	"github.com/xkilldash9x/netprobe/internal/config"
	"github.com/xkilldash9x/netprobe/internal/metrics"
	"github.com/xkilldash9x/netprobe/internal/scrape"
)

// components holds the long-lived pieces shared by serve and scrape.
type components struct {
	Browsers *browser.Manager
	Metrics  *metrics.Collector
	Runner   *scrape.Runner
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	scratch, err := browser.NewScratch(cfg.Browser.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare scratch directory: %w", err)
	}
	browsers := browser.NewManager(cfg.Browser, scratch, logger)
	collector := metrics.New()
	runner := scrape.NewRunner(browsers, scratch, cfg, logger, scrape.WithRecorder(collector))

	return &components{
		Browsers: browsers,
		Metrics:  collector,
		Runner:   runner,
	}, nil
}

// Shutdown closes any browsers still alive, bounded by the shutdown timeout.
func (c *components) Shutdown(cfg *config.Config, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := c.Browsers.Shutdown(ctx); err != nil {
		logger.Warn("Browsers did not shut down cleanly.", zap.Error(err))
	}
}
