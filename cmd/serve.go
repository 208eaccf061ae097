package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/netprobe/internal/observability"
	"github.com/xkilldash9x/netprobe/internal/server"
)

func newServeCmd(st *cliState) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scrape API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := st.cfg

			comps, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown(cfg, logger)

			logger.Info("Starting netprobe server",
				zap.String("version", Version),
				zap.String("listen_addr", cfg.Server.ListenAddr),
				zap.Int("max_concurrent_sessions", cfg.Server.MaxConcurrentSessions),
			)
			return server.New(cfg.Server, comps.Runner, comps.Metrics, logger).Start(ctx)
		},
	}

	serveCmd.Flags().String("listen", "", "address to listen on (overrides server.listen_addr)")
	serveCmd.Flags().Int("max-sessions", 0, "maximum concurrent browser sessions (overrides server.max_concurrent_sessions)")
	serveCmd.Flags().Bool("metrics", true, "expose /metrics (overrides server.enable_metrics)")
	_ = st.v.BindPFlag("server.listen_addr", serveCmd.Flags().Lookup("listen"))
	_ = st.v.BindPFlag("server.max_concurrent_sessions", serveCmd.Flags().Lookup("max-sessions"))
	_ = st.v.BindPFlag("server.enable_metrics", serveCmd.Flags().Lookup("metrics"))
	return serveCmd
}
