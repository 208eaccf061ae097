// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/netprobe/internal/config"
	"github.com/xkilldash9x/netprobe/internal/observability"
)

const envPrefix = "NETPROBE"

// cliState is shared by the root command and its subcommands.
type cliState struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	st := &cliState{v: viper.New()}
	config.SetDefaults(st.v)

	rootCmd := &cobra.Command{
		Use:   "netprobe",
		Short: "netprobe loads pages in a real browser and reports the requests they make.",
		// Version is set at build time. See cmd/version.go.
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&st.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newServeCmd(st), newScrapeCmd(st), newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a signal-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config file and environment, then initializes logging.
func (st *cliState) load() error {
	if st.cfgFile != "" {
		st.v.SetConfigFile(st.cfgFile)
	} else {
		st.v.AddConfigPath(".")
		st.v.SetConfigName("config")
		st.v.SetConfigType("yaml")
	}

	st.v.SetEnvPrefix(envPrefix)
	st.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	st.v.AutomaticEnv()

	if err := st.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	cfg, err := config.NewConfigFromViper(st.v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "netprobe"})
		return err
	}
	st.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	observability.GetLogger().Debug("Configuration loaded.",
		zap.String("version", Version),
		zap.String("config_file", st.v.ConfigFileUsed()),
	)
	return nil
}
