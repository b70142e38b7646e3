// Command authgate runs the authgate HTTP service and its maintenance tasks.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authgate/config"
)

type rootOptions struct {
	envFile string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "authgate",
		Short:         "Authentication, session and risk-gated access service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional env file read before the environment")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newHashPasswordCommand())
	return cmd
}

func loadSettings(opts *rootOptions) (*config.Settings, *log.Logger, error) {
	settings, err := config.Load(opts.envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(settings)
	if err != nil {
		return nil, nil, err
	}
	return settings, logger, nil
}

func newLogger(s *config.Settings) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if s.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
