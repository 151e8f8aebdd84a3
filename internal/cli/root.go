package cli

import (
	"github.com/spf13/cobra"

	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// set by PersistentPreRunE
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "captionbot",
		Short: "captionbot replies to chat images with a caption",
		Long: "captionbot receives chat messages, finds an image attachment or image URL, " +
			"asks a captioning service to describe it and replies with the caption.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			// A broken config file is reported by the command that needs
			// it; logging falls back to defaults here.
			lc := config.Defaults().Logging
			if cfg, err := config.Load(paths.Config); err == nil {
				lc = cfg.Logging
			}
			if logLevel != "" {
				lc.Level = logLevel
			}
			log = logging.NewConsole(lc.ConsoleStyle, lc.Level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.captionbot/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newCaptionCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
