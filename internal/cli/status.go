package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and validation issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "captionbot %s (commit %s)\n\n", version.Version, version.Commit)
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Logs:    %s\n\n", paths.Logs)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			printStatus(cmd, cfg)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, cfg config.Config) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s tls=%v\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)

	c := cfg.Caption
	fmt.Fprintf(out, "Caption: provider=%s language=%s timeout=%s", c.Provider, c.Language, c.Timeout())
	if c.Endpoint != "" {
		fmt.Fprintf(out, " endpoint=%s", c.Endpoint)
	}
	fmt.Fprintln(out)

	if bf := cfg.Channels.BotFramework; bf.Enabled {
		auth := "emulator (no app id)"
		if bf.AppID != "" {
			auth = "app " + bf.AppID
		}
		fmt.Fprintf(out, "Bot:     path=%s %s\n", bf.Path, auth)
	} else {
		fmt.Fprintln(out, "Bot:     (disabled)")
	}

	if irc := cfg.Channels.IRC; irc != nil {
		fmt.Fprintf(out, "IRC:     server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		fmt.Fprintln(out, "IRC:     (not configured)")
	}

	if cfg.Events.Enabled {
		fmt.Fprintf(out, "Events:  exchange=%s\n", cfg.Events.Exchange)
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
}
