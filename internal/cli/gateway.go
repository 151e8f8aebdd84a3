package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/captionbot/internal/caption"
	"github.com/soyeahso/captionbot/internal/channel"
	"github.com/soyeahso/captionbot/internal/channel/botframework"
	"github.com/soyeahso/captionbot/internal/channel/irc"
	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/dispatch"
	"github.com/soyeahso/captionbot/internal/events"
	"github.com/soyeahso/captionbot/internal/gateway"
	"github.com/soyeahso/captionbot/internal/hooks"
	"github.com/soyeahso/captionbot/internal/plugin"
	"github.com/soyeahso/captionbot/internal/routing"
)

// drainTimeout bounds how long shutdown waits for in-flight replies.
const drainTimeout = 15 * time.Second

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the captionbot gateway",
	}
	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the webhook and control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(func(c *config.Config) {
				if port != 0 {
					c.Gateway.Port = port
				}
				if bind != "" {
					c.Gateway.Bind = bind
				}
			})
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = map[string]any{}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hookMgr := hooks.NewManager(log)
			plugins := plugin.NewRegistry(hookMgr, log)
			if cfg.Events.Enabled {
				if err := plugins.Register(events.NewPlugin(cfg.Events)); err != nil {
					return err
				}
			}
			// Plugins are optional; replies never depend on them.
			if err := plugins.InitAll(ctx); err != nil {
				log.Warn().Err(err).Msg("some plugins are inactive")
			}
			defer plugins.CloseAll()

			captioner, err := caption.New(ctx, cfg.Caption, log)
			if err != nil {
				return fmt.Errorf("caption provider: %w", err)
			}
			dispatcher := dispatch.New(captioner, log,
				dispatch.WithHooks(hookMgr),
				dispatch.WithTimeout(cfg.Caption.Timeout()),
			)

			channels := channel.NewRegistry(log)
			opts := []gateway.ServerOption{
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(hookMgr),
				gateway.WithChannels(channels),
				gateway.WithDispatcher(dispatcher),
			}

			if cfg.Channels.BotFramework.Enabled {
				bf := botframework.New(cfg.Channels.BotFramework, log)
				if err := channels.Register(bf); err != nil {
					return err
				}
				opts = append(opts, gateway.WithRoute(bf.Pattern(), bf))
			}
			if cfg.Channels.IRC != nil {
				if err := channels.Register(irc.New(*cfg.Channels.IRC, log)); err != nil {
					return err
				}
			}
			if channels.Count() == 0 {
				log.Warn().Msg("no channels enabled, only the control plane is served")
			}

			router := routing.NewRouter(channels, dispatcher, log)
			router.Wire(ctx)

			channels.StartAll(ctx)
			defer channels.StopAll(context.Background())

			log.Info().
				Str("caption", captioner.Name()).
				Strs("channels", channels.List()).
				Msg("captionbot ready")

			srv := gateway.New(cfg, log, opts...)
			err = srv.Start(ctx)

			if !router.Wait(drainTimeout) {
				log.Warn().Dur("timeout", drainTimeout).Msg("shutdown with replies still in flight")
			}
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// loadValidConfig loads the config file, applies overrides and fails with
// every validation issue logged.
func loadValidConfig(override func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if override != nil {
		override(&cfg)
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}
