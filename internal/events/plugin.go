package events

import (
	"context"
	"errors"

	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/logging"
	"github.com/soyeahso/captionbot/internal/plugin"
)

// PluginID identifies the publisher in the plugin registry.
const PluginID = "events.amqp"

// Plugin connects to the broker on Init and publishes every hook event.
type Plugin struct {
	cfg  config.EventsConfig
	dial func(url, exchange string, log *logging.Logger) (*Publisher, error)
	pub  *Publisher
}

// NewPlugin creates the publisher plugin for cfg.
func NewPlugin(cfg config.EventsConfig) *Plugin {
	return &Plugin{cfg: cfg, dial: Dial}
}

func (p *Plugin) ID() string { return PluginID }

func (p *Plugin) Init(_ context.Context, api plugin.API) error {
	if p.cfg.URL == "" {
		return errors.New("events.url is not set")
	}
	pub, err := p.dial(p.cfg.URL, p.cfg.Exchange, api.Log)
	if err != nil {
		return err
	}
	p.pub = pub
	pub.Attach(api.Hooks)
	api.Log.Info().Str("exchange", p.cfg.Exchange).Msg("publishing events")
	return nil
}

func (p *Plugin) Close() error {
	if p.pub == nil {
		return nil
	}
	return p.pub.Close()
}
