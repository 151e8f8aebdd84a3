package config

import (
	"fmt"
	"slices"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	// DefaultPort is the port Bot Framework samples listen on.
	DefaultPort = 3978

	defaultBotPath        = "/api/messages"
	defaultTenant         = "botframework.com"
	defaultExchange       = "captionbot.events"
	defaultCaptionTimeout = 30
)

// DefaultTrustedServiceHosts are the connector host families the Bot
// Framework hands out as service URLs.
var DefaultTrustedServiceHosts = []string{"botframework.com", "trafficmanager.net", "skype.com"}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: DefaultPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Caption: CaptionConfig{
			Provider:       "azure",
			Language:       "en",
			TimeoutSeconds: defaultCaptionTimeout,
		},
		Channels: ChannelsConfig{
			BotFramework: BotFrameworkConfig{
				Enabled:  true,
				Path:     defaultBotPath,
				TenantID: defaultTenant,

				TrustedServiceHosts: slices.Clone(DefaultTrustedServiceHosts),
			},
		},
		Events: EventsConfig{
			Exchange: defaultExchange,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// Timeout returns the bound applied to each outbound call.
func (c CaptionConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultCaptionTimeout * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
