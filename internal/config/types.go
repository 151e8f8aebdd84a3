package config

// Config is the root configuration for captionbot.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Caption  CaptionConfig  `yaml:"caption,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Events   EventsConfig   `yaml:"events,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
}

// GatewayAuth configures authentication of WebSocket control clients.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI lists browser origins allowed to reach the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// CaptionConfig selects and configures the captioning service.
type CaptionConfig struct {
	Provider       string `yaml:"provider,omitempty"` // "azure" | "openai" | "google" | "ollama"
	Endpoint       string `yaml:"endpoint,omitempty"` // azure resource endpoint, or a base URL override
	APIKey         string `yaml:"apiKey,omitempty"`
	Model          string `yaml:"model,omitempty"`    // openai only
	Language       string `yaml:"language,omitempty"` // azure only
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// ChannelsConfig defines the messaging transports.
type ChannelsConfig struct {
	BotFramework BotFrameworkConfig `yaml:"botframework,omitempty"`
	IRC          *IRCConfig         `yaml:"irc,omitempty"`
}

// BotFrameworkConfig configures the Bot Framework activity webhook.
// Leaving AppID empty runs without connector authentication (emulator).
type BotFrameworkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path,omitempty"`
	AppID       string `yaml:"appId,omitempty"`
	AppPassword string `yaml:"appPassword,omitempty"`
	TenantID    string `yaml:"tenantId,omitempty"`
	TokenURL    string `yaml:"tokenUrl,omitempty"` // overrides the tenant token endpoint

	// TrustedServiceHosts lists the host suffixes a reply's service URL must
	// match before the connector token is attached.
	TrustedServiceHosts []string `yaml:"trustedServiceHosts,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// EventsConfig configures publishing of caption events to RabbitMQ.
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Exchange string `yaml:"exchange,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
