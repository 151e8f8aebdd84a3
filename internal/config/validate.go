package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}

	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// Logging
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// Caption
	validProviders := []string{"azure", "openai", "google", "ollama"}
	if !slices.Contains(validProviders, cfg.Caption.Provider) {
		add("caption.provider", "must be one of %v, got %q", validProviders, cfg.Caption.Provider)
	}
	if cfg.Caption.Provider == "azure" && cfg.Caption.Endpoint == "" {
		add("caption.endpoint", "required for the azure provider")
	}
	if cfg.Caption.TimeoutSeconds < 0 {
		add("caption.timeoutSeconds", "must not be negative, got %d", cfg.Caption.TimeoutSeconds)
	}

	// Bot Framework
	bf := cfg.Channels.BotFramework
	if bf.Enabled {
		if !strings.HasPrefix(bf.Path, "/") {
			add("channels.botframework.path", "must start with /, got %q", bf.Path)
		}
		if bf.AppID != "" && bf.AppPassword == "" {
			add("channels.botframework.appPassword", "required when appId is set")
		}
		for i, host := range bf.TrustedServiceHosts {
			if strings.TrimSpace(host) == "" {
				add(fmt.Sprintf("channels.botframework.trustedServiceHosts[%d]", i), "must not be empty")
			}
		}
	}

	// IRC (only if configured)
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	// Events
	if cfg.Events.Enabled && cfg.Events.URL == "" {
		add("events.url", "required when events are enabled")
	}

	return issues
}
