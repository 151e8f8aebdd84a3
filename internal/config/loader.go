package config

import (
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Caption.APIKey = expandEnvVars(cfg.Caption.APIKey)
	cfg.Channels.BotFramework.AppPassword = expandEnvVars(cfg.Channels.BotFramework.AppPassword)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	cfg.Events.URL = expandEnvVars(cfg.Events.URL)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Caption.Provider == "" {
		cfg.Caption.Provider = "azure"
	}
	if cfg.Caption.Language == "" {
		cfg.Caption.Language = "en"
	}
	if cfg.Caption.TimeoutSeconds == 0 {
		cfg.Caption.TimeoutSeconds = defaultCaptionTimeout
	}
	if cfg.Channels.BotFramework.Path == "" {
		cfg.Channels.BotFramework.Path = defaultBotPath
	}
	if cfg.Channels.BotFramework.TenantID == "" {
		cfg.Channels.BotFramework.TenantID = defaultTenant
	}
	if len(cfg.Channels.BotFramework.TrustedServiceHosts) == 0 {
		cfg.Channels.BotFramework.TrustedServiceHosts = slices.Clone(DefaultTrustedServiceHosts)
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = defaultExchange
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads CAPTIONBOT_* environment variables and overrides
// config values. The Bot Framework credentials also honor the MICROSOFT_APP_*
// names used by the Azure bot service.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAPTIONBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("CAPTIONBOT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("CAPTIONBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CAPTIONBOT_CAPTION_PROVIDER"); v != "" {
		cfg.Caption.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("CAPTIONBOT_CAPTION_ENDPOINT"); v != "" {
		cfg.Caption.Endpoint = v
	}
	if v := os.Getenv("CAPTIONBOT_CAPTION_API_KEY"); v != "" {
		cfg.Caption.APIKey = v
	}
	if v := os.Getenv("MICROSOFT_APP_ID"); v != "" {
		cfg.Channels.BotFramework.AppID = v
	}
	if v := os.Getenv("MICROSOFT_APP_PASSWORD"); v != "" {
		cfg.Channels.BotFramework.AppPassword = v
	}
}
