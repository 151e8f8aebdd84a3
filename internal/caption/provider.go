package caption

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/logging"
)

// New builds the Client selected by cfg.Provider.
func New(ctx context.Context, cfg config.CaptionConfig, log *logging.Logger) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Provider {
	case "", "azure":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("caption: azure provider requires an endpoint")
		}
		client = NewAzureClient(cfg.Endpoint, cfg.APIKey, cfg.Language)
	case "openai":
		client = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.Endpoint)
	case "ollama":
		client = NewOllamaClient(cfg.Endpoint, cfg.Model)
	case "google":
		var opts []option.ClientOption
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		client, err = NewVisionClient(ctx, cfg.APIKey, opts...)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("caption: unknown provider %q", cfg.Provider)
	}

	log.Sub("caption").Info().Str("provider", client.Name()).Msg("caption provider ready")
	return client, nil
}
