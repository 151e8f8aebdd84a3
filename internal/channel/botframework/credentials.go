package botframework

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/soyeahso/captionbot/internal/config"
)

// connectorScope is the OAuth2 scope for the Bot Connector service.
const connectorScope = "https://api.botframework.com/.default"

// TokenURL returns the token endpoint for cfg.
func TokenURL(cfg config.BotFrameworkConfig) string {
	if cfg.TokenURL != "" {
		return cfg.TokenURL
	}
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "botframework.com"
	}
	return "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0/token"
}

// TokenSource obtains connector bearer tokens with the client credentials
// grant. Tokens are cached until shortly before they expire; a refresh runs
// under the caller's context.
type TokenSource struct {
	cc     clientcredentials.Config
	client *http.Client

	mu  sync.Mutex
	tok *oauth2.Token
}

// NewTokenSource creates a TokenSource for the bot's app ID and password.
// client may be nil.
func NewTokenSource(cfg config.BotFrameworkConfig, client *http.Client) *TokenSource {
	return &TokenSource{
		cc: clientcredentials.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppPassword,
			TokenURL:     TokenURL(cfg),
			Scopes:       []string{connectorScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: client,
	}
}

// BearerToken returns a valid access token, fetching a new one when the
// cached token is missing or about to expire.
func (t *TokenSource) BearerToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tok.Valid() {
		return t.tok.AccessToken, nil
	}

	if t.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)
	}
	tok, err := t.cc.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("botframework token: %w", err)
	}
	t.tok = tok
	return tok.AccessToken, nil
}
