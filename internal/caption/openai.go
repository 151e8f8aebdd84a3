package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"

	captionPrompt = "Write a short caption for this image, lower case, " +
		"like \"a dog sitting on a couch\". Reply with the caption only. " +
		"If you cannot tell what the image shows, reply with nothing."
)

// OpenAIClient captions images with a vision-capable chat model.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client. An empty baseURL uses the public API.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// CaptionStream sends the image inline as a base64 data URL.
func (c *OpenAIClient) CaptionStream(ctx context.Context, r io.Reader, contentType string) (string, error) {
	data, err := readImage(r)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return c.caption(ctx, dataURL)
}

// CaptionURL passes the remote URL through to the model.
func (c *OpenAIClient) CaptionURL(ctx context.Context, imageURL string) (string, error) {
	return c.caption(ctx, imageURL)
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

func (c *OpenAIClient) caption(ctx context.Context, imageURL string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(captionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageURL,
				}),
			}),
		},
		MaxCompletionTokens: openai.Int(60),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &ServiceError{Provider: "openai", Code: apiErr.StatusCode, Message: apiErr.Message}
		}
		return "", fmt.Errorf("openai caption: %w", err)
	}

	if len(completion.Choices) == 0 {
		return NoCaption, nil
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	text = strings.TrimSuffix(text, ".")
	return phrase(text), nil
}
