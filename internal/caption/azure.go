package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/captionbot/internal/version"
)

const azureDescribePath = "/vision/v3.2/describe"

// AzureClient is a direct HTTP client for the Azure Computer Vision
// describe operation.
type AzureClient struct {
	endpoint string
	apiKey   string
	language string
	client   *http.Client
}

// NewAzureClient creates a client for the resource at endpoint
// (e.g. https://westus.api.cognitive.microsoft.com).
func NewAzureClient(endpoint, apiKey, language string) *AzureClient {
	if language == "" {
		language = "en"
	}
	return &AzureClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		language: language,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// CaptionStream uploads the image bytes as application/octet-stream.
func (c *AzureClient) CaptionStream(ctx context.Context, r io.Reader, _ string) (string, error) {
	return c.describe(ctx, r, "application/octet-stream")
}

// CaptionURL lets the service download the image itself.
func (c *AzureClient) CaptionURL(ctx context.Context, imageURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"url": imageURL})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.describe(ctx, bytes.NewReader(payload), "application/json")
}

// Name returns the provider name.
func (c *AzureClient) Name() string {
	return "azure"
}

func (c *AzureClient) describeURL() string {
	q := url.Values{}
	q.Set("maxCandidates", "1")
	q.Set("language", c.language)
	return c.endpoint + azureDescribePath + "?" + q.Encode()
}

func (c *AzureClient) describe(ctx context.Context, body io.Reader, contentType string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.describeURL(), body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", azureError(resp.StatusCode, respBody)
	}

	var result azureDescribeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result.Description.Captions) == 0 {
		return NoCaption, nil
	}
	return phrase(result.Description.Captions[0].Text), nil
}

func azureError(status int, body []byte) error {
	var parsed azureErrorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
		if parsed.Error.Code != "" {
			msg = parsed.Error.Code + ": " + msg
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ServiceError{Provider: "azure", Code: status, Message: msg}
}

// Azure API types

type azureDescribeResponse struct {
	Description struct {
		Tags     []string `json:"tags"`
		Captions []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"captions"`
	} `json:"description"`
	RequestID string `json:"requestId"`
}

type azureErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
