package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/captionbot/internal/version"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llava"
)

// OllamaClient captions images with a local multimodal model served by
// Ollama's /api/generate. Ollama cannot fetch URLs itself, so CaptionURL
// downloads the image first.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a client. baseURL defaults to
// http://localhost:11434 and model to llava.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name.
func (o *OllamaClient) Name() string {
	return "ollama"
}

// CaptionStream sends the image bytes inline.
func (o *OllamaClient) CaptionStream(ctx context.Context, r io.Reader, _ string) (string, error) {
	data, err := readImage(r)
	if err != nil {
		return "", err
	}
	return o.generate(ctx, data)
}

// CaptionURL downloads imageURL and captions the bytes.
func (o *OllamaClient) CaptionURL(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: %s", imageURL, resp.Status)
	}
	return o.CaptionStream(ctx, resp.Body, resp.Header.Get("Content-Type"))
}

func (o *OllamaClient) generate(ctx context.Context, image []byte) (string, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:  o.model,
		Prompt: captionPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result ollamaGenerateResponse
	jsonErr := json.Unmarshal(respBody, &result)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if jsonErr == nil && result.Error != "" {
			msg = result.Error
		}
		return "", &ServiceError{Provider: "ollama", Code: resp.StatusCode, Message: msg}
	}
	if jsonErr != nil {
		return "", fmt.Errorf("failed to parse response: %w", jsonErr)
	}

	text := strings.TrimSuffix(strings.TrimSpace(result.Response), ".")
	return phrase(text), nil
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}
