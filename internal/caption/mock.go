package caption

import (
	"context"
	"io"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	StreamFunc   func(ctx context.Context, r io.Reader, contentType string) (string, error)
	URLFunc      func(ctx context.Context, imageURL string) (string, error)
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) CaptionStream(ctx context.Context, r io.Reader, contentType string) (string, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, r, contentType)
	}
	return phrase("a mock image"), nil
}

func (m *MockClient) CaptionURL(ctx context.Context, imageURL string) (string, error) {
	if m.URLFunc != nil {
		return m.URLFunc(ctx, imageURL)
	}
	return phrase("a mock image"), nil
}
