package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/version"
)

// FetchError is returned when an attachment download answers non-2xx.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Fetcher downloads attachment content.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client}
}

// Open issues a GET for ref.URL and returns the response body. A non-empty
// token is sent as a bearer credential together with an octet-stream Accept
// header; otherwise the declared content type is accepted. The caller must
// close the returned body.
func (f *Fetcher) Open(ctx context.Context, ref domain.ImageReference, token string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", version.UserAgent())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/octet-stream")
	} else if ref.ContentType != "" {
		req.Header.Set("Accept", ref.ContentType)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &FetchError{URL: ref.URL, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
