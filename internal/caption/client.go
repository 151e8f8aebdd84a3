// Package caption talks to the external image captioning services.
package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// NoCaption is the reply used when the service recognised nothing.
const NoCaption = "Couldn't find a caption for this one"

// maxImageBytes caps images read into memory for inline upload.
const maxImageBytes = 20 << 20

// ErrImageTooLarge is returned when an inline image exceeds maxImageBytes.
var ErrImageTooLarge = errors.New("image too large")

// Client is the interface every captioning provider implements. Both
// operations return the finished reply text.
type Client interface {
	// CaptionStream captions image bytes read from r.
	CaptionStream(ctx context.Context, r io.Reader, contentType string) (string, error)

	// CaptionURL asks the service to fetch and caption a publicly reachable image.
	CaptionURL(ctx context.Context, imageURL string) (string, error)

	// Name returns the provider name (e.g. "azure", "openai").
	Name() string
}

// ServiceError is returned when a captioning service rejects a request.
type ServiceError struct {
	Provider string
	Code     int // HTTP status code, 0 if unknown
	Message  string
}

func (e *ServiceError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// phrase turns a raw caption into reply text.
func phrase(caption string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return NoCaption
	}
	return "I think it's " + caption
}

// readImage reads an image for inline upload. Images over maxImageBytes are
// rejected rather than truncated.
func readImage(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrImageTooLarge, maxImageBytes)
	}
	return data, nil
}
