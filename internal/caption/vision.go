package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

const visionMaxLabels = 3

// VisionClient captions images with Google Cloud Vision label detection.
// The top labels are joined into the caption.
type VisionClient struct {
	svc *vision.Service
}

// NewVisionClient creates a client. Extra options override the endpoint or
// transport.
func NewVisionClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*VisionClient, error) {
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision service: %w", err)
	}
	return &VisionClient{svc: svc}, nil
}

// CaptionStream sends the image bytes inline.
func (c *VisionClient) CaptionStream(ctx context.Context, r io.Reader, _ string) (string, error) {
	data, err := readImage(r)
	if err != nil {
		return "", err
	}
	return c.annotate(ctx, &vision.Image{Content: base64.StdEncoding.EncodeToString(data)})
}

// CaptionURL lets the service fetch the image.
func (c *VisionClient) CaptionURL(ctx context.Context, imageURL string) (string, error) {
	return c.annotate(ctx, &vision.Image{Source: &vision.ImageSource{ImageUri: imageURL}})
}

// Name returns the provider name.
func (c *VisionClient) Name() string {
	return "google"
}

func (c *VisionClient) annotate(ctx context.Context, img *vision.Image) (string, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    img,
			Features: []*vision.Feature{{Type: "LABEL_DETECTION", MaxResults: visionMaxLabels}},
		}},
	}

	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", &ServiceError{Provider: "google", Code: gerr.Code, Message: gerr.Message}
		}
		return "", fmt.Errorf("google caption: %w", err)
	}

	if len(resp.Responses) == 0 {
		return NoCaption, nil
	}
	res := resp.Responses[0]
	if res.Error != nil && res.Error.Message != "" {
		return "", &ServiceError{Provider: "google", Message: res.Error.Message}
	}

	var labels []string
	for _, l := range res.LabelAnnotations {
		if l.Description == "" {
			continue
		}
		labels = append(labels, strings.ToLower(l.Description))
		if len(labels) == visionMaxLabels {
			break
		}
	}
	return phrase(strings.Join(labels, ", ")), nil
}
