package domain

// ImageSource discriminates the two kinds of ImageReference.
type ImageSource string

const (
	// SourceContent is an attachment whose bytes are fetched over HTTP.
	SourceContent ImageSource = "content"
	// SourceURL is a plain URL handed to the captioning service as-is.
	SourceURL ImageSource = "url"
)

// Strategy names the resolver step that produced a reference.
type Strategy string

const (
	StrategyAttachment Strategy = "attachment"
	StrategyAnchor     Strategy = "anchor"
	StrategyURI        Strategy = "uri"
	StrategyEmbedded   Strategy = "embedded"
)

// ImageReference is the normalized result of resolving a message.
// RequiresAuth and ContentType are only meaningful for SourceContent.
type ImageReference struct {
	Source       ImageSource `json:"source"`
	URL          string      `json:"url"`
	RequiresAuth bool        `json:"requiresAuth,omitempty"`
	ContentType  string      `json:"contentType,omitempty"`
	Strategy     Strategy    `json:"strategy"`
}

// ByContent returns an attachment-backed reference.
func ByContent(url, contentType string, requiresAuth bool) ImageReference {
	return ImageReference{
		Source:       SourceContent,
		URL:          url,
		RequiresAuth: requiresAuth,
		ContentType:  contentType,
		Strategy:     StrategyAttachment,
	}
}

// ByURL returns a text-extracted URL reference.
func ByURL(url string, strategy Strategy) ImageReference {
	return ImageReference{Source: SourceURL, URL: url, Strategy: strategy}
}
