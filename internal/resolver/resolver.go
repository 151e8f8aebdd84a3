// Package resolver turns an inbound message into an ImageReference.
//
// Strategies are tried in a fixed order and the first match wins:
//
//  1. the first attachment whose content type contains "image"
//  2. text that is exactly one <a href="...">...</a> element
//  3. text that is itself a well-formed absolute URI
//  4. the first http://, https:// or www. run embedded in the text
//
// Resolution never performs I/O.
package resolver

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/soyeahso/captionbot/internal/domain"
)

var (
	// anchorPattern must match the whole text, optionally followed by one
	// trailing newline. The href value is taken verbatim and the link text
	// may not contain another tag.
	anchorPattern = regexp.MustCompile(`(?i)^<a href="([^"]*)">[^<]*</a>\n?\z`)

	// embeddedURLPrefix finds a run starting with http://, https:// or www.
	// RE2 classes are ASCII only, so word boundaries and Unicode whitespace
	// are handled by extractURL.
	embeddedURLPrefix = regexp.MustCompile(`(?i)(?:https?://|www\.)`)
)

// authHostSuffix is the attachment host family whose content URLs need the
// bot's bearer token. Only https URLs qualify.
const authHostSuffix = "skype.com"

// Resolve inspects msg and returns the image to caption, or
// domain.ErrNoImageFound.
func Resolve(msg domain.InboundMessage) (domain.ImageReference, error) {
	if ref, ok := fromAttachments(msg.Attachments); ok {
		return ref, nil
	}

	text := msg.Body
	if href, ok := parseAnchorTag(text); ok {
		return domain.ByURL(href, domain.StrategyAnchor), nil
	}
	if isAbsoluteURI(text) {
		return domain.ByURL(text, domain.StrategyURI), nil
	}
	if u, ok := extractURL(text); ok {
		return domain.ByURL(u, domain.StrategyEmbedded), nil
	}

	return domain.ImageReference{}, domain.ErrNoImageFound
}

func fromAttachments(attachments []domain.Attachment) (domain.ImageReference, bool) {
	for _, a := range attachments {
		if strings.Contains(a.ContentType, "image") {
			return domain.ByContent(a.ContentURL, a.ContentType, RequiresAuth(a.ContentURL)), true
		}
	}
	return domain.ImageReference{}, false
}

// RequiresAuth reports whether fetching contentURL needs a bearer token:
// the scheme is https and the host ends with skype.com. Unparsable URLs
// never get a token.
func RequiresAuth(contentURL string) bool {
	u, err := url.Parse(contentURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return u.Scheme == "https" && strings.HasSuffix(host, authHostSuffix)
}

func parseAnchorTag(text string) (string, bool) {
	m := anchorPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func isAbsoluteURI(text string) bool {
	if text == "" || strings.ContainsFunc(text, isIllegalURIRune) {
		return false
	}
	u, err := url.Parse(text)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != "" || u.Path != ""
}

// isIllegalURIRune reports runes that never appear unescaped in a URI.
func isIllegalURIRune(r rune) bool {
	if unicode.IsSpace(r) || unicode.IsControl(r) {
		return true
	}
	switch r {
	case '"', '<', '>', '\\', '^', '`', '{', '|', '}':
		return true
	}
	return false
}

// extractURL returns the first run that starts with an embedded URL prefix
// on a word boundary and extends over non-space runes, trimmed back to its
// last word rune. Quotes and angle brackets end the run since a URI never
// contains them unescaped.
func extractURL(text string) (string, bool) {
	for offset := 0; offset < len(text); {
		loc := embeddedURLPrefix.FindStringIndex(text[offset:])
		if loc == nil {
			return "", false
		}
		start, prefixEnd := offset+loc[0], offset+loc[1]

		if before, _ := utf8.DecodeLastRuneInString(text[:start]); start == 0 || !isWordRune(before) {
			run := text[start:]
			if i := strings.IndexFunc(run, endsURLRun); i >= 0 {
				run = run[:i]
			}
			if end := lastWordRuneEnd(run); end > prefixEnd-start {
				return run[:end], true
			}
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return "", false
}

func endsURLRun(r rune) bool {
	return unicode.IsSpace(r) || r == '"' || r == '<' || r == '>'
}

// isWordRune matches the runes a regex word boundary treats as word
// characters: letters, digits, combining marks and connector punctuation.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Pc, r)
}

// lastWordRuneEnd returns the byte offset just past the last word rune in
// s, or 0 when s has none.
func lastWordRuneEnd(s string) int {
	for end := len(s); end > 0; {
		r, size := utf8.DecodeLastRuneInString(s[:end])
		if isWordRune(r) {
			return end
		}
		end -= size
	}
	return 0
}
