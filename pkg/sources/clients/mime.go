package clients

import (
	"encoding/base64"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"google.golang.org/api/gmail/v1"
)

// Strict policy drops every tag and the content of script/style elements.
var htmlStripper = bluemonday.StrictPolicy()

// ExtractMessageBody returns the best textual body of a MIME part tree:
// text/plain first, then text/html with tags stripped, then whatever nested
// multipart containers yield. Returns "" when no textual part exists.
func ExtractMessageBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}

	if part.Body != nil && part.Body.Data != "" {
		text := decodeBodyData(part.Body.Data)
		if strings.HasPrefix(part.MimeType, "text/html") {
			return StripHTML(text)
		}
		return text
	}

	if p := findPart(part.Parts, "text/plain"); p != nil {
		if body := ExtractMessageBody(p); body != "" {
			return body
		}
	}
	if p := findPart(part.Parts, "text/html"); p != nil {
		if body := ExtractMessageBody(p); body != "" {
			return body
		}
	}

	for _, p := range part.Parts {
		if p.Filename != "" {
			continue
		}
		if body := ExtractMessageBody(p); body != "" {
			return body
		}
	}

	return ""
}

func findPart(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, p := range parts {
		if p != nil && p.Filename == "" && strings.HasPrefix(p.MimeType, mimeType) {
			return p
		}
	}
	return nil
}

// decodeBodyData decodes Gmail's base64url body data. Gmail is inconsistent
// about padding, so padding is stripped before decoding. Undecodable data is
// returned as-is.
func decodeBodyData(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return data
	}
	return string(decoded)
}

// Entity-encoded markup decodes into new tags, so stripping repeats until
// the text is stable. Bounded for pathological multiply-encoded input.
const maxStripPasses = 4

// StripHTML removes tags, decodes entities and collapses runs of whitespace
// into single spaces. Markup that only appears after decoding is removed too.
func StripHTML(s string) string {
	text := s
	for i := 0; i < maxStripPasses; i++ {
		// Keep adjacent block elements from gluing their words together
		next := html.UnescapeString(htmlStripper.Sanitize(strings.ReplaceAll(text, "<", " <")))
		next = strings.Join(strings.Fields(next), " ")
		if next == text {
			break
		}
		text = next
	}
	return text
}

// headerValue returns the first header with the given name, or fallback.
func headerValue(headers []*gmail.MessagePartHeader, name, fallback string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) && h.Value != "" {
			return h.Value
		}
	}
	return fallback
}
