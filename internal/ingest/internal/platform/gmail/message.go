package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"

	"google.golang.org/api/gmail/v1"
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	htmlScript = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// messageText prefers text/plain and falls back to stripped text/html.
func messageText(payload *gmail.MessagePart) string {
	var plain, html string

	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain") && plain == "":
				plain = decodeBody(part.Body.Data)
			case strings.HasPrefix(part.MimeType, "text/html") && html == "":
				html = decodeBody(part.Body.Data)
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)

	if plain != "" {
		return strings.TrimSpace(plain)
	}
	return StripHTML(html)
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// StripHTML reduces an HTML body to collapsed plain text.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = htmlScript.ReplaceAllString(s, " ")
	s = htmlTag.ReplaceAllString(s, " ")
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
	).Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
