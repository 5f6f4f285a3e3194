package apierr

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

const maxMessageLen = 300

type parsedBody struct {
	message string
	code    string
	details any
}

// parseBody extracts a human-readable message from an upstream error body.
// JSON bodies may carry {message, code} or {error: {message, userFacingMessage, code}}.
// HTML bodies come from gateways in front of the API and are reduced to text.
func parseBody(body []byte, contentType string) parsedBody {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return parsedBody{}
	}
	if strings.Contains(contentType, "json") || trimmed[0] == '{' {
		if pb, ok := parseJSONBody(trimmed); ok {
			return pb
		}
	}
	if strings.Contains(contentType, "html") || trimmed[0] == '<' {
		return parsedBody{message: htmlMessage(trimmed)}
	}
	return parsedBody{message: clip(singleLine(string(trimmed)))}
}

func parseJSONBody(body []byte) (parsedBody, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return parsedBody{}, false
	}
	pb := parsedBody{details: raw}
	pb.message, _ = raw["message"].(string)
	pb.code, _ = raw["code"].(string)
	switch nested := raw["error"].(type) {
	case map[string]any:
		if pb.message == "" {
			pb.message, _ = nested["message"].(string)
		}
		if pb.message == "" {
			pb.message, _ = nested["userFacingMessage"].(string)
		}
		if pb.code == "" {
			pb.code, _ = nested["code"].(string)
		}
	case string:
		if pb.message == "" {
			pb.message = nested
		}
	}
	return pb, true
}

func htmlMessage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return clip(singleLine(string(body)))
	}
	title := singleLine(doc.Find("title").First().Text())
	if title == "" {
		title = singleLine(doc.Find("h1").First().Text())
	}
	if title != "" {
		return clip(title)
	}
	doc.Find("script, style").Remove()
	html, err := doc.Html()
	if err != nil {
		return clip(singleLine(doc.Text()))
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return clip(singleLine(doc.Text()))
	}
	for _, line := range strings.Split(md, "\n") {
		if line = strings.TrimSpace(strings.TrimLeft(line, "# ")); line != "" {
			return clip(line)
		}
	}
	return ""
}

// singleLine trims and collapses internal whitespace/newlines to single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// clip truncates s to maxMessageLen bytes without splitting a rune.
func clip(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
