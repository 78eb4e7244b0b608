// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	// Backticks are written as \x60 since raw strings cannot hold them.
	fencedObject = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*({.*})\\s*\x60\x60\x60")
	fencedBlock  = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60$")
)

// ExtractJSONObject returns the JSON object embedded in a model response.
// It accepts a bare object, an object inside a markdown fence, or an object
// surrounded by conversational text.
func ExtractJSONObject(response string) (string, bool) {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "{") && strings.HasSuffix(response, "}") {
		return response, true
	}
	if m := fencedObject.FindStringSubmatch(response); len(m) > 1 {
		return m[1], true
	}
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first != -1 && last > first {
		return response[first : last+1], true
	}
	return "", false
}

// ParseJSONResponse decodes the JSON object in response into T.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, ok := ExtractJSONObject(response)
	if !ok {
		return nil, fmt.Errorf("no JSON object in response: %s", truncate(response, 200))
	}
	var result T
	if err := json.UnmarshalFromString(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON response: %w. Extracted (truncated): %s", err, truncate(raw, 500))
	}
	return &result, nil
}

// PlainText strips a surrounding markdown fence and outer whitespace from a
// free-text response.
func PlainText(response string) string {
	response = strings.TrimSpace(response)
	if m := fencedBlock.FindStringSubmatch(response); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return response
}

// Paragraphs splits text on blank lines, dropping empty paragraphs.
func Paragraphs(text string) []string {
	var out []string
	for _, p := range regexp.MustCompile(`\n\s*\n`).Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
