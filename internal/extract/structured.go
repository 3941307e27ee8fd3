package extract

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const (
	nameStructured = "structured"
	nameEmbedded   = "embedded_object"
)

// StructuredStrategy accepts a body that is, in its entirety, a JSON object.
type StructuredStrategy struct{}

func (StructuredStrategy) Name() string { return nameStructured }

func (StructuredStrategy) Extract(raw domain.RawPayload) (Fields, bool) {
	body := bytes.TrimSpace(raw.Body)
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	obj, ok := decodeObject(body)
	if !ok {
		return nil, false
	}
	return canonicalize(obj), true
}

// EmbeddedObjectStrategy finds a JSON object inside mixed text. Unresolved
// template placeholders are replaced with null before decoding.
type EmbeddedObjectStrategy struct{}

func (EmbeddedObjectStrategy) Name() string { return nameEmbedded }

var (
	quotedPlaceholder = regexp.MustCompile(`"\s*\{\{[^{}]*\}\}\s*"`)
	barePlaceholder   = regexp.MustCompile(`\{\{[^{}]*\}\}`)
)

func (EmbeddedObjectStrategy) Extract(raw domain.RawPayload) (Fields, bool) {
	text := stripPlaceholders(raw.Body)

	for pos := 0; pos < len(text); {
		start := bytes.IndexByte(text[pos:], '{')
		if start < 0 {
			return nil, false
		}
		start += pos
		end := matchBrace(text, start)
		if end < 0 {
			return nil, false
		}
		if obj, ok := decodeObject(text[start : end+1]); ok {
			return canonicalize(obj), true
		}
		pos = start + 1
	}
	return nil, false
}

// stripPlaceholders replaces {{...}} tokens, quoted or bare, with null.
func stripPlaceholders(body []byte) []byte {
	out := quotedPlaceholder.ReplaceAll(body, []byte("null"))
	return barePlaceholder.ReplaceAll(out, []byte("null"))
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON string literals are ignored.
func matchBrace(text []byte, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(b []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}
