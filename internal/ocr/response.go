// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pdiddy/paper-digest/pkg/types"
)

var (
	fenceOpen  = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	fenceClose = regexp.MustCompile("\r?\n?[ \t]*```$")
)

// StripFences removes one leading and one trailing code fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ParseElements decodes a layout response into records. It accepts a JSON
// array, or an object holding an "elements" array. When the whole text does
// not decode, the first decodable bracketed span is used. Non-object
// records are skipped. Nothing recoverable yields an empty, non-nil slice.
func ParseElements(raw string) []types.RawElement {
	s := StripFences(raw)
	if records, ok := decodeRecords([]byte(s)); ok {
		return records
	}
	for _, span := range bracketSpans(s) {
		if records, ok := decodeRecords([]byte(span)); ok {
			return records
		}
	}
	return []types.RawElement{}
}

// decodeRecords reports ok when data is valid JSON of a usable shape.
func decodeRecords(data []byte) ([]types.RawElement, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		elems, ok := t["elements"].([]any)
		if !ok {
			return []types.RawElement{}, true
		}
		items = elems
	default:
		return nil, false
	}

	records := make([]types.RawElement, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := types.RawElement{Category: "Text"}
		if c, ok := obj["category"].(string); ok && c != "" {
			rec.Category = c
		}
		if text, ok := obj["text"].(string); ok {
			rec.Text = text
		}
		rec.BBox = decodeBBox(obj["bbox"])
		records = append(records, rec)
	}
	return records, true
}

// decodeBBox returns four numbers or nil. Anything else is treated as
// missing geometry.
func decodeBBox(v any) []float64 {
	arr, ok := v.([]any)
	if !ok || len(arr) < 4 {
		return nil
	}
	box := make([]float64, 4)
	for i := 0; i < 4; i++ {
		f, ok := arr[i].(float64)
		if !ok {
			return nil
		}
		box[i] = f
	}
	return box
}

// bracketSpans returns balanced [...] and {...} spans in order of their
// opening position, skipping brackets inside JSON strings.
func bracketSpans(s string) []string {
	var spans []string
	for start := 0; start < len(s); start++ {
		if s[start] != '[' && s[start] != '{' {
			continue
		}
		if end := matchBracket(s, start); end > start {
			spans = append(spans, s[start:end+1])
			if len(spans) >= 8 {
				break
			}
		}
	}
	return spans
}

func matchBracket(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
