package guardrail

import (
	"encoding/json"
)

type shape string

const (
	shapeNestedText    shape = "nested_text"
	shapeFlatString    shape = "flat_string"
	shapeContentString shape = "content_string"
	shapeContentNested shape = "content_nested"
	shapeUnrecognized  shape = "unrecognized"
)

// matcher tries one structural interpretation of an output segment.
type matcher struct {
	shape shape
	match func(out map[string]json.RawMessage) (string, bool)
}

// Checked in order; the first match yielding a non-empty string wins.
var matchers = []matcher{
	{shapeNestedText, func(out map[string]json.RawMessage) (string, bool) {
		return nestedText(out["text"])
	}},
	{shapeFlatString, func(out map[string]json.RawMessage) (string, bool) {
		return flatString(out["text"])
	}},
	{shapeContentString, func(out map[string]json.RawMessage) (string, bool) {
		return flatString(out["content"])
	}},
	{shapeContentNested, func(out map[string]json.RawMessage) (string, bool) {
		return nestedText(out["content"])
	}},
}

func decodeOutput(raw json.RawMessage) (string, shape) {
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", shapeUnrecognized
	}
	for _, m := range matchers {
		if s, ok := m.match(out); ok {
			return s, m.shape
		}
	}
	return "", shapeUnrecognized
}

// {"text": "..."} nested one level down.
func nestedText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var obj struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Text == nil || *obj.Text == "" {
		return "", false
	}
	return *obj.Text, true
}

func flatString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}
