package metadata

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Violation is one schema mismatch in an extracted document.
type Violation struct {
	Field   string
	Problem string
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Problem
	}
	return v.Field + ": " + v.Problem
}

// Validate checks obj against s. Explicit nulls are accepted for every field since the prompt
// asks the model to emit them when information is missing. Unknown attributes are ignored.
func Validate(s Schema, obj map[string]any) []Violation {
	rawAttrs, ok := obj[AttributesKey]
	if !ok {
		return []Violation{{Problem: "missing " + AttributesKey}}
	}
	attrs, ok := rawAttrs.(map[string]any)
	if !ok {
		return []Violation{{Field: AttributesKey, Problem: fmt.Sprintf("is %T, want object", rawAttrs)}}
	}

	var out []Violation
	for _, name := range s.RequiredFields() {
		if _, ok := attrs[name]; !ok {
			out = append(out, Violation{Field: name, Problem: "required field missing"})
		}
	}

	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		f, known := s.Field(name)
		if !known {
			continue
		}
		val := attrs[name]
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			out = append(out, Violation{Field: name, Problem: fmt.Sprintf("is %T, want string", val)})
			continue
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(str) > f.MaxLength {
			out = append(out, Violation{Field: name, Problem: fmt.Sprintf("length %d exceeds maxLength %d", utf8.RuneCountInString(str), f.MaxLength)})
		}
	}
	return out
}
