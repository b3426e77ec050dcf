package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// FieldKind selects the regex used to recover a field.
type FieldKind int

const (
	Scalar FieldKind = iota
	List
)

// FieldSpec names a field the regex fallback should look for. Default must be
// a clearly labeled placeholder, never invented content.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Default  any
	Required bool
}

var quotedRe = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

// matchFields pulls named fields straight out of raw text. It succeeds only if
// at least one required field (or, with no required fields, any field) was
// found.
func matchFields(raw string, fields []FieldSpec) (map[string]any, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	text := zeroWidth.Replace(raw)
	out := make(map[string]any, len(fields))
	matched, required, requiredMatched := 0, 0, 0

	for _, f := range fields {
		if f.Required {
			required++
		}
		var (
			v  any
			ok bool
		)
		switch f.Kind {
		case List:
			v, ok = matchList(text, f.Name)
		default:
			v, ok = matchScalar(text, f.Name)
		}
		if !ok {
			out[f.Name] = defaultValue(f)
			continue
		}
		out[f.Name] = v
		matched++
		if f.Required {
			requiredMatched++
		}
	}

	if required > 0 && requiredMatched == 0 {
		return nil, false
	}
	if matched == 0 {
		return nil, false
	}
	return out, true
}

func matchScalar(text, name string) (string, bool) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return unescape(m[1]), true
}

func matchList(text, name string) ([]any, bool) {
	re := regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(name) + `"\s*:\s*\[(.*?)\]`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	items := []any{}
	for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
		items = append(items, unescape(q[1]))
	}
	return items, true
}

// unescape decodes a captured JSON string body with JSON escape rules. Raw
// control characters and invalid escapes fall back to handling \n and \"
// only.
func unescape(s string) string {
	var u string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &u); err == nil {
		return u
	}
	r := strings.NewReplacer(`\n`, "\n", `\"`, `"`)
	return r.Replace(s)
}

func defaultValue(f FieldSpec) any {
	if f.Default != nil {
		if ss, ok := f.Default.([]string); ok {
			out := make([]any, len(ss))
			for i, s := range ss {
				out[i] = s
			}
			return out
		}
		return f.Default
	}
	if f.Kind == List {
		return []any{}
	}
	return ""
}
