// Package extract recovers structured records from free-form model output.
//
// Generative backends usually return mostly-valid JSON wrapped in prose or
// markdown fences, sometimes truncated or with raw control characters inside
// strings. Extract tries progressively more aggressive strategies and prefers
// a partially-correct record over a hard failure.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/scamshield/internal/failure"
)

// Strategy identifies which recovery step produced a record.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyDirect
	StrategyBoundary
	StrategyRepair
	StrategyFields
)

var strategyNames = [...]string{"none", "direct", "boundary", "repair", "fields"}

// String returns the strategy name.
func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Degraded reports whether the record came from the regex fallback, meaning
// fields may hold placeholder defaults.
func (s Strategy) Degraded() bool { return s == StrategyFields }

// Extract returns the first JSON object recoverable from raw. fields drives
// the regex fallback; it may be nil, in which case structural recovery is the
// only option. Failures are *failure.Error values of KindExtraction.
func Extract(raw string, fields []FieldSpec) (map[string]any, Strategy, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, StrategyNone, failure.Extraction("empty", raw)
	}

	cleaned := StripFences(raw)
	if m, ok := parseObject(cleaned); ok {
		return m, StrategyDirect, nil
	}

	candidate, balanced, found := scanObject(cleaned)
	if found {
		if balanced {
			if m, ok := parseObject(candidate); ok {
				return m, StrategyBoundary, nil
			}
		}
		if m, ok := repairObject(candidate); ok {
			return m, StrategyRepair, nil
		}
	}

	if m, ok := matchFields(raw, fields); ok {
		return m, StrategyFields, nil
	}
	return nil, StrategyNone, failure.Extraction("unparseable", raw)
}

// Decode extracts a record from raw and unmarshals it into out.
func Decode(raw string, fields []FieldSpec, out any) (Strategy, error) {
	m, strategy, err := Extract(raw, fields)
	if err != nil {
		return strategy, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return strategy, failure.Extraction("unencodable", raw)
	}
	if err := json.Unmarshal(data, out); err != nil {
		fe := failure.Extraction("schema mismatch", raw)
		fe.Err = err
		return strategy, fe
	}
	return strategy, nil
}

// StripFences removes a leading ``` marker (with optional language tag) and a
// trailing ``` marker, plus surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	opened := strings.HasPrefix(s, "```")
	if opened {
		s = s[3:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	if opened {
		// Drop the language tag, as long as it looks like a bare word.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && isFenceTag(s[:nl]) {
			s = s[nl+1:]
		} else if isFenceTag(s) {
			s = ""
		}
	}
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// parseObject decodes s as a single JSON object. Numbers are kept as
// json.Number so a re-encoded record is byte-stable.
func parseObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	// Reject trailing content such as a second object or prose.
	if strings.TrimSpace(s[dec.InputOffset():]) != "" {
		return nil, false
	}
	return m, true
}

// scanObject locates the first '{' and its matching '}' while ignoring braces
// inside string literals. When the object never closes, the tail from the
// first '{' is returned with balanced=false.
func scanObject(s string) (obj string, balanced, found bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false, false
	}
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true, true
			}
		}
	}
	return s[start:], false, true
}
