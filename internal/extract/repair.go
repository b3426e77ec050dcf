package extract

import "strings"

var zeroWidth = strings.NewReplacer(
	"\ufeff", "",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
)

// repairObject applies syntactic fixes to a candidate object and parses it.
// If the repaired text still fails, members are dropped from the end one at a
// time so a truncated trailing field does not cost the earlier ones.
func repairObject(candidate string) (map[string]any, bool) {
	fixed, commas := sanitize(zeroWidth.Replace(candidate))
	if m, ok := parseObject(closeObject(fixed)); ok {
		return m, true
	}
	for i := len(commas) - 1; i >= 0; i-- {
		if m, ok := parseObject(closeObject(fixed[:commas[i]])); ok {
			return m, true
		}
	}
	return nil, false
}

// sanitize walks s tracking string and escape state. Raw control characters
// inside strings are escaped and trailing commas before a closer are dropped.
// It returns the rewritten text and the offsets of the structural commas kept.
func sanitize(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s) + 16)
	var commas []int
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c < 0x20:
				b.WriteString(escapeControl(c))
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			if next := nextNonSpace(s, i+1); next == '}' || next == ']' {
				continue
			}
			commas = append(commas, b.Len())
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), commas
}

func escapeControl(c byte) string {
	switch c {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '\b':
		return `\b`
	case '\f':
		return `\f`
	}
	const hex = "0123456789abcdef"
	return `\u00` + string(hex[c>>4]) + string(hex[c&0x0f])
}

func nextNonSpace(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return s[i]
	}
	return 0
}

// closeObject terminates an unfinished string and appends the closers needed
// to balance every unmatched '{' and '[' in nesting order.
func closeObject(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		s = strings.TrimRight(s, " \t\r\n")
		s = strings.TrimSuffix(s, ",")
		b.WriteString(s)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
