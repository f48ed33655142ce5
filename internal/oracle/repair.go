package oracle

import (
	"encoding/json"
	"regexp"
	"strings"
)

var runawayQuotes = regexp.MustCompile(`"{3,}`)

// Repair fixes the malformed JSON oracles commonly produce. Valid JSON is
// returned unchanged. The fixes, in order: runs of three or more quotes are
// collapsed, single-quoted literals become double-quoted, '=' and "=>" used
// as key separators become ':', trailing commas are dropped, an odd number
// of unescaped quotes gets a closing quote, and braces/brackets are
// balanced (unmatched closers removed, missing closers appended).
func Repair(text string) string {
	if json.Valid([]byte(text)) {
		return text
	}
	s := strings.TrimSpace(text)
	s = runawayQuotes.ReplaceAllString(s, `"`)
	s = convertSingleQuotes(s)
	s = fixSeparators(s)
	if countUnescapedQuotes(s)%2 == 1 {
		s += `"`
	}
	s = balanceBrackets(s)
	return s
}

// convertSingleQuotes rewrites 'literal' outside double-quoted strings.
func convertSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inDouble {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inDouble = false
			}
			continue
		}
		switch c {
		case '"':
			inDouble = true
			b.WriteByte(c)
		case '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			lit := s[i+1 : i+1+end]
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(lit, `"`, `\"`))
			b.WriteByte('"')
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// fixSeparators replaces '=' and "=>" outside strings with ':' and removes
// commas that directly precede a closer.
func fixSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case '=':
			b.WriteByte(':')
			if i+1 < len(s) && s[i+1] == '>' {
				i++
			}
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func countUnescapedQuotes(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			n++
		}
	}
	return n
}

// balanceBrackets drops closers with no matching opener, closes openers left
// dangling by a mismatched closer, and appends closers still missing at the
// end.
func balanceBrackets(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var stack []byte
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case '{', '[':
			stack = append(stack, c)
			b.WriteByte(c)
		case '}', ']':
			open := opener(c)
			depth := lastIndex(stack, open)
			if depth < 0 {
				continue
			}
			for len(stack)-1 > depth {
				b.WriteByte(closer(stack[len(stack)-1]))
				stack = stack[:len(stack)-1]
			}
			stack = stack[:depth]
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	for len(stack) > 0 {
		b.WriteByte(closer(stack[len(stack)-1]))
		stack = stack[:len(stack)-1]
	}
	return b.String()
}

func opener(c byte) byte {
	if c == '}' {
		return '{'
	}
	return '['
}

func closer(c byte) byte {
	if c == '{' {
		return '}'
	}
	return ']'
}

func lastIndex(stack []byte, c byte) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == c {
			return i
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
