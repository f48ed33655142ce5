package model

import (
	"strconv"
	"strings"
)

// SplitPointer splits a JSON-pointer style path into unescaped segments.
// "" addresses the root. A path without a leading slash is treated as a
// single field name, which is how oracle output often spells fields.
func SplitPointer(path string) []string {
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		return []string{path}
	}
	parts := strings.Split(path[1:], "/")
	for i, p := range parts {
		parts[i] = unescapeSegment(p)
	}
	return parts
}

// JoinPointer builds a pointer from raw segments.
func JoinPointer(segments ...string) string {
	if len(segments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(escapeSegment(s))
	}
	return b.String()
}

// FieldName is the output name a pointer produces: its last segment.
func FieldName(path string) string {
	segs := SplitPointer(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Lookup resolves a pointer against a document value.
func Lookup(root interface{}, path string) (interface{}, bool) {
	cur := root
	for _, seg := range SplitPointer(path) {
		switch node := cur.(type) {
		case *Row:
			v, ok := node.Get(seg)
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func unescapeSegment(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}
