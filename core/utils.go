package core

import "strings"

// CleanString normalizes user input: surrounding whitespace is dropped and,
// when lower is set, the result is lowercased (used for email addresses).
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}
