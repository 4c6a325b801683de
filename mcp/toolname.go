package mcp

import (
	"strconv"
	"strings"
)

// SanitizeToolName makes a remote tool name usable as an identifier: every
// rune outside [A-Za-z0-9_] becomes '_' and a leading digit gets a '_' prefix.
func SanitizeToolName(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 1)
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// UniqueToolName returns base, or base_2, base_3, ... for the first name that
// taken reports free.
func UniqueToolName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}
