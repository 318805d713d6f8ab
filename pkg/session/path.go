package session

import "strings"

// RootPath is the hierarchy label of a session's top-level call.
const RootPath = "/"

// NormalizePath canonicalizes a slash-delimited hierarchy label.
//
// Consecutive separators collapse to one, a trailing separator is removed,
// a missing leading separator is added and empty input maps to RootPath.
// NormalizePath(NormalizePath(p)) == NormalizePath(p) for every p.
func NormalizePath(p string) string {
	if p == "" {
		return RootPath
	}

	var b strings.Builder
	b.Grow(len(p) + 1)
	if p[0] != '/' {
		b.WriteByte('/')
	}

	prevSep := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSep {
				continue
			}
			prevSep = true
		} else {
			prevSep = false
		}
		b.WriteByte(c)
	}

	out := b.String()
	if len(out) > 1 && out[len(out)-1] == '/' {
		out = out[:len(out)-1]
	}
	return out
}

// ParentPath returns the hierarchy label one level above p, or "" when p
// is the root and therefore has no parent.
func ParentPath(p string) string {
	n := NormalizePath(p)
	if n == RootPath {
		return ""
	}
	idx := strings.LastIndexByte(n, '/')
	if idx <= 0 {
		return RootPath
	}
	return n[:idx]
}
