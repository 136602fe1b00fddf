// Package static serves files and directory listings from one or more root
// directories. Request paths are normalized segment by segment before they
// touch the filesystem, so traversal sequences can never escape a root.
package static

import (
	"net/url"
	"strings"
)

// decodePathSafely percent-decodes a URL path, falling back to the raw input
// when the encoding is malformed.
func decodePathSafely(path string) string {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return path
	}
	return decoded
}

// normalizePath rebuilds a request path from its segments: empty and "."
// segments are dropped, ".." pops the previous segment, and both slash
// flavours are treated as separators. The result never points above the root
// it is joined to.
func normalizePath(path string) string {
	var used []string
	for _, part := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		switch part {
		case "", ".":
		case "..":
			if len(used) > 0 {
				used = used[:len(used)-1]
			}
		default:
			used = append(used, part)
		}
	}
	return strings.Join(used, "/")
}

// hasDotSegment reports whether any segment of a normalized path starts with
// a dot.
func hasDotSegment(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if strings.HasPrefix(part, ".") && part != "" {
			return true
		}
	}
	return false
}
