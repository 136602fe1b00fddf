package static

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"root", "/", ""},
		{"simple", "/a/b/c", "a/b/c"},
		{"trailing slash", "/a/b/", "a/b"},
		{"duplicate slashes", "//a///b", "a/b"},
		{"dot segments", "/a/./b/.", "a/b"},
		{"parent pops", "/a/b/../c", "a/c"},
		{"parent at root", "/../../a", "a"},
		{"all parents", "/../..", ""},
		{"backslashes", `a\b\c`, "a/b/c"},
		{"mixed separators", `/a\..\b`, "b"},
		{"encoded traversal already decoded", "../../../etc/passwd", "etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.in))
		})
	}
}

func TestDecodePathSafely(t *testing.T) {
	assert.Equal(t, "/a b", decodePathSafely("/a%20b"))
	assert.Equal(t, "/a/../b", decodePathSafely("/a/%2e%2e/b"))
	// Malformed escapes fall back to the raw path instead of failing.
	assert.Equal(t, "/a%zzb", decodePathSafely("/a%zzb"))
}

func TestHasDotSegment(t *testing.T) {
	assert.True(t, hasDotSegment(".git/config"))
	assert.True(t, hasDotSegment("a/.env"))
	assert.False(t, hasDotSegment("a/b.txt"))
	assert.False(t, hasDotSegment(""))
}

func TestNormalizePathProperties(t *testing.T) {
	t.Run("never escapes the root", rapid.MakeCheck(func(t *rapid.T) {
		path := rapid.String().Draw(t, "path")
		out := normalizePath(decodePathSafely(path))
		for _, part := range strings.Split(out, "/") {
			if part == ".." {
				t.Fatalf("normalized path %q still contains a parent segment", out)
			}
		}
		if strings.HasPrefix(out, "/") {
			t.Fatalf("normalized path %q is absolute", out)
		}
	}))

	t.Run("idempotent", rapid.MakeCheck(func(t *rapid.T) {
		path := rapid.String().Draw(t, "path")
		once := normalizePath(path)
		if twice := normalizePath(once); twice != once {
			t.Fatalf("normalizePath not idempotent: %q -> %q", once, twice)
		}
	}))
}
