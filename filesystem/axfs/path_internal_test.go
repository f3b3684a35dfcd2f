package axfs

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path     string
		expected []string
	}{
		{"/", []string{}},
		{"", []string{}},
		{"/a", []string{"a"}},
		{"/a/b/c", []string{"a", "b", "c"}},
		{"a/b", []string{"a", "b"}},
		{"/a//b/", []string{"a", "b"}},
		{"/a/./b", []string{"a", "b"}},
		{"/a/../b", []string{"b"}},
		{"/../..", []string{}},
		{"/a/b/../../c", []string{"c"}},
		{"/..", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := splitPath(tt.path)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("splitPath(%q) mismatch (-want +got):\n%s", tt.path, diff)
			}
		})
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		parts    []string
		expected string
	}{
		{[]string{}, "/"},
		{[]string{"a"}, "/a"},
		{[]string{"a", "b"}, "/a/b"},
	}
	for _, tt := range tests {
		if got := canonicalPath(tt.parts); got != tt.expected {
			t.Errorf("canonicalPath(%v) = %q instead of expected %q", tt.parts, got, tt.expected)
		}
	}
}

func TestPathCacheBounded(t *testing.T) {
	fs := testVolume(t, 4096, &FormatOptions{MaxInodes: 512})
	for i := 0; i < maxPathCacheEntries+10; i++ {
		fs.cachePath("/"+strings.Repeat("x", 3)+string(rune('a'+i%26))+string(rune('0'+i%10)), uint32(i%100+2))
	}
	if len(fs.pathCache) > maxPathCacheEntries {
		t.Errorf("path cache grew to %d entries, cap is %d", len(fs.pathCache), maxPathCacheEntries)
	}
}
