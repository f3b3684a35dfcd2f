// Package testutil provides tree-validation helpers shared by filesystem
// tests.
package testutil

import (
	"strings"
	"testing"

	"github.com/axis-oc/axisos/filesystem/axfs"
)

// ValidateTree walks every directory of the volume from the root and fails
// the test on structural damage: directory cycles, "." or ".." leaking into
// listings, or entry names that are not base names.
func ValidateTree(t *testing.T, fs *axfs.FileSystem) {
	t.Helper()
	seen := map[uint32]string{}
	var walk func(path string)
	walk = func(path string) {
		entries, err := fs.ListDir(path)
		if err != nil {
			t.Fatalf("ListDir(%q) returned error: %v", path, err)
		}
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				t.Fatalf("illegal entry %q in %q", e.Name, path)
			}
			if strings.Contains(e.Name, "/") {
				t.Fatalf("entry name %q in %q is not a base name", e.Name, path)
			}
			child := path + "/" + e.Name
			if path == "/" {
				child = "/" + e.Name
			}
			if e.Type == axfs.TypeDir {
				if prev, ok := seen[e.Inode]; ok {
					t.Fatalf("cycle detected: directory inode %d reached via %q and %q", e.Inode, prev, child)
				}
				seen[e.Inode] = child
				walk(child)
			}
		}
	}
	walk("/")
}
