package axfs

import (
	"fmt"
	"testing"
)

func TestDirAddReusesTombstones(t *testing.T) {
	fs := testVolume(t, 4096, &FormatOptions{MaxInodes: 64})
	// fill the root block: 14 names beside "." and ".."
	for i := 0; i < 14; i++ {
		if err := fs.WriteFile(fmt.Sprintf("/f%02d", i), []byte("x")); err != nil {
			t.Fatalf("WriteFile returned error: %v", err)
		}
	}
	root, err := fs.readInode(rootInode)
	if err != nil {
		t.Fatalf("readInode returned error: %v", err)
	}
	if root.nExtents != 1 {
		t.Fatalf("root grew to %d extents before the block was full", root.nExtents)
	}
	// a removal leaves a tombstone; the next add must reuse it in place
	if err := fs.RemoveFile("/f05"); err != nil {
		t.Fatalf("RemoveFile returned error: %v", err)
	}
	if err := fs.WriteFile("/reused", []byte("y")); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	root, err = fs.readInode(rootInode)
	if err != nil {
		t.Fatalf("readInode returned error: %v", err)
	}
	if root.nExtents != 1 {
		t.Errorf("root grew to %d extents instead of reusing the tombstone", root.nExtents)
	}
	// with no tombstone left, the next add allocates a block
	if err := fs.WriteFile("/overflow", []byte("z")); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	root, err = fs.readInode(rootInode)
	if err != nil {
		t.Fatalf("readInode returned error: %v", err)
	}
	if root.nExtents != 2 {
		t.Errorf("root has %d extents instead of 2 after overflowing the first block", root.nExtents)
	}
	if root.size != uint32(2*fs.sectorSize()) {
		t.Errorf("root size %d instead of expected %d", root.size, 2*fs.sectorSize())
	}
}

func TestDirHashCache(t *testing.T) {
	fs := testVolume(t, 4096, &FormatOptions{MaxInodes: 64})
	if err := fs.WriteFile("/one", []byte("1")); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	root, err := fs.readInode(rootInode)
	if err != nil {
		t.Fatalf("readInode returned error: %v", err)
	}
	if _, ok, err := fs.dirLookup(root, "one"); err != nil || !ok {
		t.Fatalf("dirLookup did not find the entry (err %v)", err)
	}
	if _, cached := fs.dirCache[rootInode]; !cached {
		t.Errorf("directory hash not cached after lookup")
	}
	// a mutation must drop the hash
	if err := fs.WriteFile("/two", []byte("2")); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	if _, cached := fs.dirCache[rootInode]; cached {
		t.Errorf("stale directory hash survived a mutation")
	}
	root, _ = fs.readInode(rootInode)
	if _, ok, _ := fs.dirLookup(root, "two"); !ok {
		t.Errorf("dirLookup does not see the new entry")
	}
}

func TestMkdirInitialBlock(t *testing.T) {
	fs := testVolume(t, 4096, &FormatOptions{MaxInodes: 64})
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir returned error: %v", err)
	}
	number, err := fs.resolve("/d")
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	in, err := fs.readInode(number)
	if err != nil {
		t.Fatalf("readInode returned error: %v", err)
	}
	entries, err := fs.readDirEntries(in)
	if err != nil {
		t.Fatalf("readDirEntries returned error: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("new directory holds %d entries instead of at least 2", len(entries))
	}
	if entries[0].name != "." || entries[0].inode != number {
		t.Errorf(`first entry %+v instead of "." pointing at the directory itself`, entries[0])
	}
	if entries[1].name != ".." || entries[1].inode != rootInode {
		t.Errorf(`second entry %+v instead of ".." pointing at the parent`, entries[1])
	}
}

func TestRenameRewritesDotDot(t *testing.T) {
	fs := testVolume(t, 4096, &FormatOptions{MaxInodes: 64})
	for _, p := range []string{"/src", "/dst", "/src/sub"} {
		if err := fs.Mkdir(p); err != nil {
			t.Fatalf("Mkdir %s returned error: %v", p, err)
		}
	}
	if err := fs.Rename("/src/sub", "/dst/sub"); err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	number, err := fs.resolve("/dst/sub")
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	in, err := fs.readInode(number)
	if err != nil {
		t.Fatalf("readInode returned error: %v", err)
	}
	entries, err := fs.readDirEntries(in)
	if err != nil {
		t.Fatalf("readDirEntries returned error: %v", err)
	}
	dstNumber, err := fs.resolve("/dst")
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	var found bool
	for _, de := range entries {
		if de.name == ".." {
			found = true
			if de.inode != dstNumber {
				t.Errorf(`".." points at inode %d instead of the new parent %d`, de.inode, dstNumber)
			}
		}
	}
	if !found {
		t.Errorf(`moved directory lost its ".." entry`)
	}
}

func TestDirFullError(t *testing.T) {
	fs := testVolume(t, 4096, &FormatOptions{MaxInodes: 512})
	// drive one directory to its 13-extent ceiling
	if err := fs.Mkdir("/crowd"); err != nil {
		t.Fatalf("Mkdir returned error: %v", err)
	}
	perBlock := fs.entriesPerDirBlock()
	capacity := maxDirectExtents*perBlock - 2 // minus "." and ".."
	var err error
	var added int
	for added = 0; added <= capacity; added++ {
		err = fs.WriteFile(fmt.Sprintf("/crowd/e%03d", added), nil)
		if err != nil {
			break
		}
	}
	if err != ErrFull {
		t.Fatalf("error %v instead of expected %v after %d entries", err, ErrFull, added)
	}
	if added != capacity {
		t.Errorf("directory took %d entries instead of expected %d", added, capacity)
	}
}
