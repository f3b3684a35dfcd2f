package axfs

import "fmt"

// Health is the result of a volume self-check
type Health struct {
	OK     bool
	Issues []string
	Cache  CacheStats
}

// Health verifies the superblock copies, the root inode, and the free-count
// bookkeeping against the bitmaps, and surfaces the checksum failure
// counters. Data is never rewritten; remediation belongs to the caller.
func (fs *FileSystem) Health() Health {
	var issues []string

	// both superblock copies should still parse and pass their CRC
	for _, sector := range []uint32{primarySector, secondarySector} {
		b, err := fs.cache.ReadSector(sector)
		if err != nil {
			issues = append(issues, fmt.Sprintf("superblock sector %d unreadable: %v", sector, err))
			continue
		}
		if _, err := superblockFromBytes(b); err != nil {
			issues = append(issues, fmt.Sprintf("superblock sector %d invalid: %v", sector, err))
		}
	}

	// the root inode anchors every path
	root, err := fs.readInode(rootInode)
	switch {
	case err != nil:
		issues = append(issues, fmt.Sprintf("root inode unreadable: %v", err))
	case root.iType != typeDir:
		issues = append(issues, "root inode is not a directory")
	case root.links < 2:
		issues = append(issues, fmt.Sprintf("root inode link count %d, want at least 2", root.links))
	}

	// superblock counters must agree with the bitmaps
	if free := fs.blockBitmap.CountFree(int(fs.sb.maxBlocks)); uint32(free) != fs.sb.freeBlocks {
		issues = append(issues, fmt.Sprintf("free block count %d does not match bitmap %d", fs.sb.freeBlocks, free))
	}
	if free := fs.inodeBitmap.CountFree(int(fs.sb.maxInodes)); uint32(free) != fs.sb.freeInodes {
		issues = append(issues, fmt.Sprintf("free inode count %d does not match bitmap %d", fs.sb.freeInodes, free))
	}

	if fs.checksumFails > 0 {
		issues = append(issues, fmt.Sprintf("%d checksum failure(s)", fs.checksumFails))
	}
	if fs.badInodeCRCs > 0 {
		issues = append(issues, fmt.Sprintf("%d inode(s) with invalid CRC", fs.badInodeCRCs))
	}

	return Health{
		OK:     len(issues) == 0,
		Issues: issues,
		Cache:  fs.cache.stats(),
	}
}
