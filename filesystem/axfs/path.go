package axfs

import (
	"strings"
)

// splitPath tokenizes a path on "/", canonicalizing as it goes: empty
// components and "." are dropped, ".." pops the accumulated list and never
// climbs above the root.
func splitPath(p string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	return parts
}

// canonicalPath is the memoization key for the path cache
func canonicalPath(parts []string) string {
	return "/" + strings.Join(parts, "/")
}

// resolve walks a path from the root directory to its inode number,
// memoizing full paths in a bounded cache. Intermediate components must be
// directories.
func (fs *FileSystem) resolve(p string) (uint32, error) {
	parts := splitPath(p)
	key := canonicalPath(parts)
	if number, ok := fs.pathCache[key]; ok {
		return number, nil
	}

	current := rootInode
	for _, name := range parts {
		in, err := fs.readInode(current)
		if err != nil {
			return 0, err
		}
		if in.iType != typeDir {
			return 0, ErrNotADir
		}
		ref, ok, err := fs.dirLookup(in, name)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errNotFound(name)
		}
		current = ref.inode
	}

	fs.cachePath(key, current)
	return current, nil
}

// cachePath memoizes one resolved path, evicting an arbitrary entry when the
// cache is at capacity
func (fs *FileSystem) cachePath(key string, number uint32) {
	if len(fs.pathCache) >= maxPathCacheEntries {
		for k := range fs.pathCache {
			delete(fs.pathCache, k)
			break
		}
	}
	fs.pathCache[key] = number
}

// resolveParent resolves the parent directory of a path and returns the
// final name separately. The root path resolves to (root, "").
func (fs *FileSystem) resolveParent(p string) (uint32, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return rootInode, "", nil
	}
	name := parts[len(parts)-1]
	parent, err := fs.resolve(canonicalPath(parts[:len(parts)-1]))
	if err != nil {
		return 0, "", err
	}
	return parent, name, nil
}

// readDirInode reads an inode and requires it to be a directory
func (fs *FileSystem) readDirInode(number uint32) (*inode, error) {
	in, err := fs.readInode(number)
	if err != nil {
		return nil, err
	}
	if in.iType != typeDir {
		return nil, ErrNotADir
	}
	return in, nil
}
