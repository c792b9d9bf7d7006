package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitlite/pkg/object"
)

// BuildTree walks dir and returns the canonical content of the tree object
// describing it, without storing that top-level tree. Every file becomes a
// blob and every subdirectory a tree in store as a side effect, so the objects
// stay behind even when the caller discards the result. The metadata
// directory is skipped; symlinks are stored as blobs holding their target.
func BuildTree(store *object.Store, dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("build tree %s: %w", dir, err)
	}

	tr := &object.TreeObj{Entries: make([]object.TreeEntry, 0, len(entries))}
	for _, de := range entries {
		name := de.Name()
		if name == MetadataDir {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("build tree: stat %s: %w", path, err)
		}
		mode, ok := modeFromFileInfo(info)
		if !ok {
			continue
		}

		var h object.Hash
		switch mode {
		case object.TreeModeDir:
			sub, err := BuildTree(store, path)
			if err != nil {
				return nil, err
			}
			h, err = store.Write(object.TypeTree, sub)
			if err != nil {
				return nil, fmt.Errorf("build tree: write %s: %w", path, err)
			}
		case object.TreeModeSymlink:
			target, err := os.Readlink(path)
			if err != nil {
				return nil, fmt.Errorf("build tree: readlink %s: %w", path, err)
			}
			h, err = store.WriteBlob([]byte(target))
			if err != nil {
				return nil, fmt.Errorf("build tree: write %s: %w", path, err)
			}
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("build tree: read %s: %w", path, err)
			}
			h, err = store.WriteBlob(data)
			if err != nil {
				return nil, fmt.Errorf("build tree: write %s: %w", path, err)
			}
		}
		tr.Entries = append(tr.Entries, object.TreeEntry{Mode: mode, Name: name, Hash: h})
	}

	content, err := object.MarshalTree(tr)
	if err != nil {
		return nil, fmt.Errorf("build tree %s: %w", dir, err)
	}
	return content, nil
}

// WriteTree builds the tree for dir and stores it, returning its id.
func WriteTree(store *object.Store, dir string) (object.Hash, error) {
	content, err := BuildTree(store, dir)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write-tree: %w", err)
	}
	h, err := store.Write(object.TypeTree, content)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write-tree: %w", err)
	}
	return h, nil
}

// WriteTree stores the tree of the whole working directory.
func (r *Repo) WriteTree() (object.Hash, error) {
	return WriteTree(r.Store, r.RootDir)
}
