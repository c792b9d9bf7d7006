package main

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/repo"
)

// resolveObject accepts a full object id, HEAD, or a branch or tag name.
func resolveObject(r *repo.Repo, spec string) (object.Hash, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return object.ZeroHash, fmt.Errorf("empty object name")
	}
	h, err := r.ResolveRef(spec)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("not a valid object name %q: %w", spec, err)
	}
	return h, nil
}

// resolveTree peels a commit to its tree.
func resolveTree(r *repo.Repo, spec string) (object.Hash, error) {
	h, err := resolveObject(r, spec)
	if err != nil {
		return object.ZeroHash, err
	}
	objType, data, err := r.Store.Read(h)
	if err != nil {
		return object.ZeroHash, err
	}
	switch objType {
	case object.TypeTree:
		return h, nil
	case object.TypeCommit:
		c, err := object.UnmarshalCommit(data)
		if err != nil {
			return object.ZeroHash, fmt.Errorf("commit %s: %w", h, err)
		}
		return c.TreeHash, nil
	default:
		return object.ZeroHash, fmt.Errorf("%s is a %s, not a tree", h, objType)
	}
}

// entryType names the object kind a tree entry points at.
func entryType(mode string) object.ObjectType {
	switch mode {
	case object.TreeModeDir:
		return object.TypeTree
	case object.TreeModeGitlink:
		return object.TypeCommit
	default:
		return object.TypeBlob
	}
}

// displayMode pads tree modes to six digits the way git prints them.
func displayMode(mode string) string {
	if len(mode) < 6 {
		return strings.Repeat("0", 6-len(mode)) + mode
	}
	return mode
}
