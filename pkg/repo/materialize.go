package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
)

var ErrUnsupportedMode = errors.New("unsupported tree entry mode")

// UnsupportedModeError reports a tree entry RenderTree cannot reproduce on
// disk, such as a gitlink.
type UnsupportedModeError struct {
	Path string
	Mode string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("%s %s at %s", ErrUnsupportedMode, e.Mode, e.Path)
}

func (e *UnsupportedModeError) Is(target error) bool {
	return target == ErrUnsupportedMode
}

// RenderTree writes the tree treeID from store into targetDir, creating it if
// needed. Directories recurse, regular and executable files get 0644 and 0755
// permissions, and symlinks are recreated from their blob. Any other mode is
// an *UnsupportedModeError. Files already present are overwritten.
func RenderTree(store *object.Store, targetDir string, treeID object.Hash) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("render tree: mkdir %s: %w", targetDir, err)
	}
	tr, err := store.ReadTree(treeID)
	if err != nil {
		return fmt.Errorf("render tree %s: %w", treeID, err)
	}

	for _, e := range tr.Entries {
		if err := checkEntryName(e.Name); err != nil {
			return fmt.Errorf("render tree %s: %w", treeID, err)
		}
		path := filepath.Join(targetDir, e.Name)
		if err := removeSymlink(path); err != nil {
			return fmt.Errorf("render tree: %w", err)
		}

		switch e.Mode {
		case object.TreeModeDir:
			if err := RenderTree(store, path, e.Hash); err != nil {
				return err
			}
		case object.TreeModeFile, object.TreeModeExecutable:
			data, err := store.ReadBlob(e.Hash)
			if err != nil {
				return fmt.Errorf("render tree: read blob for %s: %w", path, err)
			}
			if err := writeWorktreeFile(path, data, filePermFromMode(e.Mode)); err != nil {
				return fmt.Errorf("render tree: %w", err)
			}
		case object.TreeModeSymlink:
			target, err := store.ReadBlob(e.Hash)
			if err != nil {
				return fmt.Errorf("render tree: read link for %s: %w", path, err)
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("render tree: replace %s: %w", path, err)
			}
			if err := os.Symlink(string(target), path); err != nil {
				return fmt.Errorf("render tree: %w", err)
			}
		default:
			return &UnsupportedModeError{Path: path, Mode: e.Mode}
		}
	}
	return nil
}

// removeSymlink deletes path when it is a symlink so nothing is written
// through a link left by an earlier entry or checkout.
func removeSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("replace symlink %s: %w", path, err)
	}
	return nil
}

// checkEntryName rejects names that would escape the target directory or
// overwrite repository metadata.
func checkEntryName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.EqualFold(name, MetadataDir) {
		return fmt.Errorf("unsafe tree entry name %q", name)
	}
	return nil
}

func writeWorktreeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file and applies umask.
	return os.Chmod(path, perm)
}
