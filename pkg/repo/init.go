package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
)

var ErrNotRepository = errors.New("not a git repository")

const defaultBranch = "main"

// Init creates a repository whose metadata lives in <path>/.git with the
// default layout. See InitLayout.
func Init(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	return InitLayout(abs, object.DefaultLayout(filepath.Join(abs, MetadataDir)))
}

// InitLayout creates the metadata skeleton described by layout for the
// worktree at root: the objects directory, refs/heads, refs/tags, HEAD
// pointing at refs/heads/main and a default config. It fails when the
// layout root already exists.
func InitLayout(root string, layout object.Layout) (*Repo, error) {
	if _, err := os.Stat(layout.Root); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", layout.Root)
	}

	for _, d := range []string{
		layout.ObjectsDir(),
		filepath.Join(layout.RefsDir(), "heads"),
		filepath.Join(layout.RefsDir(), "tags"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	r := newRepo(root, layout)
	if err := r.SetHead("refs/heads/" + defaultBranch); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := r.writeDefaultConfig(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return r, nil
}

// Open searches upward from path for a .git directory and opens the
// repository with the default layout. Returns ErrNotRepository if none is
// found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	for cur := abs; ; {
		gitDir := filepath.Join(cur, MetadataDir)
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return newRepo(cur, object.DefaultLayout(gitDir)), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open %s: %w (or any parent up to /)", abs, ErrNotRepository)
		}
		cur = parent
	}
}

// OpenLayout opens an existing repository with an explicit layout.
func OpenLayout(root string, layout object.Layout) (*Repo, error) {
	info, err := os.Stat(layout.Root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open %s: %w", layout.Root, ErrNotRepository)
	}
	return newRepo(root, layout), nil
}

// Head returns the target of a symbolic HEAD ("refs/heads/main"), or the
// raw hex id when HEAD is detached.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(r.refPath("HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if target, ok := strings.CutPrefix(content, "ref: "); ok {
		return target, nil
	}
	return content, nil
}

// SetHead points HEAD at ref symbolically (e.g. "refs/heads/main").
func (r *Repo) SetHead(ref string) error {
	if err := object.CheckRefName(ref); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return writeFileAtomic(r.refPath("HEAD"), []byte("ref: "+ref+"\n"))
}

// detachHead writes a raw id into HEAD.
func (r *Repo) detachHead(id object.Hash) error {
	return writeFileAtomic(r.refPath("HEAD"), []byte(id.String()+"\n"))
}

func writeFileAtomic(path string, data []byte) error {
	name := filepath.Base(path)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+"-tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: tmpfile: %w", name, err)
	}
	tmpName := tmp.Name()
	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %s: %w", name, step, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("data", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: rename: %w", name, err)
	}
	return nil
}
