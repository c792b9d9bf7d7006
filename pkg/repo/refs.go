package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/gitlite/pkg/object"
)

var (
	ErrRefCASMismatch                  = errors.New("ref compare-and-swap mismatch")
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// RefUpdateReflogError reports a ref that was moved whose reflog entry could
// not be written.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	return fmt.Sprintf("update ref %q: %s (old=%s new=%s): %v",
		e.Ref, ErrRefUpdatedButReflogAppendFailed, e.OldHash, e.NewHash, e.Err)
}

func (e *RefUpdateReflogError) Unwrap() error { return e.Err }

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

const (
	refLockPoll = 5 * time.Millisecond
	refLockWait = 2 * time.Second
)

// ListRefs lists loose references whose full name starts with prefix
// ("refs/heads/", "refs/remotes/origin/"; "" lists everything). Lock files
// left by interrupted updates are skipped.
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := r.Layout().RefsDir()
	dir := root
	if p := strings.TrimPrefix(strings.TrimSpace(prefix), "refs/"); p != "" {
		dir = filepath.Join(root, filepath.FromSlash(p))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := "refs/" + filepath.ToSlash(rel)
		h, ok, err := readRefHash(path)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if ok {
			refs[name] = h
		}
		return nil
	})
	switch {
	case errors.Is(err, os.ErrNotExist):
		return refs, nil
	case err != nil:
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. If name is "HEAD", read HEAD. If HEAD is symbolic, resolve the target ref.
//  2. If name starts with "refs/", read that ref.
//  3. Otherwise, try "refs/heads/<name>", "refs/tags/<name>", then
//     "refs/remotes/<name>".
//  4. Finally, accept a full 40-hex object id.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return object.ZeroHash, err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		return object.ParseHash(head)
	}

	candidates := []string{name}
	if !strings.HasPrefix(name, "refs/") {
		candidates = []string{"refs/heads/" + name, "refs/tags/" + name, "refs/remotes/" + name}
	}
	for _, ref := range candidates {
		h, ok, err := readRefHash(r.refPath(ref))
		if err != nil {
			return object.ZeroHash, fmt.Errorf("resolve ref %q: %w", name, err)
		}
		if ok {
			return h, nil
		}
	}
	if h, err := object.ParseHash(name); err == nil {
		return h, nil
	}
	return object.ZeroHash, fmt.Errorf("resolve ref %q: %w", name, os.ErrNotExist)
}

// UpdateRef points the named ref at h and records reason in its reflog.
func (r *Repo) UpdateRef(name string, h object.Hash, reason string) error {
	return r.UpdateRefCAS(name, h, reason)
}

// UpdateRefCAS is UpdateRef guarded by a lock file. With expectedOld, the
// update only happens when the ref currently holds that id; ZeroHash expects
// the ref to be absent. A failed reflog append after the ref moved is
// reported as *RefUpdateReflogError.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, reason string, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	if name != "HEAD" {
		if err := object.CheckRefName(name); err != nil {
			return fmt.Errorf("update ref: %w", err)
		}
	}

	lock, err := lockRef(r.refPath(name))
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	defer lock.release()

	oldHash, _, err := readRefHash(lock.path)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if len(expectedOld) == 1 && oldHash != expectedOld[0] {
		return fmt.Errorf("update ref %q: %w (expected %s, found %s)",
			name, ErrRefCASMismatch, expectedOld[0], oldHash)
	}
	if err := lock.commit(h.String() + "\n"); err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}

	if err := r.appendReflog(name, oldHash, h, reason); err != nil {
		return &RefUpdateReflogError{Ref: name, OldHash: oldHash, NewHash: h, Err: err}
	}
	return nil
}

// refLock is an exclusively created <ref>.lock file. commit renames it over
// the ref; release removes it if commit never happened.
type refLock struct {
	path string
	f    *os.File
	done bool
}

func lockRef(path string) (*refLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	lockPath := path + ".lock"
	deadline := time.Now().Add(refLockWait)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		switch {
		case err == nil:
			return &refLock{path: path, f: f}, nil
		case !os.IsExist(err):
			return nil, fmt.Errorf("lock: %w", err)
		case time.Now().After(deadline):
			return nil, fmt.Errorf("lock: timeout waiting for %q", lockPath)
		}
		time.Sleep(refLockPoll)
	}
}

func (l *refLock) commit(content string) error {
	if _, err := l.f.WriteString(content); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(l.path+".lock", l.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	l.done = true
	return nil
}

func (l *refLock) release() {
	if l.f != nil {
		_ = l.f.Close()
	}
	if !l.done {
		_ = os.Remove(l.path + ".lock")
	}
}

// readRefHash reads a loose ref. A missing file reports ok=false and no error.
func readRefHash(path string) (object.Hash, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return object.ZeroHash, false, nil
	}
	if err != nil {
		return object.ZeroHash, false, err
	}
	h, err := object.ParseHash(strings.TrimSpace(string(data)))
	if err != nil {
		return object.ZeroHash, false, err
	}
	return h, true, nil
}
