package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/odvcencio/gitlite/pkg/object"
)

func TestListRefs(t *testing.T) {
	r := initRepo(t)
	refs := map[string]object.Hash{
		"refs/heads/main":           testHash(0x01),
		"refs/heads/feature/x":      testHash(0x02),
		"refs/tags/v1":              testHash(0x03),
		"refs/remotes/origin/main":  testHash(0x01),
		"refs/remotes/origin/topic": testHash(0x04),
	}
	for name, h := range refs {
		if err := r.UpdateRef(name, h, "test"); err != nil {
			t.Fatalf("UpdateRef(%s): %v", name, err)
		}
	}
	// Stale lock from an interrupted update.
	if err := os.WriteFile(filepath.Join(r.GitDir, "refs", "heads", "stale.lock"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	all, err := r.ListRefs("")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if diff := cmp.Diff(refs, all); diff != "" {
		t.Errorf("ListRefs mismatch (-want +got):\n%s", diff)
	}

	heads, err := r.ListRefs("refs/heads")
	if err != nil {
		t.Fatalf("ListRefs(heads): %v", err)
	}
	wantHeads := map[string]object.Hash{
		"refs/heads/main":      testHash(0x01),
		"refs/heads/feature/x": testHash(0x02),
	}
	if diff := cmp.Diff(wantHeads, heads); diff != "" {
		t.Errorf("ListRefs(heads) mismatch (-want +got):\n%s", diff)
	}

	none, err := r.ListRefs("refs/remotes/upstream")
	if err != nil {
		t.Fatalf("ListRefs(missing prefix): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListRefs(missing prefix) = %v, want empty", none)
	}
}

func TestReflog_RecordsUpdates(t *testing.T) {
	r := initRepo(t)
	cfg, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	cfg.Set("user", "name", "Ada Lovelace")
	cfg.Set("user", "email", "ada@example.com")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, second := testHash(0x11), testHash(0x22)
	if err := r.UpdateRef("refs/heads/main", first, "clone: from somewhere"); err != nil {
		t.Fatalf("UpdateRef first: %v", err)
	}
	if err := r.UpdateRef("refs/heads/main", second, ""); err != nil {
		t.Fatalf("UpdateRef second: %v", err)
	}

	entries, err := r.ReadReflog("HEAD", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	newest, oldest := entries[0], entries[1]
	if newest.OldHash != first || newest.NewHash != second || newest.Reason != "update" {
		t.Errorf("newest entry = %+v", newest)
	}
	if !oldest.OldHash.IsZero() || oldest.NewHash != first || oldest.Reason != "clone: from somewhere" {
		t.Errorf("oldest entry = %+v", oldest)
	}
	if newest.Who != "Ada Lovelace <ada@example.com>" {
		t.Errorf("Who = %q", newest.Who)
	}
	if newest.Ref != "refs/heads/main" {
		t.Errorf("Ref = %q, want refs/heads/main", newest.Ref)
	}

	limited, err := r.ReadReflog("main", 1)
	if err != nil {
		t.Fatalf("ReadReflog limit: %v", err)
	}
	if len(limited) != 1 || limited[0].NewHash != second {
		t.Errorf("ReadReflog(main, 1) = %+v", limited)
	}
}

func TestReflog_GitFormat(t *testing.T) {
	r := initRepo(t)
	h := testHash(0x33)
	if err := r.UpdateRef("refs/tags/v1", h, "tag v1"); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(r.GitDir, "logs", "refs", "tags", "v1"))
	if err != nil {
		t.Fatalf("read reflog: %v", err)
	}
	line := strings.TrimSuffix(string(data), "\n")
	prefix := object.ZeroHash.String() + " " + h.String() + " gitlite <gitlite@localhost> "
	if !strings.HasPrefix(line, prefix) {
		t.Errorf("reflog line = %q, want prefix %q", line, prefix)
	}
	if !strings.HasSuffix(line, "\ttag v1") {
		t.Errorf("reflog line = %q, want tab-separated reason", line)
	}
}

func TestReadReflog_Missing(t *testing.T) {
	r := initRepo(t)
	entries, err := r.ReadReflog("refs/heads/nope", 10)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want none", entries)
	}
}

func TestUpdateRefRejectsMalformedNames(t *testing.T) {
	r := initRepo(t)
	for _, name := range []string{
		"refs/tags/../../../escaped",
		"refs/heads/../../config",
		"refs/heads/main.lock",
		"refs/heads/bad\x01name",
		"main",
	} {
		err := r.UpdateRef(name, testHash(0x01), "test")
		if !errors.Is(err, object.ErrFormat) {
			t.Errorf("UpdateRef(%q) err = %v, want ErrFormat", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "escaped")); !os.IsNotExist(err) {
		t.Errorf("ref written outside the repository (stat err = %v)", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(r.RootDir), "escaped")); !os.IsNotExist(err) {
		t.Errorf("ref written outside the worktree (stat err = %v)", err)
	}
}
