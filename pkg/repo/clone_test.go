package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/remote/remotetest"
)

type fixture struct {
	repo   *remotetest.Repo
	main   object.Hash
	topic  object.Hash
	readme []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: remotetest.NewRepo(), readme: []byte("hello\n")}
	rp := f.repo

	readme := rp.Add(object.TypeBlob, f.readme)
	script := rp.Add(object.TypeBlob, []byte("#!/bin/sh\necho hello\n"))
	link := rp.Add(object.TypeBlob, []byte("README"))
	lib, err := rp.AddTree(object.TreeEntry{Mode: object.TreeModeFile, Name: "lib.go", Hash: rp.Add(object.TypeBlob, []byte("package lib\n"))})
	if err != nil {
		t.Fatalf("AddTree lib: %v", err)
	}
	root, err := rp.AddTree(
		object.TreeEntry{Mode: object.TreeModeFile, Name: "README", Hash: readme},
		object.TreeEntry{Mode: object.TreeModeExecutable, Name: "run.sh", Hash: script},
		object.TreeEntry{Mode: object.TreeModeSymlink, Name: "docs", Hash: link},
		object.TreeEntry{Mode: object.TreeModeDir, Name: "lib", Hash: lib},
	)
	if err != nil {
		t.Fatalf("AddTree root: %v", err)
	}
	f.main = rp.AddCommit(root, "initial\n")

	topicTree, err := rp.AddTree(object.TreeEntry{Mode: object.TreeModeFile, Name: "README", Hash: rp.Add(object.TypeBlob, []byte("hello topic\n"))})
	if err != nil {
		t.Fatalf("AddTree topic: %v", err)
	}
	f.topic = rp.AddCommit(topicTree, "topic\n", f.main)

	rp.Refs["refs/heads/main"] = f.main
	rp.Refs["refs/heads/topic"] = f.topic
	rp.Refs["refs/tags/v1"] = f.main
	return f
}

func TestClone_EndToEnd(t *testing.T) {
	for _, tc := range []struct {
		name     string
		deltas   bool
		encoding string
		cache    int
	}{
		{name: "plain"},
		{name: "deltas", deltas: true},
		{name: "deltas cached gzip", deltas: true, encoding: "gzip", cache: 16},
		{name: "zstd", encoding: "zstd"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.Deltas = tc.deltas
			f.repo.ContentEncoding = tc.encoding
			f.repo.Progress = []string{"Counting objects: 9, done.\n"}
			srv := remotetest.NewServer(f.repo)
			defer srv.Close()

			var progress []string
			dir := filepath.Join(t.TempDir(), "clone")
			res, err := Clone(context.Background(), srv.URL+"/demo.git", dir, CloneOptions{
				BaseCacheSize: tc.cache,
				Progress:      func(s string) { progress = append(progress, s) },
			})
			if err != nil {
				t.Fatalf("Clone: %v", err)
			}

			if res.Branch != "main" || res.Head != f.main {
				t.Errorf("Branch/Head = %q/%s, want main/%s", res.Branch, res.Head, f.main)
			}
			if res.Objects != len(f.repo.Objects) {
				t.Errorf("Objects = %d, want %d", res.Objects, len(f.repo.Objects))
			}
			if tc.deltas && res.Deltas == 0 {
				t.Error("Deltas = 0, want ref-deltas resolved")
			}
			if res.Refs != 3 || res.PackBytes == 0 {
				t.Errorf("Refs = %d, PackBytes = %d", res.Refs, res.PackBytes)
			}
			if len(progress) == 0 || !strings.HasPrefix(progress[len(progress)-1], "checking out") {
				t.Errorf("progress = %q", progress)
			}

			r, err := Open(dir)
			if err != nil {
				t.Fatalf("Open clone: %v", err)
			}
			for _, obj := range f.repo.Objects {
				if !r.Store.Has(object.HashObject(obj.Type, obj.Data)) {
					t.Errorf("object %s missing from clone", object.HashObject(obj.Type, obj.Data))
				}
			}

			refs, err := r.ListRefs("")
			if err != nil {
				t.Fatalf("ListRefs: %v", err)
			}
			wantRefs := map[string]object.Hash{
				"refs/heads/main":           f.main,
				"refs/remotes/origin/main":  f.main,
				"refs/remotes/origin/topic": f.topic,
				"refs/tags/v1":              f.main,
			}
			if diff := cmp.Diff(wantRefs, refs); diff != "" {
				t.Errorf("refs mismatch (-want +got):\n%s", diff)
			}
			head, err := r.Head()
			if err != nil || head != "refs/heads/main" {
				t.Errorf("Head() = %q, %v", head, err)
			}

			cfg, err := r.ReadConfig()
			if err != nil {
				t.Fatalf("ReadConfig: %v", err)
			}
			if u, _ := cfg.RemoteURL("origin"); u != srv.URL+"/demo.git" {
				t.Errorf("remote.origin.url = %q", u)
			}
			if got := cfg.Get(`branch "main"`, "remote"); got != "origin" {
				t.Errorf("branch.main.remote = %q", got)
			}

			got, err := os.ReadFile(filepath.Join(dir, "README"))
			if err != nil || string(got) != string(f.readme) {
				t.Errorf("README = %q, %v", got, err)
			}
			if target, err := os.Readlink(filepath.Join(dir, "docs")); err != nil || target != "README" {
				t.Errorf("docs link = %q, %v", target, err)
			}
			if info, err := os.Stat(filepath.Join(dir, "run.sh")); err != nil || info.Mode().Perm()&0o100 == 0 {
				t.Errorf("run.sh not executable: %v %v", info, err)
			}
			assertFile(t, filepath.Join(dir, "lib", "lib.go"))
		})
	}
}

func TestClone_FollowsRemoteHeadSymref(t *testing.T) {
	f := newFixture(t)
	f.repo.Head = "refs/heads/topic"
	srv := remotetest.NewServer(f.repo)
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "clone")
	res, err := Clone(context.Background(), srv.URL, dir, CloneOptions{})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if res.Branch != "topic" || res.Head != f.topic {
		t.Errorf("Branch/Head = %q/%s, want topic/%s", res.Branch, res.Head, f.topic)
	}
	got, err := os.ReadFile(filepath.Join(dir, "README"))
	if err != nil || string(got) != "hello topic\n" {
		t.Errorf("README = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run.sh")); !os.IsNotExist(err) {
		t.Errorf("run.sh should not exist on topic: %v", err)
	}
}

func TestClone_EmptyRemote(t *testing.T) {
	srv := remotetest.NewServer(remotetest.NewRepo())
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "empty")
	res, err := Clone(context.Background(), srv.URL, dir, CloneOptions{})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if !res.Head.IsZero() || res.Branch != "main" || res.Objects != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(srv.Fetches()) != 0 {
		t.Errorf("fetches = %d, want none for an empty remote", len(srv.Fetches()))
	}
	assertDir(t, filepath.Join(dir, ".git", "objects"))
}

func TestClone_NonEmptyDestination(t *testing.T) {
	f := newFixture(t)
	srv := remotetest.NewServer(f.repo)
	defer srv.Close()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "existing"), "x", 0o644)
	if _, err := Clone(context.Background(), srv.URL, dir, CloneOptions{}); err == nil {
		t.Fatal("Clone into non-empty directory should fail")
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); !os.IsNotExist(err) {
		t.Errorf("metadata dir created in non-empty destination: %v", err)
	}
}

func TestClone_RemoteError(t *testing.T) {
	f := newFixture(t)
	f.repo.FailWith = "upload-pack: out of memory"
	srv := remotetest.NewServer(f.repo)
	defer srv.Close()

	_, err := Clone(context.Background(), srv.URL, filepath.Join(t.TempDir(), "c"), CloneOptions{})
	if !errors.Is(err, object.ErrProtocol) {
		t.Fatalf("Clone err = %v, want ErrProtocol", err)
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("error %q does not carry the remote message", err)
	}
}

func TestClone_MissingObjectInPack(t *testing.T) {
	f := newFixture(t)
	// Drop the README blob: checkout must fail with NotFound, earlier objects stay.
	f.repo.Objects = f.repo.Objects[1:]
	srv := remotetest.NewServer(f.repo)
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "c")
	_, err := Clone(context.Background(), srv.URL, dir, CloneOptions{})
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Clone err = %v, want ErrNotFound", err)
	}
	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open partial clone: %v", err)
	}
	if !r.Store.Has(f.main) {
		t.Error("objects written before the failure should remain")
	}
}

func TestLocalRefName(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"refs/heads/main", "refs/remotes/origin/main", true},
		{"refs/heads/feature/x", "refs/remotes/origin/feature/x", true},
		{"refs/tags/v1", "refs/tags/v1", true},
		{"HEAD", "", false},
		{"refs/pull/1/head", "", false},
		{"refs/tags/../../../escaped", "", false},
		{"refs/heads/../../config", "", false},
		{"refs/heads/x.lock", "", false},
	}
	for _, tt := range tests {
		got, ok := localRefName("origin", tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("localRefName(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClone_RejectsMalformedAdvertisedRef(t *testing.T) {
	f := newFixture(t)
	f.repo.Refs["refs/tags/../../../escaped"] = f.main
	srv := remotetest.NewServer(f.repo)
	defer srv.Close()

	parent := t.TempDir()
	dir := filepath.Join(parent, "clone")
	_, err := Clone(context.Background(), srv.URL+"/demo.git", dir, CloneOptions{})
	if !errors.Is(err, object.ErrProtocol) {
		t.Fatalf("Clone err = %v, want ErrProtocol", err)
	}
	for _, p := range []string{filepath.Join(dir, "escaped"), filepath.Join(parent, "escaped")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after clone (stat err = %v)", p, err)
		}
	}
}
