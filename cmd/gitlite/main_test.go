package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/gitlite/pkg/config"
	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/spf13/cobra"
)

// isolate points the settings file and identity environment away from the
// user's real configuration.
func isolate(t *testing.T, settings string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if settings != "" {
		if err := os.WriteFile(path, []byte(settings), 0o644); err != nil {
			t.Fatalf("write settings: %v", err)
		}
	}
	t.Setenv(config.EnvPath, path)
	for _, k := range []string{"GIT_AUTHOR_NAME", "GIT_AUTHOR_EMAIL", "GIT_COMMITTER_NAME", "GIT_COMMITTER_EMAIL"} {
		t.Setenv(k, "")
	}
}

func runCmd(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, errOut, err := runCmd(t, cmd, "", args...)
	if err != nil {
		t.Fatalf("%s %v: %v\nstderr:\n%s", cmd.Name(), args, err, errOut)
	}
	return out
}

func initWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	mustRun(t, newInitCmd())
	return dir
}

func TestVersionCmd(t *testing.T) {
	out := mustRun(t, newVersionCmd())
	if out != "gitlite "+version+"\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestRootCmd_HasPlumbing(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"init", "cat-file", "hash-object", "ls-tree", "write-tree", "commit-tree", "clone", "unpack-objects", "version"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("root.Find(%q) = %v, %v", name, c, err)
		}
	}
}

func TestInitCmd(t *testing.T) {
	isolate(t, "")
	dir := filepath.Join(t.TempDir(), "fresh")

	out := mustRun(t, newInitCmd(), dir)
	want := filepath.Join(dir, ".git") + string(filepath.Separator)
	if !strings.Contains(out, want) {
		t.Errorf("init output = %q, want mention of %s", out, want)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git", "HEAD")); err != nil {
		t.Errorf("HEAD missing: %v", err)
	}
	if _, _, err := runCmd(t, newInitCmd(), "", dir); err == nil {
		t.Error("second init should fail")
	}
}

func TestInitCmd_InitialBranch(t *testing.T) {
	isolate(t, "")
	dir := t.TempDir()

	mustRun(t, newInitCmd(), "-b", "trunk", dir)
	data, err := os.ReadFile(filepath.Join(dir, ".git", "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(data) != "ref: refs/heads/trunk\n" {
		t.Errorf("HEAD = %q, want trunk", data)
	}
}

func TestHashObjectAndCatFile(t *testing.T) {
	isolate(t, "")
	dir := initWorkdir(t)
	file := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(file, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	const helloID = "ce013625030ba8dba906f756967f9e9ca394464a"

	out := mustRun(t, newHashObjectCmd(), file)
	if strings.TrimSpace(out) != helloID {
		t.Fatalf("hash-object = %q, want %s", out, helloID)
	}
	if _, _, err := runCmd(t, newCatFileCmd(), "", "-t", helloID); err == nil {
		t.Fatal("cat-file should fail before the object is written")
	}

	mustRun(t, newHashObjectCmd(), "-w", file)
	if out := mustRun(t, newCatFileCmd(), "-t", helloID); out != "blob\n" {
		t.Errorf("cat-file -t = %q", out)
	}
	if out := mustRun(t, newCatFileCmd(), "-s", helloID); out != "6\n" {
		t.Errorf("cat-file -s = %q", out)
	}
	if out := mustRun(t, newCatFileCmd(), "-p", helloID); out != "hello\n" {
		t.Errorf("cat-file -p = %q", out)
	}

	stdinOut, _, err := runCmd(t, newHashObjectCmd(), "hello\n", "-")
	if err != nil || strings.TrimSpace(stdinOut) != helloID {
		t.Errorf("hash-object - = %q, %v", stdinOut, err)
	}
	if _, _, err := runCmd(t, newHashObjectCmd(), "", "-t", "bogus", file); err == nil {
		t.Error("hash-object with unknown kind should fail")
	}
}

func TestCatFile_RequiresOneMode(t *testing.T) {
	isolate(t, "")
	initWorkdir(t)
	id := object.HashObject(object.TypeBlob, nil).String()

	if _, _, err := runCmd(t, newCatFileCmd(), "", id); err == nil {
		t.Error("cat-file without a mode flag should fail")
	}
	if _, _, err := runCmd(t, newCatFileCmd(), "", "-t", "-s", id); err == nil {
		t.Error("cat-file with two mode flags should fail")
	}
}

func TestWriteTreeAndLsTree(t *testing.T) {
	isolate(t, "")
	dir := initWorkdir(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	treeID := strings.TrimSpace(mustRun(t, newWriteTreeCmd()))
	if _, err := object.ParseHash(treeID); err != nil {
		t.Fatalf("write-tree printed %q: %v", treeID, err)
	}

	out := mustRun(t, newLsTreeCmd(), treeID)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("ls-tree lines = %q", lines)
	}
	wantA := "100644 blob " + object.HashObject(object.TypeBlob, []byte("a\n")).String() + "\ta.txt"
	if lines[0] != wantA {
		t.Errorf("ls-tree[0] = %q, want %q", lines[0], wantA)
	}
	if !strings.HasPrefix(lines[1], "040000 tree ") || !strings.HasSuffix(lines[1], "\tsub") {
		t.Errorf("ls-tree[1] = %q", lines[1])
	}

	if out := mustRun(t, newLsTreeCmd(), "--name-only", treeID); out != "a.txt\nsub\n" {
		t.Errorf("ls-tree --name-only = %q", out)
	}
	if out := mustRun(t, newCatFileCmd(), "-p", treeID); !strings.Contains(out, wantA) {
		t.Errorf("cat-file -p tree = %q", out)
	}
}

func TestCommitTreeCmd(t *testing.T) {
	isolate(t, "[user]\nname = \"Settings User\"\nemail = \"settings@example.com\"\n")
	initWorkdir(t)
	tree := strings.TrimSpace(mustRun(t, newWriteTreeCmd()))

	root := strings.TrimSpace(mustRun(t, newCommitTreeCmd(), tree, "-m", "first"))
	body := mustRun(t, newCatFileCmd(), "-p", root)
	if !strings.HasPrefix(body, "tree "+tree+"\nauthor Settings User <settings@example.com> ") {
		t.Errorf("commit body = %q", body)
	}
	if !strings.HasSuffix(body, "\n\nfirst\n") {
		t.Errorf("commit message not terminated: %q", body)
	}

	child, _, err := runCmd(t, newCommitTreeCmd(), "second from stdin\n", tree, "-p", root)
	if err != nil {
		t.Fatalf("commit-tree with parent: %v", err)
	}
	body = mustRun(t, newCatFileCmd(), "-p", strings.TrimSpace(child))
	if !strings.Contains(body, "\nparent "+root+"\n") || !strings.HasSuffix(body, "second from stdin\n") {
		t.Errorf("child commit body = %q", body)
	}

	// ls-tree peels a commit to its tree.
	if out := mustRun(t, newLsTreeCmd(), root); out != "" {
		t.Errorf("ls-tree of empty-tree commit = %q", out)
	}
}

func TestCommitTreeCmd_NoIdentity(t *testing.T) {
	isolate(t, "")
	initWorkdir(t)
	tree := strings.TrimSpace(mustRun(t, newWriteTreeCmd()))

	if _, _, err := runCmd(t, newCommitTreeCmd(), "", tree, "-m", "x"); err == nil {
		t.Fatal("commit-tree without any identity should fail")
	}
}

func TestCommands_OutsideRepo(t *testing.T) {
	isolate(t, "")
	chdir(t, t.TempDir())

	for _, cmd := range []*cobra.Command{newWriteTreeCmd(), newLsTreeCmd(), newCatFileCmd()} {
		args := []string{}
		switch cmd.Name() {
		case "ls-tree":
			args = []string{"HEAD"}
		case "cat-file":
			args = []string{"-t", "HEAD"}
		}
		if _, _, err := runCmd(t, cmd, "", args...); err == nil {
			t.Errorf("%s outside a repository should fail", cmd.Name())
		}
	}
}
