package object

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustHash(t *testing.T, s string) Hash {
	t.Helper()
	h, err := ParseHash(s)
	if err != nil {
		t.Fatalf("ParseHash(%q): %v", s, err)
	}
	return h
}

func TestMarshalTreeSortsByName(t *testing.T) {
	blob := HashObject(TypeBlob, []byte("x"))
	tr := &TreeObj{Entries: []TreeEntry{
		{Mode: TreeModeFile, Name: "zeta.txt", Hash: blob},
		{Mode: TreeModeDir, Name: "Alpha", Hash: blob},
		{Mode: TreeModeExecutable, Name: "beta", Hash: blob},
	}}

	data, err := MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	got, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}

	var names []string
	for _, e := range got.Entries {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"Alpha", "beta", "zeta.txt"}, names); diff != "" {
		t.Fatalf("entry order (-want +got):\n%s", diff)
	}
	if tr.Entries[0].Name != "zeta.txt" {
		t.Fatal("MarshalTree reordered the caller's slice")
	}
}

func TestMarshalTreeCanonicalBytes(t *testing.T) {
	blob := mustHash(t, "ce013625030ba8dba906f756967f9e9ca394464a")
	data, err := MarshalTree(&TreeObj{Entries: []TreeEntry{{Mode: TreeModeFile, Name: "hello.txt", Hash: blob}}})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	want := "100644 hello.txt\x00" + string(blob[:])
	if string(data) != want {
		t.Fatalf("MarshalTree = %q, want %q", data, want)
	}
}

func TestMarshalTreeRejectsBadEntries(t *testing.T) {
	blob := HashObject(TypeBlob, nil)
	tests := map[string][]TreeEntry{
		"empty name": {{Mode: TreeModeFile, Name: "", Hash: blob}},
		"dot":        {{Mode: TreeModeFile, Name: ".", Hash: blob}},
		"slash":      {{Mode: TreeModeFile, Name: "a/b", Hash: blob}},
		"bad mode":   {{Mode: "10064x", Name: "a", Hash: blob}},
		"duplicate": {
			{Mode: TreeModeFile, Name: "a", Hash: blob},
			{Mode: TreeModeFile, Name: "a", Hash: blob},
		},
	}
	for name, entries := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := MarshalTree(&TreeObj{Entries: entries}); err == nil {
				t.Fatal("MarshalTree succeeded")
			}
		})
	}
}

func TestUnmarshalTreeTruncated(t *testing.T) {
	_, err := UnmarshalTree([]byte("100644 a\x00short"))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("UnmarshalTree error = %v, want ErrFormat", err)
	}
}

func TestUnmarshalTreeRejectsDuplicateNames(t *testing.T) {
	blob := HashObject(TypeBlob, []byte("x"))
	var raw []byte
	raw = append(raw, "120000 a\x00"...)
	raw = append(raw, blob[:]...)
	raw = append(raw, "40000 a\x00"...)
	raw = append(raw, blob[:]...)

	_, err := UnmarshalTree(raw)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("UnmarshalTree error = %v, want ErrFormat", err)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	orig := &CommitObj{
		TreeHash: mustHash(t, "4b825dc642cb6eb9a060e54bf8d69288fbee4904"),
		Parents:  []Hash{HashObject(TypeCommit, []byte("parent"))},
		Author:   Signature{Name: "Ada Lovelace", Email: "ada@example.com", When: 1700000000, Timezone: "+0100"},
		Committer: Signature{
			Name: "Ada Lovelace", Email: "ada@example.com", When: 1700000001, Timezone: "-0530",
		},
		Message: "first line\n\nbody\n",
	}

	data := MarshalCommit(orig)
	if !strings.HasPrefix(string(data), "tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\nparent ") {
		t.Fatalf("unexpected commit prefix: %q", data)
	}
	got, err := UnmarshalCommit(data)
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Fatalf("commit round trip (-want +got):\n%s", diff)
	}
}

func TestUnmarshalCommitSkipsUnknownHeaders(t *testing.T) {
	raw := "tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
		"author A <a@x> 1 +0000\n" +
		"committer C <c@x> 2 +0000\n" +
		"gpgsig -----BEGIN PGP SIGNATURE-----\n" +
		" abc\n" +
		" -----END PGP SIGNATURE-----\n" +
		"\n" +
		"signed\n"
	c, err := UnmarshalCommit([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if c.Message != "signed\n" || c.Committer.Name != "C" || len(c.Parents) != 0 {
		t.Fatalf("unexpected commit: %+v", c)
	}
}

func TestUnmarshalCommitRequiresTree(t *testing.T) {
	_, err := UnmarshalCommit([]byte("author A <a@x> 1 +0000\n\nmsg"))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("UnmarshalCommit error = %v, want ErrFormat", err)
	}
}
