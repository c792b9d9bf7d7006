package object

import "fmt"

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// ParseObjectType validates a kind name read from an envelope header or the
// command line.
func ParseObjectType(s string) (ObjectType, error) {
	switch t := ObjectType(s); t {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return t, nil
	default:
		return "", fmt.Errorf("unknown object type %q", s)
	}
}

const (
	// Tree mode strings, exactly as they appear in canonical tree objects.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
	TreeModeGitlink    = "160000"
)

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Mode string
	Name string
	Hash Hash
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}

// TreeObj holds the entries of a tree object.
type TreeObj struct {
	Entries []TreeEntry // sorted by raw Name bytes
}

// Signature is an author or committer line: name, email and a point in time
// with its UTC offset formatted as +hhmm/-hhmm.
type Signature struct {
	Name     string
	Email    string
	When     int64
	Timezone string
}

// CommitObj is a commit pointing to a tree. Commits built locally carry at
// most one parent; commits read from a clone may carry several.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Message   string
}
