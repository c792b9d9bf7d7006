package repo

import (
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
)

// MetadataDir is the name of the repository metadata directory inside a
// working tree.
const MetadataDir = ".git"

// Repo represents an opened repository.
type Repo struct {
	RootDir string        // working directory root
	GitDir  string        // metadata directory, the layout root
	Store   *object.Store // content-addressed object store
}

// Layout returns the layout the repository was opened with.
func (r *Repo) Layout() object.Layout {
	return r.Store.Layout()
}

func newRepo(root string, layout object.Layout) *Repo {
	return &Repo{
		RootDir: root,
		GitDir:  layout.Root,
		Store:   object.NewStore(layout),
	}
}

// refPath maps a full ref name to its loose file. HEAD lives at the layout
// root; "refs/..." names live under the layout's refs directory.
func (r *Repo) refPath(name string) string {
	if rest, ok := strings.CutPrefix(name, "refs/"); ok {
		return filepath.Join(r.Layout().RefsDir(), filepath.FromSlash(rest))
	}
	return filepath.Join(r.GitDir, filepath.FromSlash(name))
}
