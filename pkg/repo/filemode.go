package repo

import (
	"io/fs"
	"os"

	"github.com/odvcencio/gitlite/pkg/object"
)

// modeFromFileInfo classifies an lstat result as a tree mode. Sockets,
// devices and pipes have no tree representation and report ok=false.
func modeFromFileInfo(info fs.FileInfo) (mode string, ok bool) {
	m := info.Mode()
	switch {
	case m.IsDir():
		return object.TreeModeDir, true
	case m&fs.ModeSymlink != 0:
		return object.TreeModeSymlink, true
	case !m.IsRegular():
		return "", false
	case m&0o111 != 0:
		return object.TreeModeExecutable, true
	default:
		return object.TreeModeFile, true
	}
}

func filePermFromMode(mode string) os.FileMode {
	if mode == object.TreeModeExecutable {
		return 0o755
	}
	return 0o644
}
