package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/remote"
)

// DefaultRemoteName is the remote a clone records its source under.
const DefaultRemoteName = "origin"

// CloneOptions configures Clone.
type CloneOptions struct {
	Client        remote.ClientOptions
	RemoteName    string // default DefaultRemoteName
	BaseCacheSize int    // delta base LRU entries; 0 reads bases from disk

	// Progress receives one line per clone phase, periodic unpack counts,
	// and the server's side-band messages unless Client.Progress is set.
	Progress func(string)
}

// CloneResult summarizes a finished clone.
type CloneResult struct {
	Dir       string
	Branch    string      // checked out branch, "" when detached
	Head      object.Hash // zero for an empty remote
	Refs      int         // refs written, HEAD excluded
	Objects   int
	Deltas    int
	PackBytes int
}

// unpackProgressEvery throttles unpack progress reports.
const unpackProgressEvery = 256

// Clone copies the repository at url into dir, which must be absent or
// empty. Branches land under refs/remotes/<remote>/, tags keep their names,
// and the remote's default branch becomes the local branch whose tree is
// written into dir.
//
// A failure after the pack is fetched leaves the partially populated
// repository in place.
func Clone(ctx context.Context, url, dir string, opts CloneOptions) (*CloneResult, error) {
	remoteName := strings.TrimSpace(opts.RemoteName)
	if remoteName == "" {
		remoteName = DefaultRemoteName
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string) {}
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("clone: resolve destination: %w", err)
	}
	if err := ensureEmptyDir(absDir); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	clientOpts := opts.Client
	if clientOpts.Progress == nil && opts.Progress != nil {
		clientOpts.Progress = func(msg string) { progress("remote: " + strings.TrimRight(msg, "\r\n")) }
	}
	client, err := remote.NewClient(url, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	adv, err := client.DiscoverRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	r, err := Init(absDir)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	cfg, err := r.ReadConfig()
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if err := cfg.SetRemote(remoteName, url); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	res := &CloneResult{Dir: absDir}
	wants := adv.Wants()
	if len(wants) == 0 {
		progress("remote repository is empty")
		res.Branch = defaultBranch
		if target, ok := adv.HeadTarget(); ok && strings.HasPrefix(target, "refs/heads/") {
			res.Branch = strings.TrimPrefix(target, "refs/heads/")
		}
		if err := r.SetHead("refs/heads/" + res.Branch); err != nil {
			return nil, fmt.Errorf("clone: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("clone: %w", err)
		}
		return res, nil
	}

	progress(fmt.Sprintf("fetching %d refs", len(wants)))
	data, err := client.FetchPack(ctx, wants)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	res.PackBytes = len(data)

	pack, err := object.ParsePack(data)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	unpacked, err := object.UnpackPack(r.Store, pack, object.UnpackOptions{
		BaseCacheSize: opts.BaseCacheSize,
		Progress: func(done, total int) {
			if done == total || done%unpackProgressEvery == 0 {
				progress(fmt.Sprintf("unpacking objects: %d/%d", done, total))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	res.Objects = unpacked.Objects
	res.Deltas = unpacked.Deltas

	reason := "clone: from " + url
	for _, name := range sortedRefNames(adv.Refs) {
		h := adv.Refs[name]
		local, ok := localRefName(remoteName, name)
		if !ok || h.IsZero() {
			continue
		}
		if err := r.UpdateRef(local, h, reason); err != nil {
			return nil, fmt.Errorf("clone: %w", err)
		}
		res.Refs++
	}

	branch, head := chooseCloneBranch(adv)
	res.Branch, res.Head = branch, head
	if branch != "" {
		if err := r.UpdateRef("refs/heads/"+branch, head, reason); err != nil {
			return nil, fmt.Errorf("clone: %w", err)
		}
		if err := r.SetHead("refs/heads/" + branch); err != nil {
			return nil, fmt.Errorf("clone: %w", err)
		}
		cfg.SetUpstream(branch, remoteName)
	} else {
		if err := r.detachHead(head); err != nil {
			return nil, fmt.Errorf("clone: detach HEAD: %w", err)
		}
	}
	if err := cfg.Save(); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	commit, err := r.Store.ReadCommit(head)
	if err != nil {
		return nil, fmt.Errorf("clone: HEAD %s: %w", head, err)
	}
	progress("checking out files")
	if err := RenderTree(r.Store, absDir, commit.TreeHash); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return res, nil
}

// localRefName maps an advertised ref to where a clone stores it. Refs
// outside heads and tags, and names that are not well formed, are skipped.
func localRefName(remoteName, name string) (string, bool) {
	var local string
	switch {
	case strings.HasPrefix(name, "refs/heads/"):
		local = "refs/remotes/" + remoteName + "/" + strings.TrimPrefix(name, "refs/heads/")
	case strings.HasPrefix(name, "refs/tags/"):
		local = name
	default:
		return "", false
	}
	if object.CheckRefName(local) != nil {
		return "", false
	}
	return local, true
}

// chooseCloneBranch picks the branch to check out: the remote HEAD's symref
// target, else main, else a branch at the advertised HEAD id, else the first
// branch by name. A remote without branches leaves the clone detached.
func chooseCloneBranch(adv *remote.RefAdvertisement) (string, object.Hash) {
	if target, ok := adv.HeadTarget(); ok {
		if h, ok := adv.Refs[target]; ok && strings.HasPrefix(target, "refs/heads/") {
			return strings.TrimPrefix(target, "refs/heads/"), h
		}
	}
	if h, ok := adv.Refs["refs/heads/"+defaultBranch]; ok {
		return defaultBranch, h
	}
	for _, name := range sortedRefNames(adv.Refs) {
		if strings.HasPrefix(name, "refs/heads/") && adv.Refs[name] == adv.Refs["HEAD"] {
			return strings.TrimPrefix(name, "refs/heads/"), adv.Refs[name]
		}
	}
	for _, name := range sortedRefNames(adv.Refs) {
		if strings.HasPrefix(name, "refs/heads/") {
			return strings.TrimPrefix(name, "refs/heads/"), adv.Refs[name]
		}
	}
	return "", adv.Refs["HEAD"]
}

func sortedRefNames(refs map[string]object.Hash) []string {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ensureEmptyDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("destination path %q is not empty", path)
	}
	return nil
}
