package repo

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/odvcencio/gitlite/pkg/object"
)

var ErrIdentityUnknown = errors.New("author identity unknown")

// Identity is a name and email pair used for author and committer lines.
type Identity struct {
	Name  string
	Email string
}

func (id Identity) complete() bool {
	return id.Name != "" && id.Email != ""
}

// CommitTreeOptions describes a commit to create without touching any ref.
type CommitTreeOptions struct {
	Tree    object.Hash
	Parent  object.Hash // ZeroHash for a root commit
	Message string

	// Fallback is used when neither the environment nor the repository
	// config names the author or committer.
	Fallback Identity

	// When defaults to time.Now().
	When time.Time
}

// CommitTree writes a commit object for opts and returns its id. The tree and
// the parent, when set, must already be in the store. Author identity comes
// from GIT_AUTHOR_NAME/GIT_AUTHOR_EMAIL, then user.name/user.email in the
// repository config, then opts.Fallback; the committer follows the same chain
// with GIT_COMMITTER_*.
func (r *Repo) CommitTree(opts CommitTreeOptions) (object.Hash, error) {
	if _, err := r.Store.ReadTree(opts.Tree); err != nil {
		return object.ZeroHash, fmt.Errorf("commit-tree: tree %s: %w", opts.Tree, err)
	}
	var parents []object.Hash
	if !opts.Parent.IsZero() {
		if _, err := r.Store.ReadCommit(opts.Parent); err != nil {
			return object.ZeroHash, fmt.Errorf("commit-tree: parent %s: %w", opts.Parent, err)
		}
		parents = []object.Hash{opts.Parent}
	}

	base := opts.Fallback
	if cfg, err := r.ReadConfig(); err == nil {
		name, email := cfg.User()
		if name != "" {
			base.Name = name
		}
		if email != "" {
			base.Email = email
		}
	}
	author := identityFromEnv("GIT_AUTHOR", base)
	committer := identityFromEnv("GIT_COMMITTER", base)
	if !author.complete() || !committer.complete() {
		return object.ZeroHash, fmt.Errorf("commit-tree: %w (set user.name and user.email)", ErrIdentityUnknown)
	}

	when := opts.When
	if when.IsZero() {
		when = time.Now()
	}
	msg := opts.Message
	if msg != "" && !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	c := &object.CommitObj{
		TreeHash:  opts.Tree,
		Parents:   parents,
		Author:    signatureAt(author, when),
		Committer: signatureAt(committer, when),
		Message:   msg,
	}
	h, err := r.Store.WriteCommit(c)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit-tree: %w", err)
	}
	return h, nil
}

func identityFromEnv(prefix string, base Identity) Identity {
	id := base
	if v := strings.TrimSpace(os.Getenv(prefix + "_NAME")); v != "" {
		id.Name = v
	}
	if v := strings.TrimSpace(os.Getenv(prefix + "_EMAIL")); v != "" {
		id.Email = v
	}
	return id
}

// signatureAt stamps id with t and t's zone offset, e.g. "+0200".
func signatureAt(id Identity, t time.Time) object.Signature {
	return object.Signature{
		Name:     id.Name,
		Email:    id.Email,
		When:     t.Unix(),
		Timezone: t.Format("-0700"),
	}
}
