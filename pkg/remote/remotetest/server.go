// Package remotetest serves an in-memory repository over Git's smart-HTTP
// protocol for tests.
package remotetest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/remote"
)

// Object is one object the server holds.
type Object struct {
	Type object.ObjectType
	Data []byte
}

// Repo is the content a Server advertises and packs.
type Repo struct {
	Refs    map[string]object.Hash
	Head    string // HEAD symref target; empty omits the symref capability
	Objects []Object
	// Deltas sends every blob after the first as a ref-delta against the
	// blob before it.
	Deltas bool
	// ContentEncoding compresses responses ("gzip" or "zstd") when the
	// client accepts it.
	ContentEncoding string
	// Progress lines are sent on side-band 2 before the pack data.
	Progress []string
	// FailWith, when set, is sent on side-band 3 instead of a pack.
	FailWith string
}

// NewRepo returns an empty repo whose HEAD points at refs/heads/main.
func NewRepo() *Repo {
	return &Repo{Refs: make(map[string]object.Hash), Head: "refs/heads/main"}
}

// Add stores an object and returns its id.
func (r *Repo) Add(objType object.ObjectType, data []byte) object.Hash {
	r.Objects = append(r.Objects, Object{Type: objType, Data: data})
	return object.HashObject(objType, data)
}

// AddTree stores a tree object built from entries.
func (r *Repo) AddTree(entries ...object.TreeEntry) (object.Hash, error) {
	data, err := object.MarshalTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return object.ZeroHash, err
	}
	return r.Add(object.TypeTree, data), nil
}

// AddCommit stores a commit for tree with a fixed identity.
func (r *Repo) AddCommit(tree object.Hash, message string, parents ...object.Hash) object.Hash {
	sig := object.Signature{Name: "Remote Test", Email: "remote@test", When: 1700000000, Timezone: "+0000"}
	return r.Add(object.TypeCommit, object.MarshalCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    sig,
		Committer: sig,
		Message:   message,
	}))
}

// Server is a running smart-HTTP server for a Repo.
type Server struct {
	*httptest.Server
	repo *Repo

	mu      sync.Mutex
	fetches [][]byte
}

// NewServer starts a server for repo. Callers must Close it.
func NewServer(repo *Repo) *Server {
	s := &Server{repo: repo}
	s.Server = httptest.NewServer(s)
	return s
}

// Fetches returns the raw bodies of every fetch request received so far.
func (s *Server) Fetches() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.fetches))
	copy(out, s.fetches)
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/info/refs"):
		if r.URL.Query().Get("service") != remote.UploadPackService {
			http.Error(w, "dumb HTTP not supported", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/x-git-upload-pack-advertisement")
		s.write(w, r, s.advertisement())
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/"+remote.UploadPackService):
		s.serveFetch(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) advertisement() []byte {
	buf := remote.AppendPktString(nil, "# service="+remote.UploadPackService+"\n")
	buf = remote.AppendFlush(buf)

	caps := "side-band-64k no-progress agent=remotetest"
	if s.repo.Head != "" {
		caps += " symref=HEAD:" + s.repo.Head
	}
	names := make([]string, 0, len(s.repo.Refs))
	for name := range s.repo.Refs {
		names = append(names, name)
	}
	sort.Strings(names)

	first := true
	line := func(id object.Hash, name string) {
		text := id.String() + " " + name
		if first {
			text += "\x00" + caps
			first = false
		}
		buf = remote.AppendPktString(buf, text+"\n")
	}
	if head, ok := s.repo.Refs[s.repo.Head]; ok {
		line(head, "HEAD")
	}
	for _, name := range names {
		line(s.repo.Refs[name], name)
	}
	if first {
		line(object.ZeroHash, "capabilities^{}")
	}
	return remote.AppendFlush(buf)
}

func (s *Server) serveFetch(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Git-Protocol"), "version=2") {
		http.Error(w, "protocol v2 required", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.fetches = append(s.fetches, body)
	s.mu.Unlock()

	known := make(map[object.Hash]bool, len(s.repo.Refs))
	for _, id := range s.repo.Refs {
		known[id] = true
	}
	pr := remote.NewPktReader(bytes.NewReader(body))
	for pr.Next() {
		if want, ok := strings.CutPrefix(pr.Text(), "want "); ok {
			id, err := object.ParseHash(want)
			if err != nil || !known[id] {
				http.Error(w, fmt.Sprintf("not our ref %s", want), http.StatusBadRequest)
				return
			}
		}
	}
	if err := pr.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var out bytes.Buffer
	out.Write(remote.AppendPktString(nil, "packfile\n"))
	sb := remote.NewSidebandWriter(&out)
	for _, msg := range s.repo.Progress {
		if err := sb.WriteProgress(msg); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if s.repo.FailWith != "" {
		if err := sb.WriteError(s.repo.FailWith); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	} else if err := s.writePack(sb); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out.Write(remote.AppendFlush(nil))

	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	s.write(w, r, out.Bytes())
}

func (s *Server) writePack(w io.Writer) error {
	pw, err := object.NewPackWriter(w, uint32(len(s.repo.Objects)))
	if err != nil {
		return err
	}
	var prevBlob []byte
	havePrev := false
	for _, obj := range s.repo.Objects {
		if s.repo.Deltas && obj.Type == object.TypeBlob && havePrev {
			err = pw.WriteRefDelta(object.HashObject(object.TypeBlob, prevBlob), prevBlob, obj.Data)
		} else {
			err = pw.WriteObject(obj.Type, obj.Data)
		}
		if err != nil {
			return err
		}
		if obj.Type == object.TypeBlob {
			prevBlob, havePrev = obj.Data, true
		}
	}
	_, err = pw.Finish()
	return err
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, body []byte) {
	enc := s.repo.ContentEncoding
	if enc == "" || !strings.Contains(r.Header.Get("Accept-Encoding"), enc) {
		_, _ = w.Write(body)
		return
	}

	var buf bytes.Buffer
	switch enc {
	case "gzip":
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(body)
		_ = zw.Close()
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = zw.Write(body)
		_ = zw.Close()
	default:
		http.Error(w, "unknown encoding "+enc, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Encoding", enc)
	_, _ = w.Write(buf.Bytes())
}
