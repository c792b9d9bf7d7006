package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
)

// Layout locates a repository's metadata on disk. Root is the metadata
// directory itself (".git" under a worktree); the subpaths are relative to it.
type Layout struct {
	Root           string
	ObjectsSubpath string
	RefsSubpath    string
}

// DefaultLayout returns the standard layout for a metadata directory:
// <root>/objects and <root>/refs.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:           root,
		ObjectsSubpath: "objects",
		RefsSubpath:    "refs",
	}
}

// ObjectsDir is the absolute object directory.
func (l Layout) ObjectsDir() string {
	return filepath.Join(l.Root, l.ObjectsSubpath)
}

// RefsDir is the absolute refs directory.
func (l Layout) RefsDir() string {
	return filepath.Join(l.Root, l.RefsSubpath)
}

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123... Every file holds one
// zlib-compressed envelope.
type Store struct {
	layout Layout
}

// NewStore creates a Store for the given layout. Shard directories are
// created lazily on first write.
func NewStore(layout Layout) *Store {
	return &Store{layout: layout}
}

// Layout returns the layout the store was opened with.
func (s *Store) Layout() Layout {
	return s.layout
}

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	hexID := h.String()
	return filepath.Join(s.layout.ObjectsDir(), hexID[:2], hexID[2:])
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object and returns its id. Writing content that is
// already present is a no-op. New objects are written to a temp file in the
// shard directory and renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	envelope := EncodeEnvelope(objType, data)
	h, err := HashEnvelope(envelope)
	if err != nil {
		return h, fmt.Errorf("object write: %w", err)
	}

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	compressed, err := deflate(envelope)
	if err != nil {
		return h, fmt.Errorf("object write %s: compress: %w", h, err)
	}

	dir := filepath.Dir(s.objectPath(h))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return h, fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return h, fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return h, fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return h, fmt.Errorf("object write close: %w", err)
	}
	// Loose objects are read-only, matching Git.
	if err := os.Chmod(tmpName, 0o444); err != nil {
		os.Remove(tmpName)
		return h, fmt.Errorf("object write chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return h, fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Read retrieves an object by hash, returning its type and content. A missing
// object is a *NotFoundError; bytes that do not inflate, decode or hash back
// to h are a *CorruptObjectError.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	compressed, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, &NotFoundError{Hash: h}
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}

	envelope, err := inflate(compressed)
	if err != nil {
		return "", nil, &CorruptObjectError{Hash: h, Reason: "decompress", Err: err}
	}
	objType, content, err := DecodeEnvelope(envelope)
	if err != nil {
		return "", nil, &CorruptObjectError{Hash: h, Reason: "decode envelope", Err: err}
	}
	got, err := HashEnvelope(envelope)
	if err != nil {
		return "", nil, err
	}
	if got != h {
		return "", nil, &CorruptObjectError{Hash: h, Reason: "hash mismatch: content hashes to " + got.String()}
	}
	return objType, content, nil
}

func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	return raw, nil
}

// ReadBlob reads a blob's content.
func (s *Store) ReadBlob(h Hash) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeBlob {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeBlob)
	}
	return data, nil
}

// WriteBlob stores data as a blob.
func (s *Store) WriteBlob(data []byte) (Hash, error) {
	return s.Write(TypeBlob, data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return ZeroHash, err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeTree {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeTree)
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeCommit {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeCommit)
	}
	return UnmarshalCommit(data)
}
