package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj into canonical tree content. Entries are
// sorted by raw name bytes so equal directory states hash identically. Each
// entry is
//
//	<mode> <name>\0<20-byte id>
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	SortTreeEntries(sorted)

	var buf bytes.Buffer
	for i, e := range sorted {
		if err := validateTreeEntry(e); err != nil {
			return nil, fmt.Errorf("marshal tree: %w", err)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("marshal tree: duplicate entry %q", e.Name)
		}
		buf.WriteString(e.Mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash[:])
	}
	return buf.Bytes(), nil
}

// SortTreeEntries orders entries by raw name bytes.
func SortTreeEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
}

func validateTreeEntry(e TreeEntry) error {
	if e.Name == "" || e.Name == "." || e.Name == ".." || strings.ContainsAny(e.Name, "/\x00") {
		return fmt.Errorf("invalid entry name %q", e.Name)
	}
	if _, err := strconv.ParseUint(e.Mode, 8, 32); err != nil {
		return fmt.Errorf("entry %q: invalid mode %q", e.Name, e.Mode)
	}
	return nil
}

// UnmarshalTree parses canonical tree content.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	seen := make(map[string]struct{})
	for pos := 0; pos < len(data); {
		sp := bytes.IndexByte(data[pos:], ' ')
		if sp < 0 {
			return nil, &FormatError{What: "tree", Reason: fmt.Sprintf("entry at byte %d: missing mode separator", pos)}
		}
		mode := string(data[pos : pos+sp])
		pos += sp + 1

		nul := bytes.IndexByte(data[pos:], 0)
		if nul < 0 {
			return nil, &FormatError{What: "tree", Reason: fmt.Sprintf("entry at byte %d: missing name terminator", pos)}
		}
		name := string(data[pos : pos+nul])
		pos += nul + 1
		if _, dup := seen[name]; dup {
			return nil, &FormatError{What: "tree", Reason: fmt.Sprintf("duplicate entry %q", name)}
		}
		seen[name] = struct{}{}

		if len(data)-pos < HashSize {
			return nil, &FormatError{What: "tree", Reason: fmt.Sprintf("entry %q: truncated id", name)}
		}
		var h Hash
		copy(h[:], data[pos:pos+HashSize])
		pos += HashSize

		tr.Entries = append(tr.Entries, TreeEntry{Mode: mode, Name: name, Hash: h})
	}
	return tr, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// FormatSignature renders "Name <email> <unix-seconds> <+hhmm>".
func FormatSignature(sig Signature) string {
	tz := sig.Timezone
	if tz == "" {
		tz = "+0000"
	}
	return fmt.Sprintf("%s <%s> %d %s", sig.Name, sig.Email, sig.When, tz)
}

// ParseSignature is the inverse of FormatSignature.
func ParseSignature(line string) (Signature, error) {
	lt := strings.IndexByte(line, '<')
	gt := strings.LastIndexByte(line, '>')
	if lt < 0 || gt < lt {
		return Signature{}, fmt.Errorf("parse signature %q: missing <email>", line)
	}
	sig := Signature{
		Name:  strings.TrimSpace(line[:lt]),
		Email: line[lt+1 : gt],
	}
	fields := strings.Fields(line[gt+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("parse signature %q: missing timestamp", line)
	}
	when, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("parse signature %q: bad timestamp: %w", line, err)
	}
	sig.When = when
	sig.Timezone = fields[1]
	return sig, nil
}

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more)
//	author A
//	committer C
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", FormatSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", FormatSignature(c.Committer))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj. Headers it does not model (gpgsig,
// encoding, mergetag) and their continuation lines are skipped.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, &FormatError{What: "commit", Reason: "missing header/message separator"}
	}
	header := string(data[:idx])
	c := &CommitObj{Message: string(data[idx+2:])}

	sawTree := false
	for _, line := range strings.Split(header, "\n") {
		if strings.HasPrefix(line, " ") {
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, &FormatError{What: "commit", Reason: fmt.Sprintf("malformed header line %q", line)}
		}
		var err error
		switch key {
		case "tree":
			c.TreeHash, err = ParseHash(val)
			sawTree = true
		case "parent":
			var p Hash
			p, err = ParseHash(val)
			c.Parents = append(c.Parents, p)
		case "author":
			c.Author, err = ParseSignature(val)
		case "committer":
			c.Committer, err = ParseSignature(val)
		}
		if err != nil {
			return nil, &FormatError{What: "commit", Reason: err.Error()}
		}
	}
	if !sawTree {
		return nil, &FormatError{What: "commit", Reason: "missing tree header"}
	}
	return c, nil
}
