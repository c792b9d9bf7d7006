package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/gitlite/pkg/object"
)

// ReflogEntry is one line of .git/logs/<ref>.
type ReflogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Who       string // "Name <email>"
	Timestamp int64
	Timezone  string
	Reason    string
}

func (r *Repo) reflogIdentity() string {
	name, email := "gitlite", "gitlite@localhost"
	if cfg, err := r.ReadConfig(); err == nil {
		if n, e := cfg.User(); n != "" && e != "" {
			name, email = n, e
		}
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// appendReflog appends "<old> <new> <who> <ts> <tz>\t<reason>" to the ref's
// log, matching Git's reflog format.
func (r *Repo) appendReflog(ref string, oldHash, newHash object.Hash, reason string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}

	logPath := filepath.Join(r.GitDir, "logs", filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	now := time.Now()
	line := fmt.Sprintf("%s %s %s %d %s\t%s\n",
		oldHash, newHash, r.reflogIdentity(), now.Unix(), now.Format("-0700"), reason)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog returns up to limit entries for ref, newest first. A ref with no
// log returns no entries.
func (r *Repo) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	refName := r.resolveReflogRefName(ref)

	logPath := filepath.Join(r.GitDir, "logs", filepath.FromSlash(refName))
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseReflogLine(refName, scanner.Text())
		if ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	// Return newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func parseReflogLine(ref, line string) (ReflogEntry, bool) {
	head, reason, _ := strings.Cut(line, "\t")
	parts := strings.SplitN(head, " ", 3)
	if len(parts) < 3 {
		return ReflogEntry{}, false
	}
	oldHash, err1 := object.ParseHash(parts[0])
	newHash, err2 := object.ParseHash(parts[1])
	if err1 != nil || err2 != nil {
		return ReflogEntry{}, false
	}
	gt := strings.LastIndexByte(parts[2], '>')
	if gt < 0 {
		return ReflogEntry{}, false
	}
	fields := strings.Fields(parts[2][gt+1:])
	if len(fields) != 2 {
		return ReflogEntry{}, false
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return ReflogEntry{}, false
	}
	return ReflogEntry{
		Ref:       ref,
		OldHash:   oldHash,
		NewHash:   newHash,
		Who:       parts[2][:gt+1],
		Timestamp: ts,
		Timezone:  fields[1],
		Reason:    reason,
	}, true
}

func (r *Repo) resolveReflogRefName(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "HEAD" {
		head, err := r.Head()
		if err == nil && strings.HasPrefix(head, "refs/") {
			return head
		}
		return "HEAD"
	}
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	return "refs/heads/" + ref
}
