package object

import (
	"fmt"
	"strings"
)

// CheckRefName reports whether name is a well-formed full ref name
// ("refs/heads/main") under Git's check-ref-format rules, returning a
// *FormatError when it is not. Components may not be empty, start with '.',
// or end with ".lock"; "..", "@{", control characters and the characters
// space ~ ^ : ? * [ \ are refused anywhere.
func CheckRefName(name string) error {
	bad := func(reason string) error {
		return &FormatError{What: "ref name", Reason: fmt.Sprintf("%q: %s", name, reason)}
	}
	if !strings.HasPrefix(name, "refs/") {
		return bad("not under refs/")
	}
	if strings.HasSuffix(name, ".") {
		return bad("ends with '.'")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") {
		return bad("contains '..' or '@{'")
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f || strings.ContainsRune(" ~^:?*[\\", c) {
			return bad(fmt.Sprintf("contains %q", c))
		}
	}
	for _, part := range strings.Split(name, "/") {
		switch {
		case part == "":
			return bad("empty component")
		case strings.HasPrefix(part, "."):
			return bad("component starts with '.'")
		case strings.HasSuffix(part, ".lock"):
			return bad("component ends with .lock")
		}
	}
	return nil
}
