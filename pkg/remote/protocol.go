package remote

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
)

const (
	// UploadPackService is the only service this client speaks.
	UploadPackService = "git-upload-pack"

	headerGitProtocol = "Git-Protocol"
	protocolV2        = "version=2"

	advertisementContentType = "application/x-git-upload-pack-advertisement"
	uploadPackRequestType    = "application/x-git-upload-pack-request"
	uploadPackResultType     = "application/x-git-upload-pack-result"
)

// Capabilities is the set of capabilities a server advertised after the
// first ref. Entries are either bare names or key=value pairs; symref may
// appear several times.
type Capabilities struct {
	values  map[string]string
	symrefs map[string]string
}

// ParseCapabilities parses a space-separated capability list.
func ParseCapabilities(raw string) Capabilities {
	caps := Capabilities{values: make(map[string]string), symrefs: make(map[string]string)}
	for _, field := range strings.Fields(raw) {
		name, value, _ := strings.Cut(field, "=")
		if name == "symref" {
			if src, dst, ok := strings.Cut(value, ":"); ok {
				caps.symrefs[src] = dst
			}
		}
		caps.values[name] = value
	}
	return caps
}

// Has reports whether the capability name was advertised.
func (c Capabilities) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Value returns the value of a key=value capability.
func (c Capabilities) Value(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Symref returns the target advertised for a symbolic ref such as HEAD.
func (c Capabilities) Symref(name string) (string, bool) {
	v, ok := c.symrefs[name]
	return v, ok
}

// String returns the capabilities sorted by name, space separated.
func (c Capabilities) String() string {
	names := make([]string, 0, len(c.values))
	for k, v := range c.values {
		if k == "symref" {
			continue
		}
		if v != "" {
			k += "=" + v
		}
		names = append(names, k)
	}
	for src, dst := range c.symrefs {
		names = append(names, "symref="+src+":"+dst)
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// RefAdvertisement is the result of ref discovery.
type RefAdvertisement struct {
	// Refs maps full ref names to ids. It always contains "HEAD".
	Refs         map[string]object.Hash
	Capabilities Capabilities
}

// HeadTarget returns the branch HEAD points at, when the server said so.
func (a *RefAdvertisement) HeadTarget() (string, bool) {
	return a.Capabilities.Symref("HEAD")
}

// Wants returns every distinct advertised id in sorted order.
func (a *RefAdvertisement) Wants() []object.Hash {
	seen := make(map[object.Hash]struct{}, len(a.Refs))
	out := make([]object.Hash, 0, len(a.Refs))
	for _, h := range a.Refs {
		if _, ok := seen[h]; ok || h.IsZero() {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sortHashes(out)
	return out
}

// ParseRefAdvertisement parses a smart-HTTP info/refs response body: an
// optional "# service=" comment, flush packets, then one "<id> <name>" line
// per ref. The first ref line carries the capability list after a NUL byte.
// A HEAD entry is synthesized from the first ref when the server omits it.
func ParseRefAdvertisement(r io.Reader) (*RefAdvertisement, error) {
	adv := &RefAdvertisement{
		Refs:         make(map[string]object.Hash),
		Capabilities: ParseCapabilities(""),
	}
	var (
		first   object.Hash
		sawRefs bool
	)

	pr := NewPktReader(r)
	for pr.Next() {
		if pr.Type() != PktData {
			continue
		}
		line := pr.Text()
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "version ") {
			continue
		}
		if !sawRefs {
			if body, caps, ok := strings.Cut(line, "\x00"); ok {
				adv.Capabilities = ParseCapabilities(caps)
				line = body
			}
		}
		hexID, name, ok := strings.Cut(line, " ")
		if !ok || name == "" {
			return nil, &object.ProtocolError{Reason: fmt.Sprintf("malformed ref advertisement line %q", line)}
		}
		id, err := object.ParseHash(hexID)
		if err != nil {
			return nil, &object.ProtocolError{Reason: "ref advertisement", Err: err}
		}
		if !sawRefs {
			first = id
			sawRefs = true
		}
		// Empty repositories advertise a placeholder; peeled tags name no ref.
		if name == "capabilities^{}" || strings.HasSuffix(name, "^{}") {
			continue
		}
		if name != "HEAD" {
			if err := object.CheckRefName(name); err != nil {
				return nil, &object.ProtocolError{Reason: "ref advertisement", Err: err}
			}
		}
		adv.Refs[name] = id
	}
	if err := pr.Err(); err != nil {
		return nil, err
	}
	if !sawRefs {
		return nil, &object.ProtocolError{Reason: "ref advertisement lists no refs"}
	}
	if _, ok := adv.Refs["HEAD"]; !ok {
		adv.Refs["HEAD"] = first
	}
	return adv, nil
}

// FormatFetchRequest builds a protocol v2 fetch command body asking for every
// id in wants. Duplicate ids are sent once, in sorted order. The control lines
// are fixed protocol constants.
func FormatFetchRequest(wants []object.Hash, agent string) []byte {
	buf := []byte("0011command=fetch")
	if agent != "" {
		buf = AppendPktString(buf, "agent="+agent+"\n")
	}
	buf = append(buf, "0001000fno-progress"...)

	unique := make([]object.Hash, 0, len(wants))
	seen := make(map[object.Hash]struct{}, len(wants))
	for _, h := range wants {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		unique = append(unique, h)
	}
	sortHashes(unique)
	for _, h := range unique {
		buf = AppendPktString(buf, "want "+h.String()+"\n")
	}
	buf = append(buf, "0009done\n"...)
	return append(buf, "0000"...)
}

func sortHashes(hs []object.Hash) {
	sort.Slice(hs, func(i, j int) bool {
		return string(hs[i][:]) < string(hs[j][:])
	})
}
