package object

import (
	"encoding/hex"
	"fmt"

	"github.com/pjbgf/sha1cd"
)

// HashSize is the number of raw bytes in an object id.
const HashSize = 20

// Hash is the SHA-1 object id of an envelope. It is rendered as 40 lowercase
// hex characters.
type Hash [HashSize]byte

// ZeroHash is the all-zero id; it never names a stored object.
var ZeroHash Hash

// ParseHash decodes a 40-character hex id.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != hex.EncodedLen(HashSize) {
		return h, fmt.Errorf("parse hash %q: wrong length %d", s, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return h, nil
}

// HashFromBytes copies a raw 20-byte id.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("raw hash %x: wrong size %d", b, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 7 hex characters.
func (h Hash) Short() string {
	return h.String()[:7]
}

// IsZero reports whether h is ZeroHash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashEnvelope computes the SHA-1 of a full envelope, header included. The
// digest is computed with collision detection; an envelope that triggers a
// known SHA-1 collision attack is reported as corrupt.
func HashEnvelope(envelope []byte) (Hash, error) {
	sum, collision := sha1cd.Sum(envelope)
	if collision {
		return Hash(sum), &CorruptObjectError{Hash: Hash(sum), Reason: "sha-1 collision attack detected"}
	}
	return Hash(sum), nil
}

// HashObject computes the id of (objType, data) without storing it. It is
// identical to Git's object id for the same content.
func HashObject(objType ObjectType, data []byte) Hash {
	sum, _ := sha1cd.Sum(EncodeEnvelope(objType, data))
	return Hash(sum)
}
