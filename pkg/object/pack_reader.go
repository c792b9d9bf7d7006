package object

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/pjbgf/sha1cd"
)

// PackRecord is one object entry decoded from a pack stream. For ref-delta
// records Data holds the delta instruction stream and BaseHash the id of the
// object it applies to; otherwise Data is the full object content.
type PackRecord struct {
	Offset   int
	Type     PackObjectType
	Size     uint64
	BaseHash Hash
	Data     []byte
}

// IsDelta reports whether the record must be resolved against a base.
func (r *PackRecord) IsDelta() bool {
	return r.Type == PackRefDelta
}

// Pack is the decoded content of a full pack stream.
type Pack struct {
	Header   PackHeader
	Records  []PackRecord
	Checksum Hash // zero when the stream carried no trailer
}

// packCursor walks an immutable pack buffer. off only moves forward.
type packCursor struct {
	buf []byte
	off int
	zr  io.ReadCloser
}

func (c *packCursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *packCursor) take(n int) ([]byte, bool) {
	if n < 0 || c.remaining() < n {
		return nil, false
	}
	out := c.buf[c.off : c.off+n]
	c.off += n
	return out, true
}

// maxInflateRatio caps the buffer presized for one record relative to the
// compressed bytes left in the pack.
const maxInflateRatio = 4

// inflate decompresses exactly one zlib stream starting at the cursor and
// advances past the compressed bytes it consumed. The compressed length is not
// stored in the pack, so it is measured from the reader: bytes.Reader is an
// io.ByteReader, which keeps the decompressor from reading ahead.
func (c *packCursor) inflate(limit uint64) ([]byte, error) {
	src := bytes.NewReader(c.buf[c.off:])
	if c.zr == nil {
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, err
		}
		c.zr = zr
	} else if err := c.zr.(zlib.Resetter).Reset(src, nil); err != nil {
		return nil, err
	}

	// The declared size is untrusted; it bounds the read, not the allocation.
	hint := min(limit, uint64(c.remaining())*maxInflateRatio)
	readLimit := int64(math.MaxInt64)
	if limit < math.MaxInt64 {
		readLimit = int64(limit) + 1
	}
	out, err := readAllInto(make([]byte, 0, hint), io.LimitReader(c.zr, readLimit))
	if err != nil {
		return nil, err
	}
	c.off += c.remaining() - src.Len()
	return out, nil
}

func readAllInto(dst []byte, r io.Reader) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	_, err := buf.ReadFrom(r)
	return buf.Bytes(), err
}

// ParsePack decodes a pack stream: the 12-byte header, then NumObjects
// records, then an optional 20-byte SHA-1 trailer over everything before it.
// Offset deltas and unknown type tags are rejected with *ProtocolError; the
// parser never guesses.
func ParsePack(data []byte) (*Pack, error) {
	header, err := UnmarshalPackHeader(data)
	if err != nil {
		return nil, err
	}

	cur := &packCursor{buf: data, off: packHeaderSize}
	records := make([]PackRecord, 0, header.NumObjects)
	for i := uint32(0); i < header.NumObjects; i++ {
		rec, err := cur.next()
		if err != nil {
			return nil, fmt.Errorf("pack entry %d: %w", i, err)
		}
		records = append(records, rec)
	}

	pack := &Pack{Header: *header, Records: records}
	switch rest := cur.remaining(); rest {
	case 0:
	case HashSize:
		sum, _ := sha1cd.Sum(data[:cur.off])
		trailer, _ := cur.take(HashSize)
		if !bytes.Equal(sum[:], trailer) {
			return nil, &CorruptObjectError{Hash: Hash(sum), Reason: "pack checksum mismatch"}
		}
		pack.Checksum = Hash(sum)
	default:
		return nil, &FormatError{What: "pack", Reason: fmt.Sprintf("%d trailing bytes after %d objects", rest, header.NumObjects)}
	}
	return pack, nil
}

// ReadPackFromReader reads a complete pack stream from r and parses it.
func ReadPackFromReader(r io.Reader) (*Pack, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ParsePack(data)
}

func (c *packCursor) next() (PackRecord, error) {
	rec := PackRecord{Offset: c.off}
	objType, size, n, err := decodePackEntryHeader(c.buf[c.off:])
	if err != nil {
		return rec, err
	}
	c.off += n
	rec.Type = objType
	rec.Size = size

	switch objType {
	case PackCommit, PackTree, PackBlob, PackTag:
	case PackRefDelta:
		base, ok := c.take(HashSize)
		if !ok {
			return rec, &FormatError{What: "ref-delta", Reason: "truncated base id"}
		}
		copy(rec.BaseHash[:], base)
	case PackOfsDelta:
		return rec, protocolErrorf("offset deltas are not supported (record at byte %d)", rec.Offset)
	default:
		return rec, protocolErrorf("unknown pack object type %d at byte %d", uint8(objType), rec.Offset)
	}

	if c.remaining() == 0 {
		return rec, &FormatError{What: "pack entry", Reason: "missing compressed payload"}
	}
	data, err := c.inflate(size)
	if err != nil {
		return rec, &CorruptObjectError{Reason: fmt.Sprintf("inflate %s record at byte %d", objType, rec.Offset), Err: err}
	}
	if uint64(len(data)) != size {
		return rec, &CorruptObjectError{
			Reason: fmt.Sprintf("%s record at byte %d: size mismatch header=%d decoded=%d", objType, rec.Offset, size, len(data)),
		}
	}
	rec.Data = data
	return rec, nil
}
