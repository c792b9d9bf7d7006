package object

import (
	"bytes"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pjbgf/sha1cd"
)

// PackWriter writes version 2 pack streams with zlib-compressed entries. The
// trailer is the SHA-1 of every byte preceding it.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	zw       *zlib.Writer
	zbuf     bytes.Buffer
	expected uint32
	written  uint32
	finished bool
}

// NewPackWriter writes the pack header for numObjects entries and returns a
// writer for them.
func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	hasher := sha1cd.New()
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(out, hasher),
		expected: numObjects,
	}
	pw.zw = zlib.NewWriter(&pw.zbuf)

	header := PackHeader{Version: supportedPackVersion, NumObjects: numObjects}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

func (p *PackWriter) compress(raw []byte) ([]byte, error) {
	p.zbuf.Reset()
	p.zw.Reset(&p.zbuf)
	if _, err := p.zw.Write(raw); err != nil {
		return nil, err
	}
	if err := p.zw.Close(); err != nil {
		return nil, err
	}
	return p.zbuf.Bytes(), nil
}

func (p *PackWriter) checkWritable() error {
	if p.finished {
		return fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return fmt.Errorf("pack object count exceeded: expected %d", p.expected)
	}
	return nil
}

func (p *PackWriter) writeEntry(objType PackObjectType, base *Hash, payload []byte) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	compressed, err := p.compress(payload)
	if err != nil {
		return fmt.Errorf("compress %s entry: %w", objType, err)
	}

	if _, err := p.hashedW.Write(encodePackEntryHeader(objType, uint64(len(payload)))); err != nil {
		return fmt.Errorf("write %s entry header: %w", objType, err)
	}
	if base != nil {
		if _, err := p.hashedW.Write(base[:]); err != nil {
			return fmt.Errorf("write ref-delta base: %w", err)
		}
	}
	if _, err := p.hashedW.Write(compressed); err != nil {
		return fmt.Errorf("write %s entry payload: %w", objType, err)
	}
	p.written++
	return nil
}

// WriteEntry appends one non-delta entry with the given pack type.
func (p *PackWriter) WriteEntry(objType PackObjectType, data []byte) error {
	if _, ok := objType.ObjectType(); !ok {
		return fmt.Errorf("write pack entry: %s is not a full object type", objType)
	}
	return p.writeEntry(objType, nil, data)
}

// WriteObject appends a full entry for an object of kind objType.
func (p *PackWriter) WriteObject(objType ObjectType, data []byte) error {
	packType, ok := PackTypeOf(objType)
	if !ok {
		return fmt.Errorf("write pack entry: unsupported object type %q", objType)
	}
	return p.writeEntry(packType, nil, data)
}

// WriteRawRefDelta appends a ref-delta entry whose payload is the given
// instruction stream.
func (p *PackWriter) WriteRawRefDelta(baseHash Hash, delta []byte) error {
	return p.writeEntry(PackRefDelta, &baseHash, delta)
}

// WriteRefDelta appends a ref-delta entry that rebuilds target from the object
// baseHash whose content is baseData.
func (p *PackWriter) WriteRefDelta(baseHash Hash, baseData, target []byte) error {
	return p.WriteRawRefDelta(baseHash, BuildDelta(baseData, target))
}

// Finish checks the entry count, writes the SHA-1 trailer and returns it.
func (p *PackWriter) Finish() (Hash, error) {
	if p.finished {
		return ZeroHash, fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return ZeroHash, fmt.Errorf("pack object count mismatch: wrote %d, expected %d", p.written, p.expected)
	}

	var sum Hash
	copy(sum[:], p.hasher.Sum(nil))
	if _, err := p.out.Write(sum[:]); err != nil {
		return ZeroHash, fmt.Errorf("write pack trailer checksum: %w", err)
	}
	p.finished = true
	return sum, nil
}
