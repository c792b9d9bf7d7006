package object

import (
	"bytes"
	"fmt"
)

// maxDeltaInsert is the largest literal run a single insert opcode can carry.
const maxDeltaInsert = 0x7f

// maxDeltaCopy is the largest span a single copy opcode can carry; a zero
// length field decodes to it.
const maxDeltaCopy = 0x10000

// DeltaOp identifies one instruction of a delta stream.
type DeltaOp uint8

const (
	DeltaCopy DeltaOp = iota + 1
	DeltaInsert
)

// DeltaInstruction is one decoded delta opcode. Copy instructions use Offset
// and Length against the base; insert instructions carry Data.
type DeltaInstruction struct {
	Op     DeltaOp
	Offset uint32
	Length uint32
	Data   []byte
}

// Delta is a parsed delta instruction stream. BaseSize and TargetSize come from
// the two leading varints and are advisory: Apply checks bounds against the
// actual base.
type Delta struct {
	BaseSize     uint64
	TargetSize   uint64
	Instructions []DeltaInstruction
}

func encodeDeltaVarint(v uint64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// decodeDeltaVarint reads a little-endian base-128 varint at data[pos].
func decodeDeltaVarint(data []byte, pos int) (uint64, int, error) {
	var (
		value uint64
		shift uint
	)
	for {
		if pos >= len(data) {
			return 0, pos, &DeltaError{Offset: pos, Reason: "truncated size varint"}
		}
		b := data[pos]
		pos++
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, pos, nil
		}
		shift += 7
		if shift > 63 {
			return 0, pos, &DeltaError{Offset: pos, Reason: "size varint overflows 64 bits"}
		}
	}
}

// ParseDelta decodes a delta stream into its instructions without touching a
// base object.
func ParseDelta(data []byte) (*Delta, error) {
	baseSize, pos, err := decodeDeltaVarint(data, 0)
	if err != nil {
		return nil, err
	}
	targetSize, pos, err := decodeDeltaVarint(data, pos)
	if err != nil {
		return nil, err
	}

	d := &Delta{BaseSize: baseSize, TargetSize: targetSize}
	for pos < len(data) {
		at := pos
		op := data[pos]
		pos++

		if op&0x80 != 0 {
			var offset, length uint32
			for i := uint(0); i < 4; i++ {
				if op&(1<<i) == 0 {
					continue
				}
				if pos >= len(data) {
					return nil, &DeltaError{Offset: at, Reason: "truncated copy offset"}
				}
				offset |= uint32(data[pos]) << (8 * i)
				pos++
			}
			for i := uint(0); i < 3; i++ {
				if op&(0x10<<i) == 0 {
					continue
				}
				if pos >= len(data) {
					return nil, &DeltaError{Offset: at, Reason: "truncated copy length"}
				}
				length |= uint32(data[pos]) << (8 * i)
				pos++
			}
			// Git reads an all-zero length as 0x10000, not as an empty copy.
			if length == 0 {
				length = maxDeltaCopy
			}
			d.Instructions = append(d.Instructions, DeltaInstruction{Op: DeltaCopy, Offset: offset, Length: length})
			continue
		}

		if op == 0 {
			return nil, &DeltaError{Offset: at, Reason: "reserved opcode 0"}
		}
		n := int(op)
		if pos+n > len(data) {
			return nil, &DeltaError{Offset: at, Reason: fmt.Sprintf("insert of %d bytes runs past end of delta", n)}
		}
		d.Instructions = append(d.Instructions, DeltaInstruction{Op: DeltaInsert, Data: data[pos : pos+n]})
		pos += n
	}
	return d, nil
}

// Apply reconstructs the target from base. A copy that reaches past the end of
// base is a *DeltaError.
func (d *Delta) Apply(base []byte) ([]byte, error) {
	out := make([]byte, 0, d.outputHint(len(base)))
	for i, ins := range d.Instructions {
		switch ins.Op {
		case DeltaCopy:
			end := uint64(ins.Offset) + uint64(ins.Length)
			if end > uint64(len(base)) {
				return nil, &DeltaError{
					Offset: i,
					Reason: fmt.Sprintf("copy [%d,%d) exceeds base of %d bytes", ins.Offset, end, len(base)),
				}
			}
			out = append(out, base[ins.Offset:end]...)
		case DeltaInsert:
			out = append(out, ins.Data...)
		default:
			return nil, &DeltaError{Offset: i, Reason: fmt.Sprintf("unknown instruction %d", ins.Op)}
		}
	}
	return out, nil
}

// outputHint presizes Apply's buffer. TargetSize is untrusted, so it is
// clamped to what the instructions can actually produce.
func (d *Delta) outputHint(baseLen int) int {
	var n uint64
	for _, ins := range d.Instructions {
		if ins.Op == DeltaInsert {
			n += uint64(len(ins.Data))
		} else {
			n += uint64(min(int(ins.Length), baseLen))
		}
	}
	return int(min(n, d.TargetSize))
}

// ApplyDelta parses delta and applies it to base.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	d, err := ParseDelta(delta)
	if err != nil {
		return nil, err
	}
	return d.Apply(base)
}

// Encode serializes the delta back into the wire instruction stream. Copy
// lengths above maxDeltaCopy and inserts above maxDeltaInsert are split.
func (d *Delta) Encode() []byte {
	var out bytes.Buffer
	out.Write(encodeDeltaVarint(d.BaseSize))
	out.Write(encodeDeltaVarint(d.TargetSize))
	for _, ins := range d.Instructions {
		switch ins.Op {
		case DeltaCopy:
			offset, length := ins.Offset, ins.Length
			for length > 0 {
				n := length
				if n > maxDeltaCopy {
					n = maxDeltaCopy
				}
				writeDeltaCopy(&out, offset, n)
				offset += n
				length -= n
			}
		case DeltaInsert:
			writeDeltaInsert(&out, ins.Data)
		}
	}
	return out.Bytes()
}

func writeDeltaCopy(out *bytes.Buffer, offset, length uint32) {
	op := byte(0x80)
	args := make([]byte, 0, 7)
	for i := uint(0); i < 4; i++ {
		if b := byte(offset >> (8 * i)); b != 0 {
			op |= 1 << i
			args = append(args, b)
		}
	}
	if length != maxDeltaCopy {
		for i := uint(0); i < 3; i++ {
			if b := byte(length >> (8 * i)); b != 0 {
				op |= 0x10 << i
				args = append(args, b)
			}
		}
	}
	out.WriteByte(op)
	out.Write(args)
}

func writeDeltaInsert(out *bytes.Buffer, data []byte) {
	for len(data) > 0 {
		n := len(data)
		if n > maxDeltaInsert {
			n = maxDeltaInsert
		}
		out.WriteByte(byte(n))
		out.Write(data[:n])
		data = data[n:]
	}
}

const (
	// minDeltaCopy is the shortest run worth a copy instruction; shorter
	// matches are cheaper as literal bytes.
	minDeltaCopy = 8

	// maxDeltaDiffLines bounds the line diff between the shared prefix and
	// suffix; larger middles are inserted literally.
	maxDeltaDiffLines = 2048
)

// BuildDelta returns a delta stream that rebuilds target from base. The
// longest shared prefix and suffix are copied; the lines between them are
// matched with a line diff so unchanged lines become copies and the rest is
// inserted.
func BuildDelta(base, target []byte) []byte {
	prefix := 0
	for prefix < len(base) && prefix < len(target) && base[prefix] == target[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(base)-prefix && suffix < len(target)-prefix &&
		base[len(base)-1-suffix] == target[len(target)-1-suffix] {
		suffix++
	}

	b := &deltaBuilder{base: base, target: target}
	b.copy(0, prefix)
	b.middle(prefix, len(base)-suffix, prefix, len(target)-suffix)
	b.copy(len(base)-suffix, suffix)
	b.flushLiteral()

	d := &Delta{
		BaseSize:     uint64(len(base)),
		TargetSize:   uint64(len(target)),
		Instructions: b.ins,
	}
	return d.Encode()
}

type deltaBuilder struct {
	base, target []byte
	ins          []DeltaInstruction
	literal      []byte
}

// copy emits base[off:off+n], which the caller guarantees equals the next n
// target bytes. Adjacent copies of contiguous base ranges are merged.
func (b *deltaBuilder) copy(off, n int) {
	if n == 0 {
		return
	}
	if n < minDeltaCopy {
		b.literal = append(b.literal, b.base[off:off+n]...)
		return
	}
	b.flushLiteral()
	if last := len(b.ins) - 1; last >= 0 && b.ins[last].Op == DeltaCopy &&
		int(b.ins[last].Offset)+int(b.ins[last].Length) == off {
		b.ins[last].Length += uint32(n)
		return
	}
	b.ins = append(b.ins, DeltaInstruction{Op: DeltaCopy, Offset: uint32(off), Length: uint32(n)})
}

func (b *deltaBuilder) insert(data []byte) {
	b.literal = append(b.literal, data...)
}

func (b *deltaBuilder) flushLiteral() {
	if len(b.literal) == 0 {
		return
	}
	b.ins = append(b.ins, DeltaInstruction{Op: DeltaInsert, Data: b.literal})
	b.literal = nil
}

// middle covers target[t0:t1] using base[b0:b1].
func (b *deltaBuilder) middle(b0, b1, t0, t1 int) {
	if t0 >= t1 {
		return
	}
	baseLines := splitLines(b.base, b0, b1)
	targetLines := splitLines(b.target, t0, t1)
	if len(baseLines) == 0 || len(baseLines)+len(targetLines) > maxDeltaDiffLines {
		b.insert(b.target[t0:t1])
		return
	}

	ops := diffLines(len(baseLines), len(targetLines), func(i, j int) bool {
		bl, tl := baseLines[i], targetLines[j]
		return bytes.Equal(b.base[bl.start:bl.end], b.target[tl.start:tl.end])
	})
	for _, op := range ops {
		switch op.Kind {
		case lineEqual:
			s := baseLines[op.A]
			b.copy(s.start, s.end-s.start)
		case lineInsert:
			s := targetLines[op.B]
			b.insert(b.target[s.start:s.end])
		}
	}
}
