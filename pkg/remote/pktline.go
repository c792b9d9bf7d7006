package remote

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/odvcencio/gitlite/pkg/object"
)

// MaxPktPayload is the largest payload a single pkt-line may carry.
const MaxPktPayload = 65516

// PktType distinguishes data lines from the special zero-length packets.
type PktType int8

const (
	// PktFlush ("0000") ends a message.
	PktFlush PktType = 0
	// PktDelim ("0001") separates sections in protocol version 2.
	PktDelim PktType = 1
	// PktData is a length-prefixed payload.
	PktData PktType = 4
)

// PktReader reads pkt-line framed packets. Call Next until it returns false,
// then check Err.
type PktReader struct {
	r   io.Reader
	typ PktType
	buf []byte
	err error
}

func NewPktReader(r io.Reader) *PktReader {
	return &PktReader{r: r, buf: make([]byte, 0, 1024)}
}

// Next advances to the next packet. It returns false at end of input or on a
// framing error. A clean io.EOF before a length prefix is not an error.
func (pr *PktReader) Next() bool {
	if pr.err != nil {
		return false
	}
	pr.typ, pr.buf, pr.err = readPkt(pr.r, pr.buf)
	return pr.err == nil
}

// Err returns the first framing error, or nil if input ended cleanly.
func (pr *PktReader) Err() error {
	if pr.err == io.EOF {
		return nil
	}
	return pr.err
}

// Type returns the current packet's type.
func (pr *PktReader) Type() PktType {
	return pr.typ
}

// Bytes returns the current data packet's payload. The slice is reused by the
// next call to Next.
func (pr *PktReader) Bytes() []byte {
	return pr.buf
}

// Text returns the current payload with one trailing newline removed.
func (pr *PktReader) Text() string {
	line := pr.buf
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	return string(line)
}

func readPkt(r io.Reader, buf []byte) (PktType, []byte, error) {
	var lengthHex [4]byte
	if n, err := io.ReadFull(r, lengthHex[:]); err != nil {
		if err == io.EOF && n == 0 {
			return PktFlush, buf[:0], io.EOF
		}
		return PktFlush, buf[:0], &object.ProtocolError{Reason: "read pkt-line length", Err: io.ErrUnexpectedEOF}
	}
	var length [2]byte
	if _, err := hex.Decode(length[:], lengthHex[:]); err != nil {
		return PktFlush, buf[:0], &object.ProtocolError{Reason: fmt.Sprintf("invalid pkt-line length %q", lengthHex), Err: err}
	}

	n := int(length[0])<<8 | int(length[1])
	switch {
	case n == 0:
		return PktFlush, buf[:0], nil
	case n == 1:
		return PktDelim, buf[:0], nil
	case n < len(lengthHex):
		// 0002 (response-end) and 0003 are not used by this client.
		return PktFlush, buf[:0], &object.ProtocolError{Reason: fmt.Sprintf("unsupported pkt-line length %q", lengthHex)}
	}
	n -= len(lengthHex)
	if n > MaxPktPayload {
		return PktFlush, buf[:0], &object.ProtocolError{Reason: fmt.Sprintf("pkt-line length %q exceeds maximum", lengthHex)}
	}
	if n > cap(buf) {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return PktFlush, buf[:0], &object.ProtocolError{Reason: "read pkt-line payload", Err: io.ErrUnexpectedEOF}
	}
	return PktData, buf, nil
}

const pktHexDigits = "0123456789abcdef"

// AppendPkt appends line as one data pkt-line. It panics on an empty or
// oversized payload, both of which are programming errors.
func AppendPkt(dst []byte, line []byte) []byte {
	if len(line) == 0 {
		panic("empty pkt-line")
	}
	if len(line) > MaxPktPayload {
		panic("pkt-line too large")
	}
	n := len(line) + 4
	dst = append(dst,
		pktHexDigits[n>>12],
		pktHexDigits[n>>8&0xf],
		pktHexDigits[n>>4&0xf],
		pktHexDigits[n&0xf],
	)
	return append(dst, line...)
}

// AppendPktString is AppendPkt for a string payload.
func AppendPktString(dst []byte, line string) []byte {
	return AppendPkt(dst, []byte(line))
}

// AppendFlush appends a flush packet.
func AppendFlush(dst []byte) []byte {
	return append(dst, "0000"...)
}

// AppendDelim appends a delimiter packet.
func AppendDelim(dst []byte) []byte {
	return append(dst, "0001"...)
}
