package remote

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
)

// Side-band channels multiplexed onto pack response pkt-lines.
const (
	SidebandData     byte = 0x01
	SidebandProgress byte = 0x02
	SidebandError    byte = 0x03
)

// sidebandChunk keeps one data frame, band byte included, under the pkt-line
// payload limit.
const sidebandChunk = MaxPktPayload - 1

// SidebandWriter frames data as pkt-lines on side-band channels.
type SidebandWriter struct {
	w io.Writer
}

func NewSidebandWriter(w io.Writer) *SidebandWriter {
	return &SidebandWriter{w: w}
}

func (sw *SidebandWriter) writeFrames(channel byte, data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > sidebandChunk {
			n = sidebandChunk
		}
		frame := make([]byte, 0, n+1)
		frame = append(frame, channel)
		frame = append(frame, data[:n]...)
		if _, err := sw.w.Write(AppendPkt(nil, frame)); err != nil {
			return fmt.Errorf("write side-band %d frame: %w", channel, err)
		}
		data = data[n:]
	}
	return nil
}

// Write sends p on the data channel.
func (sw *SidebandWriter) Write(p []byte) (int, error) {
	if err := sw.writeFrames(SidebandData, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (sw *SidebandWriter) WriteProgress(msg string) error {
	return sw.writeFrames(SidebandProgress, []byte(msg))
}

func (sw *SidebandWriter) WriteError(msg string) error {
	return sw.writeFrames(SidebandError, []byte(msg))
}

// ReadPackResponse consumes a protocol v2 fetch response. Sections before the
// "packfile" line are discarded. After it, band 1 payloads are concatenated
// into the returned pack stream, band 2 is passed to progress, and band 3
// aborts with a *object.ProtocolError carrying the remote message.
func ReadPackResponse(r io.Reader, progress func(string)) ([]byte, error) {
	pr := NewPktReader(r)
	inPack := false
	var pack bytes.Buffer
	for pr.Next() {
		if pr.Type() != PktData {
			if inPack && pr.Type() == PktFlush {
				return pack.Bytes(), nil
			}
			continue
		}
		if !inPack {
			if pr.Text() == "packfile" {
				inPack = true
			}
			continue
		}

		frame := pr.Bytes()
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case SidebandData:
			pack.Write(frame[1:])
		case SidebandProgress:
			if progress != nil {
				progress(string(frame[1:]))
			}
		case SidebandError:
			return nil, &object.ProtocolError{Reason: "remote error: " + strings.TrimSpace(string(frame[1:]))}
		default:
			return nil, &object.ProtocolError{Reason: fmt.Sprintf("unknown side-band channel %d", frame[0])}
		}
	}
	if err := pr.Err(); err != nil {
		return nil, err
	}
	if !inPack {
		return nil, &object.ProtocolError{Reason: "fetch response has no packfile section"}
	}
	// Some servers close the stream without a final flush.
	return pack.Bytes(), nil
}
