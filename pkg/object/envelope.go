package object

import (
	"bytes"
	"strconv"
)

// EncodeEnvelope builds "<kind> <len>\0<content>".
func EncodeEnvelope(objType ObjectType, data []byte) []byte {
	header := string(objType) + " " + strconv.Itoa(len(data)) + "\x00"
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	return append(out, data...)
}

// DecodeEnvelope splits an envelope into its kind and content. The declared
// length must match the content length exactly.
func DecodeEnvelope(raw []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, &FormatError{What: "envelope", Reason: "missing NUL separator"}
	}
	header := raw[:nul]
	content := raw[nul+1:]

	sp := bytes.IndexByte(header, ' ')
	if sp <= 0 {
		return "", nil, &FormatError{What: "envelope", Reason: "invalid header " + strconv.Quote(string(header))}
	}
	objType, err := ParseObjectType(string(header[:sp]))
	if err != nil {
		return "", nil, &FormatError{What: "envelope", Reason: err.Error()}
	}
	length, err := strconv.Atoi(string(header[sp+1:]))
	if err != nil || length < 0 {
		return "", nil, &FormatError{What: "envelope", Reason: "invalid length " + strconv.Quote(string(header[sp+1:]))}
	}
	if length != len(content) {
		return "", nil, &FormatError{
			What:   "envelope",
			Reason: "length mismatch (header=" + strconv.Itoa(length) + ", actual=" + strconv.Itoa(len(content)) + ")",
		}
	}
	return objType, content, nil
}
