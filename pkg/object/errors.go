package object

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrFormat        = errors.New("malformed object format")
	ErrNotFound      = errors.New("object not found")
	ErrCorruptObject = errors.New("corrupt object")
	ErrProtocol      = errors.New("protocol error")
	ErrDelta         = errors.New("invalid delta")
)

// FormatError reports a malformed envelope or pack header.
type FormatError struct {
	What   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrFormat, e.What, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// NotFoundError reports an id that is absent from the store.
type NotFoundError struct {
	Hash Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound, e.Hash)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CorruptObjectError reports an object whose bytes could not be inflated,
// decoded or verified against its id.
type CorruptObjectError struct {
	Hash   Hash
	Reason string
	Err    error
}

func (e *CorruptObjectError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", ErrCorruptObject, e.Hash, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptObjectError) Unwrap() error {
	return e.Err
}

func (e *CorruptObjectError) Is(target error) bool {
	return target == ErrCorruptObject
}

// ProtocolError reports unexpected wire bytes, an unsupported pack object
// kind, or an offset delta.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrProtocol, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrProtocol, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// DeltaError reports a delta instruction stream that cannot be replayed
// against its base.
type DeltaError struct {
	Offset int // byte position while parsing, instruction index while applying
	Reason string
}

func (e *DeltaError) Error() string {
	return fmt.Sprintf("%s at %d: %s", ErrDelta, e.Offset, e.Reason)
}

func (e *DeltaError) Is(target error) bool {
	return target == ErrDelta
}

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
