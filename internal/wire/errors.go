package wire

import (
	"errors"
	"fmt"
)

// Closed error taxonomy for the wire protocol layer (spec.md §7). Every
// error a parser or framer can return is one of these sentinels (optionally
// wrapped with fmt.Errorf("%w: ...") for context), so callers can branch
// with errors.Is without inspecting strings.
var (
	ErrBadRequestSize    = errors.New("wire: request size is not the required size")
	ErrBufferTooSmall    = errors.New("wire: buffer too small")
	ErrInvalidTag        = errors.New("wire: invalid tag")
	ErrInvalidVersion    = errors.New("wire: invalid version")
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrMismatchedNumTags = errors.New("wire: mismatched number of tags")
	ErrUnexpectedMagic   = errors.New("wire: unexpected magic")
	ErrUnexpectedFraming = errors.New("wire: unexpected framing")
	ErrUnexpectedTags    = errors.New("wire: unexpected tags")
	ErrUnorderedTag      = errors.New("wire: tags not in ascending order")
	ErrUnexpectedOffsets = errors.New("wire: unexpected offsets")
	ErrUnorderedOffset   = errors.New("wire: offset less than prior offset")
	ErrUnalignedOffset   = errors.New("wire: offset not 4-byte aligned")
	ErrOutOfBoundsOffset = errors.New("wire: offset beyond end of message")
	ErrNoSupportedVersions = errors.New("wire: no supported versions")
	ErrInvalidPathLength = errors.New("wire: PATH length not a multiple of 64")
	ErrWrongTagSize      = errors.New("wire: wrong tag size")
	ErrIO                = errors.New("wire: io error")
)

// wrapf annotates a sentinel with context while keeping it matchable by
// errors.Is.
func wrapf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{sentinel}, args...)...)
}
