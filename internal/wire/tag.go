// Package wire implements the Roughtime tag-length-value wire format: a
// forward-only cursor for parsing RtMessages and a matching cursor for
// emitting them, plus the fixed tag vocabulary and RFC request framing.
package wire

import (
	"encoding/binary"
	"strconv"
)

// Tag is a 32-bit wire identifier. Tags are encoded as 4 ASCII bytes read as
// a little-endian uint32, matching the upstream Roughtime protocol.
type Tag uint32

func makeTag(b [4]byte) Tag {
	return Tag(binary.LittleEndian.Uint32(b[:]))
}

// Fixed tag vocabulary (spec.md §3). Values are 4-byte ASCII mnemonics,
// 3-character tags padded with a trailing sentinel byte.
const (
	SIG  Tag = 0x00474953 // "SIG\x00"
	VER  Tag = 0x00524556 // "VER\x00"
	SRV  Tag = 0x00565253 // "SRV\x00"
	NONC Tag = 0x434e4f4e // "NONC"
	DELE Tag = 0x454c4544 // "DELE"
	PATH Tag = 0x48544150 // "PATH"
	RADI Tag = 0x49444152 // "RADI"
	PUBK Tag = 0x4b425550 // "PUBK"
	MIDP Tag = 0x5044494d // "MIDP"
	SREP Tag = 0x50455253 // "SREP"
	VERS Tag = 0x53524556 // "VERS"
	MINT Tag = 0x544e494d // "MINT"
	ROOT Tag = 0x544f4f52 // "ROOT"
	CERT Tag = 0x54524543 // "CERT"
	MAXT Tag = 0x5458414d // "MAXT"
	INDX Tag = 0x58444e49 // "INDX"
	PAD  Tag = 0xff444150 // "PAD\xff"
)

var tagNames = map[Tag]string{
	SIG: "SIG", VER: "VER", SRV: "SRV", NONC: "NONC", DELE: "DELE",
	PATH: "PATH", RADI: "RADI", PUBK: "PUBK", MIDP: "MIDP", SREP: "SREP",
	VERS: "VERS", MINT: "MINT", ROOT: "ROOT", CERT: "CERT", MAXT: "MAXT",
	INDX: "INDX", PAD: "PAD",
}

// String implements fmt.Stringer, used only in logs and test failures.
func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return "Tag(0x" + strconv.FormatUint(uint64(t), 16) + ")"
}

// Version is a negotiated Roughtime protocol version code.
type Version uint32

// RfcDraft14 is the version code this server speaks. The RFC draft's
// version tag has shifted across drafts (spec.md §9, Open Question 2); this
// implementation pins the draft-14 value and does not negotiate others.
const RfcDraft14 Version = 0x80000004

// DelegationContext and ResponseContext are the domain-separation prefixes
// prepended to, respectively, the bytes of a DELE message before the
// long-term key signs it, and the bytes of an SREP message before the
// online key signs it.
var (
	DelegationContext = []byte("RoughTime v1 delegation signature\x00")
	ResponseContext   = []byte("RoughTime v1 response signature\x00")
)

// Merkle tree domain-separation tweaks (spec.md §3).
const (
	LeafTweak     = byte(0x00)
	InternalTweak = byte(0x01)
)

// RFCMagic is the 8-byte little-endian magic "ROUGHTIM" that prefixes every
// RFC-framed request.
var RFCMagic = [8]byte{'R', 'O', 'U', 'G', 'H', 'T', 'I', 'M'}

const (
	// RequestTotalSize is the mandatory total size of a framed request.
	RequestTotalSize = 1024
	// FrameHeaderSize is the size of the magic + length prefix.
	FrameHeaderSize = 12
	// RequestPayloadSize is the RtMessage payload size after framing.
	RequestPayloadSize = RequestTotalSize - FrameHeaderSize
)
