package trie

import (
	"encoding/binary"
	"io"

	"github.com/rootchain/unitrie"
)

// VarInt is a Bitcoin-style variable-length integer: 1, 3, 5, or 9 bytes,
// the first byte either the value itself (< 0xfd) or a marker selecting
// the width of a little-endian payload that follows. No library in the
// example pack implements this particular encoding (go-ethereum's rlp and
// the teacher's own common.Write/ReadBytesNN helpers use fixed-width or
// length-prefixed forms instead), so this is hand-rolled per spec §4.B/§GLOSSARY.
type VarInt uint64

const (
	varInt16Marker = 0xfd
	varInt32Marker = 0xfe
	varInt64Marker = 0xff
)

// Encode returns the canonical (shortest) encoding of v.
func (v VarInt) Encode() []byte {
	switch {
	case v < varInt16Marker:
		return []byte{byte(v)}
	case v <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = varInt16Marker
		binary.LittleEndian.PutUint16(buf[1:], uint16(v))
		return buf
	case v <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = varInt32Marker
		binary.LittleEndian.PutUint32(buf[1:], uint32(v))
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = varInt64Marker
		binary.LittleEndian.PutUint64(buf[1:], uint64(v))
		return buf
	}
}

// DecodeVarInt reads a VarInt from r.
func DecodeVarInt(r io.Reader) (VarInt, error) {
	var head [1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, unitrie.WrapMalformed(err)
	}
	switch head[0] {
	case varInt16Marker:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, unitrie.WrapMalformed(err)
		}
		return VarInt(binary.LittleEndian.Uint16(buf[:])), nil
	case varInt32Marker:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, unitrie.WrapMalformed(err)
		}
		return VarInt(binary.LittleEndian.Uint32(buf[:])), nil
	case varInt64Marker:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, unitrie.WrapMalformed(err)
		}
		return VarInt(binary.LittleEndian.Uint64(buf[:])), nil
	default:
		return VarInt(head[0]), nil
	}
}
