package trie

import (
	"io"

	"github.com/rootchain/unitrie"
)

// EncodePathInto writes the sharedPath per §4.B: a one-byte length tag
// (short form for the common small and mid-range lengths, 0xff + VarInt
// for everything else) followed by the packed path bytes. Called only
// when the path is non-empty — the enclosing node header's
// sharedPrefixPresent flag governs the zero-length omission.
func EncodePathInto(w io.Writer, path KeySlice) error {
	unitrie.Assert(path.Length() > 0, "EncodePathInto: path must be non-empty; omission is governed by the caller's flag")
	l := path.Length()
	var tag byte
	var extra []byte
	switch {
	case l <= 32:
		tag = byte(l - 1)
	case l >= 160 && l <= 382:
		tag = byte(l - 128)
	default:
		tag = 255
		extra = VarInt(l).Encode()
	}
	if _, err := w.Write([]byte{tag}); err != nil {
		return err
	}
	if extra != nil {
		if _, err := w.Write(extra); err != nil {
			return err
		}
	}
	_, err := w.Write(path.Encode())
	return err
}

// DecodePathFrom reads a sharedPath written by EncodePathInto.
func DecodePathFrom(r io.Reader) (KeySlice, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return KeySlice{}, unitrie.WrapMalformed(err)
	}
	tag := tagBuf[0]
	var l int
	switch {
	case tag <= 31:
		l = int(tag) + 1
	case tag <= 254:
		l = int(tag) + 128
	default:
		vi, err := DecodeVarInt(r)
		if err != nil {
			return KeySlice{}, err
		}
		l = int(vi)
	}
	nbytes := (l + 7) / 8
	buf := make([]byte, nbytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return KeySlice{}, unitrie.WrapMalformed(err)
	}
	return KeySlice{bytes: buf, offset: 0, length: l}, nil
}
