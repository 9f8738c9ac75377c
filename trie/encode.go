package trie

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"

	"github.com/rootchain/unitrie"
)

// flag bits (spec §4.F), MSB = bit 7.
const (
	flagVersion2      = 1 << 7
	flagVersion1      = 1 << 6
	flagHasLongValue  = 1 << 5
	flagSharedPrefix  = 1 << 4
	flagLeftPresent   = 1 << 3
	flagRightPresent  = 1 << 2
	flagLeftEmbedded  = 1 << 1
	flagRightEmbedded = 1 << 0
)

// emptyHash is the Keccak-256 of the canonical RLP encoding of the empty
// byte string — the hash of the empty trie (spec §4.E, scenario S1).
var emptyHash []byte

func init() {
	b, err := rlp.EncodeToBytes([]byte{})
	if err != nil {
		panic(err)
	}
	emptyHash = keccak256(b)
}

// EmptyHash returns the hash of the empty trie.
func EmptyHash() []byte {
	out := make([]byte, len(emptyHash))
	copy(out, emptyHash)
	return out
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Hash returns the node's cached Keccak-256 hash under its own version's
// format, computing it if necessary.
func (n *Node) Hash() []byte {
	if n.hash != nil {
		return n.hash
	}
	if n.IsEmptyTrie() {
		n.hash = EmptyHash()
		return n.hash
	}
	enc, err := n.Encode()
	unitrie.Assert(err == nil, "Hash: encode failed on an in-memory node: %v", err)
	n.hash = keccak256(enc)
	return n.hash
}

// HashLegacy returns the node's cached Keccak-256 hash under the v0
// format, for historical root recomputation. Hash-only children are
// fetched through store as needed.
func (n *Node) HashLegacy(store NodeStore, isSecure bool) ([]byte, error) {
	if n.hashLegacy != nil {
		return n.hashLegacy, nil
	}
	if n.IsEmptyTrie() {
		n.hashLegacy = EmptyHash()
		return n.hashLegacy, nil
	}
	enc, err := n.encodeLegacy(store, isSecure)
	if err != nil {
		return nil, err
	}
	n.hashLegacy = keccak256(enc)
	return n.hashLegacy, nil
}

// EncodedSize returns the byte length of the node's v1/v2 encoding,
// computing and caching it if necessary.
func (n *Node) EncodedSize() int {
	enc, err := n.Encode()
	unitrie.Assert(err == nil, "EncodedSize: encode failed on an in-memory node: %v", err)
	return len(enc)
}

// Encode returns the node's v1/v2 serialization (spec §4.F), computing and
// caching it on first call. Never consults the external store: a node's
// own encoding only ever needs its children's references (hash or
// embedded bytes), never their fetched bodies (serialization invariant,
// spec §4.F).
func (n *Node) Encode() ([]byte, error) {
	if n.encoded != nil {
		return n.encoded, nil
	}

	var flags byte
	switch n.version {
	case VersionRent:
		flags |= flagVersion2
	case VersionPathCompressed:
		flags |= flagVersion1
	default:
		return nil, xerrorsMalformed("Encode: node has no v1/v2 version set")
	}

	hasLongValue := n.HasLongValue()
	if hasLongValue {
		flags |= flagHasLongValue
	}
	sharedPrefixPresent := n.sharedPath.Length() > 0
	if sharedPrefixPresent {
		flags |= flagSharedPrefix
	}
	if !n.left.IsEmpty() {
		flags |= flagLeftPresent
		if n.left.IsEmbedded() {
			flags |= flagLeftEmbedded
		}
	}
	if !n.right.IsEmpty() {
		flags |= flagRightPresent
		if n.right.IsEmbedded() {
			flags |= flagRightEmbedded
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(flags)

	if flags&flagVersion2 != 0 {
		unitrie.Assert(n.rentTime != NoRent, "Encode: v2 node must carry a real rent timestamp")
		var rb [8]byte
		binary.BigEndian.PutUint64(rb[:], uint64(n.rentTime))
		buf.Write(rb[:])
	}

	if sharedPrefixPresent {
		if err := EncodePathInto(&buf, n.sharedPath); err != nil {
			return nil, err
		}
	}

	if err := encodeChildRef(&buf, n.left); err != nil {
		return nil, err
	}
	if err := encodeChildRef(&buf, n.right); err != nil {
		return nil, err
	}

	if !n.left.IsEmpty() || !n.right.IsEmpty() {
		buf.Write(VarInt(n.childrenSize).Encode())
	}

	if hasLongValue {
		vh := n.ValueHash()
		unitrie.Assert(len(vh) == 32, "Encode: long value hash must be 32 bytes")
		buf.Write(vh)
		buf.Write(uint24Encode(n.valueLength))
	} else {
		if n.value != nil {
			buf.Write(n.value)
		}
	}

	n.encoded = buf.Bytes()
	return n.encoded, nil
}

func encodeChildRef(buf *bytes.Buffer, r NodeReference) error {
	if r.IsEmpty() {
		return nil
	}
	if r.IsEmbedded() {
		enc, err := r.resolved.Encode()
		if err != nil {
			return err
		}
		if len(enc) > 255 {
			return xerrorsMalformed("encodeChildRef: embedded child exceeds 255-byte length prefix")
		}
		buf.WriteByte(byte(len(enc)))
		buf.Write(enc)
		return nil
	}
	h := r.Hash()
	unitrie.Assert(len(h) == 32, "encodeChildRef: hash-only reference must carry a 32-byte hash")
	buf.Write(h)
	return nil
}

func uint24Encode(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

func uint24Decode(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Decode parses a node from its v0, v1, or v2 serialization (spec §4.F).
func Decode(raw []byte) (*Node, error) {
	if len(raw) == 0 {
		return nil, xerrorsMalformed("Decode: empty buffer")
	}
	if raw[0] == Arity {
		return decodeLegacy(raw)
	}
	return decodeV(raw)
}

func decodeV(raw []byte) (*Node, error) {
	flags := raw[0]
	r := bytes.NewReader(raw[1:])

	var version byte
	var rentTime int64 = NoRent
	switch {
	case flags&flagVersion2 != 0 && flags&flagVersion1 != 0:
		return nil, xerrorsMalformed("Decode: both version marker bits set")
	case flags&flagVersion2 != 0:
		version = VersionRent
		var rb [8]byte
		if _, err := readFull(r, rb[:]); err != nil {
			return nil, err
		}
		rentTime = int64(binary.BigEndian.Uint64(rb[:]))
	case flags&flagVersion1 != 0:
		version = VersionPathCompressed
	default:
		return nil, xerrorsMalformed("Decode: no version marker bit set")
	}

	sharedPath := KeySliceEmpty()
	if flags&flagSharedPrefix != 0 {
		sp, err := DecodePathFrom(r)
		if err != nil {
			return nil, err
		}
		sharedPath = sp
	}

	left, err := decodeChildRef(r, flags&flagLeftPresent != 0, flags&flagLeftEmbedded != 0)
	if err != nil {
		return nil, err
	}
	right, err := decodeChildRef(r, flags&flagRightPresent != 0, flags&flagRightEmbedded != 0)
	if err != nil {
		return nil, err
	}

	var childrenSize uint64
	if flags&flagLeftPresent != 0 || flags&flagRightPresent != 0 {
		vi, err := DecodeVarInt(r)
		if err != nil {
			return nil, err
		}
		childrenSize = uint64(vi)
	}

	rest, err := readAll(r)
	if err != nil {
		return nil, err
	}

	var value []byte
	var valueLength uint32
	var valueHash []byte
	if flags&flagHasLongValue != 0 {
		if len(rest) != 32+3 {
			return nil, xerrorsMalformed("Decode: malformed long-value trailer")
		}
		valueHash = append([]byte(nil), rest[:32]...)
		valueLength = uint24Decode(rest[32:35])
	} else {
		value = append([]byte(nil), rest...)
		valueLength = uint32(len(value))
	}

	n := &Node{
		sharedPath:   sharedPath,
		value:        value,
		valueLength:  valueLength,
		valueHash:    valueHash,
		left:         left,
		right:        right,
		childrenSize: childrenSize,
		version:      version,
		rentTime:     rentTime,
	}
	return n, nil
}

func decodeChildRef(r *bytes.Reader, present, embedded bool) (NodeReference, error) {
	if !present {
		return NodeReferenceEmpty(), nil
	}
	if embedded {
		var lb [1]byte
		if _, err := readFull(r, lb[:]); err != nil {
			return NodeReference{}, err
		}
		body := make([]byte, lb[0])
		if _, err := readFull(r, body); err != nil {
			return NodeReference{}, err
		}
		child, err := Decode(body)
		if err != nil {
			return NodeReference{}, err
		}
		return NodeReferenceToNode(child), nil
	}
	hash := make([]byte, 32)
	if _, err := readFull(r, hash); err != nil {
		return NodeReference{}, err
	}
	return NodeReferenceToHash(hash), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil || n != len(buf) {
		return n, xerrorsMalformed("Decode: truncated buffer")
	}
	return n, nil
}

func readAll(r *bytes.Reader) ([]byte, error) {
	out := make([]byte, r.Len())
	if _, err := r.Read(out); err != nil && r.Len() != 0 {
		return nil, xerrorsMalformed("Decode: failed reading value region")
	}
	return out, nil
}

// --- v0 legacy ---

const (
	legacyFlagIsSecure   = 1 << 0
	legacyFlagHasLongVal = 1 << 1
	legacyBhashLeft      = 1 << 0
	legacyBhashRight     = 1 << 1
)

func (n *Node) encodeLegacy(store NodeStore, isSecure bool) ([]byte, error) {
	var flags byte
	if isSecure {
		flags |= legacyFlagIsSecure
	}
	hasLongValue := n.HasLongValue()
	if hasLongValue {
		flags |= legacyFlagHasLongVal
	}

	var bhashes uint16
	if !n.left.IsEmpty() {
		bhashes |= legacyBhashLeft
	}
	if !n.right.IsEmpty() {
		bhashes |= legacyBhashRight
	}

	var buf bytes.Buffer
	buf.WriteByte(Arity)
	buf.WriteByte(flags)
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], bhashes)
	buf.Write(u16[:])
	binary.BigEndian.PutUint16(u16[:], uint16(n.sharedPath.Length()))
	buf.Write(u16[:])
	buf.Write(n.sharedPath.Encode())

	for _, ref := range [2]*NodeReference{&n.left, &n.right} {
		if ref.IsEmpty() {
			continue
		}
		h, _, err := ref.GetHashLegacy(store, isSecure)
		if err != nil {
			return nil, err
		}
		buf.Write(h)
	}

	if hasLongValue {
		buf.Write(n.ValueHash())
	} else if n.value != nil {
		buf.Write(n.value)
	}

	return buf.Bytes(), nil
}

func decodeLegacy(raw []byte) (*Node, error) {
	if len(raw) < 1+1+2+2 {
		return nil, xerrorsMalformed("decodeLegacy: buffer too short for header")
	}
	flags := raw[1]
	bhashes := binary.BigEndian.Uint16(raw[2:4])
	pathLen := int(binary.BigEndian.Uint16(raw[4:6]))
	off := 6

	pathBytes := (pathLen + 7) / 8
	if off+pathBytes > len(raw) {
		return nil, xerrorsMalformed("decodeLegacy: sharedPath overruns buffer")
	}
	sharedPath := KeySlice{bytes: append([]byte(nil), raw[off:off+pathBytes]...), offset: 0, length: pathLen}
	off += pathBytes

	var left, right NodeReference
	if bhashes&legacyBhashLeft != 0 {
		if off+32 > len(raw) {
			return nil, xerrorsMalformed("decodeLegacy: truncated left hash")
		}
		left = NodeReferenceToHash(append([]byte(nil), raw[off:off+32]...))
		off += 32
	}
	if bhashes&legacyBhashRight != 0 {
		if off+32 > len(raw) {
			return nil, xerrorsMalformed("decodeLegacy: truncated right hash")
		}
		right = NodeReferenceToHash(append([]byte(nil), raw[off:off+32]...))
		off += 32
	}

	var value []byte
	var valueLength uint32
	var valueHash []byte
	if flags&legacyFlagHasLongVal != 0 {
		if off+32 != len(raw) {
			return nil, xerrorsMalformed("decodeLegacy: malformed long-value trailer")
		}
		valueHash = append([]byte(nil), raw[off:off+32]...)
	} else {
		value = append([]byte(nil), raw[off:]...)
		valueLength = uint32(len(value))
	}

	return &Node{
		sharedPath:  sharedPath,
		value:       value,
		valueLength: valueLength,
		valueHash:   valueHash,
		left:        left,
		right:       right,
		version:     VersionLegacy,
		rentTime:    NoRent,
	}, nil
}

func xerrorsMalformed(msg string) error {
	return unitrie.WrapMalformed(errString(msg))
}

type errString string

func (e errString) Error() string { return string(e) }
