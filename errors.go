package unitrie

import "golang.org/x/xerrors"

// Error kinds surfaced by the trie core. See spec §7 for the taxonomy:
// decode/constructor paths wrap one of these sentinels so callers can
// match on the kind with errors.Is, while InvariantViolation-class bugs
// are reported through Assert (assert.go) instead of returned errors.
var (
	// ErrMalformedNode: wrong arity byte, unknown version flags, truncated
	// buffer during decode, trailing bytes after the value, or a
	// sharedPath length larger than the remaining buffer.
	ErrMalformedNode = xerrors.New("unitrie: malformed node encoding")

	// ErrInvalidValueLength: stored value length disagrees with the
	// buffer, or value is absent with valueLength > 0 and no valueHash.
	ErrInvalidValueLength = xerrors.New("unitrie: invalid value length")

	// ErrMissingStoreEntry: the external store does not have a required
	// hash.
	ErrMissingStoreEntry = xerrors.New("unitrie: missing store entry")
)

// WrapMalformed wraps err (typically an io error from a truncated buffer)
// as an ErrMalformedNode so callers can match on the sentinel regardless
// of the underlying cause.
func WrapMalformed(err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", err.Error(), ErrMalformedNode)
}

// WrapMissing wraps a hash lookup miss as ErrMissingStoreEntry.
func WrapMissing(hash []byte) error {
	return xerrors.Errorf("hash %x: %w", hash, ErrMissingStoreEntry)
}
