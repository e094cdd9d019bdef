// Package cid implements content identifiers: 32-byte SHA-256 digests of the
// canonical binary encoding of an object (prim, node, word, interface, namespace,
// program, or global). Identity is always the raw bytes; CID.String is a
// diagnostic hex form and CID.Short is a cosmetic base58 alias - neither
// participates in equality or in any store lookup.
package cid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Size is the length of a CID in bytes.
const Size = 32

// CID is a content identifier: the SHA-256 hash of an object's canonical encoding.
type CID [Size]byte

// Zero is the all-zero CID, used as a reserved placeholder slot in some
// canonical forms (e.g. the prim tuple's second element).
var Zero CID

// IsZero reports whether c is the all-zero CID.
func (c CID) IsZero() bool { return c == Zero }

// Bytes returns the CID's raw bytes.
func (c CID) Bytes() []byte { return c[:] }

// String returns lowercase hex, for logs and CLI output only.
func (c CID) String() string { return hex.EncodeToString(c[:]) }

// FromBytes builds a CID from a 32-byte slice. Panics if b is not exactly Size
// bytes; callers must validate length before calling (the canonical decoder does
// this explicitly and returns a structural error instead).
func FromBytes(b []byte) CID {
	if len(b) != Size {
		panic("cid: FromBytes requires exactly Size bytes")
	}
	var c CID
	copy(c[:], b)
	return c
}

// Parse decodes a CID from its lowercase hex String form, the inverse of
// String - used by CLI commands that take a CID as a text argument.
func Parse(s string) (CID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return CID{}, err
	}
	if len(b) != Size {
		return CID{}, fmt.Errorf("cid: want %d bytes, got %d", Size, len(b))
	}
	return FromBytes(b), nil
}

// Short returns an 8-byte BLAKE2b-derived digest of the CID re-encoded as
// base58, purely as a compact human-legible alias (e.g. for CLI tables). It is
// never used for identity or store lookups.
func (c CID) Short() string {
	sum := blake2b.Sum256(c[:])
	return EncodeBase58(sum[:8])
}

var canonicalEncMode cbor.EncMode

func init() {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("cid: failed to build canonical CBOR encoder: " + err.Error())
	}
	canonicalEncMode = mode
}

// Encode produces the deterministic canonical CBOR encoding of v. v is expected
// to be a positional array (a []interface{} built by the objects package, never
// a map) so that the encoding is unambiguous regardless of map key ordering.
func Encode(v interface{}) ([]byte, error) {
	return canonicalEncMode.Marshal(v)
}

// Decode decodes canonical CBOR bytes into v.
func Decode(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// Hash computes the CID of already-canonicalized bytes.
func Hash(encoded []byte) CID {
	return sha256.Sum256(encoded)
}

// Of encodes v canonically and returns its CID along with the encoded bytes
// (the caller typically persists both under the returned CID).
func Of(v interface{}) (CID, []byte, error) {
	encoded, err := Encode(v)
	if err != nil {
		return CID{}, nil, err
	}
	return Hash(encoded), encoded, nil
}
