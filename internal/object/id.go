package object

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// ID identifies an immutable object in the store. It is the base32 multibase
// form of a CIDv1 computed over the object's canonical encoding. The store
// assigns IDs; callers never choose them. The zero value means "no object".
type ID string

// ComputeID hashes canonical object bytes into an ID.
func ComputeID(data []byte) (ID, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hashing object: %w", err)
	}
	c := gocid.NewCidV1(gocid.DagJSON, mh)
	encoded, err := multibase.Encode(multibase.Base32, c.Bytes())
	if err != nil {
		return "", fmt.Errorf("encoding object id: %w", err)
	}
	return ID(encoded), nil
}

// ParseID validates that s is a well-formed ID.
func ParseID(s string) (ID, error) {
	_, cidBytes, err := multibase.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decoding object id %q: %w", s, err)
	}
	if _, err := gocid.Cast(cidBytes); err != nil {
		return "", fmt.Errorf("invalid object id %q: %w", s, err)
	}
	return ID(s), nil
}

func (id ID) String() string {
	return string(id)
}

// Short returns a truncated form for log and CLI output.
func (id ID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ""
}
