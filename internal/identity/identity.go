// Package identity normalizes the two identifier shapes the system deals
// with: the opaque external account identity and the content item UUID.
// Every other package takes these typed values instead of raw strings.
package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidIdentity  = errors.New("invalid identity")
	ErrInvalidContentID = errors.New("invalid content id")
)

// IdentityLength is fixed by the external auth provider.
const IdentityLength = 28

// Identity is the caller's opaque external account identifier,
// exactly 28 alphanumeric characters.
type Identity string

// ContentID addresses one logical uploaded asset. Canonical lowercase UUIDv4.
type ContentID string

func (i Identity) String() string  { return string(i) }
func (c ContentID) String() string { return string(c) }

// NormalizeIdentity trims surrounding whitespace and validates the result.
// Anything other than exactly 28 alphanumeric characters fails.
func NormalizeIdentity(raw string) (Identity, error) {
	s := strings.TrimSpace(raw)
	if len(s) != IdentityLength {
		return "", ErrInvalidIdentity
	}
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) {
			return "", ErrInvalidIdentity
		}
	}
	return Identity(s), nil
}

// NormalizeContentID validates raw as a canonical UUIDv4 and returns it
// lowercased. The version and variant nibbles are checked explicitly so
// that v1/v5 or non-RFC-4122 UUIDs are rejected even when parseable.
func NormalizeContentID(raw string) (ContentID, error) {
	s := strings.TrimSpace(raw)
	if len(s) != 36 {
		return "", ErrInvalidContentID
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidContentID
	}
	if u.Version() != 4 || u.Variant() != uuid.RFC4122 {
		return "", ErrInvalidContentID
	}
	return ContentID(u.String()), nil
}

// NormalizeOrNewContentID behaves like NormalizeContentID but mints a fresh
// UUIDv4 when raw is empty.
func NormalizeOrNewContentID(raw string) (ContentID, error) {
	if strings.TrimSpace(raw) == "" {
		return NewContentID(), nil
	}
	return NormalizeContentID(raw)
}

// NewContentID mints a fresh content identifier.
func NewContentID() ContentID {
	return ContentID(uuid.NewString())
}

// Valid reports whether the value already satisfies its normal form.
// Components downstream of normalization use this to fail closed instead
// of re-normalizing.
func (i Identity) Valid() bool {
	_, err := NormalizeIdentity(string(i))
	return err == nil && strings.TrimSpace(string(i)) == string(i)
}

func (c ContentID) Valid() bool {
	id, err := NormalizeContentID(string(c))
	return err == nil && id == c
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
