package storage

import (
	"errors"
	"fmt"
	"strings"

	"photokeeper/internal/identity"
)

// Variant selects which derived rendition of a content item a key addresses.
type Variant string

const (
	VariantOriginal  Variant = "original"
	VariantThumbnail Variant = "thumb"
)

// Variants lists every rendition kept per content item.
var Variants = []Variant{VariantOriginal, VariantThumbnail}

var ErrBadKeyInput = errors.New("key derivation: input not normalized")

func (v Variant) valid() bool {
	return v == VariantOriginal || v == VariantThumbnail
}

func (v Variant) category() string {
	if v == VariantThumbnail {
		return "thumbnails"
	}
	return "photos"
}

func (v Variant) suffix() string {
	if v == VariantThumbnail {
		return "_thumb"
	}
	return ""
}

// DeriveKey maps a normalized (identity, content id, variant, format) tuple
// to its object key:
//
//	{category}/{identity}/{content_id}{suffix}.{format}
//
// It is pure and deterministic; collision freedom follows from the content
// id's global uniqueness inside the identity-scoped namespace. Inputs must
// already be normalized — anything else fails closed with ErrBadKeyInput
// rather than being repaired here.
func DeriveKey(owner identity.Identity, id identity.ContentID, v Variant, format string) (string, error) {
	if !owner.Valid() {
		return "", fmt.Errorf("%w: identity %q", ErrBadKeyInput, owner)
	}
	if !id.Valid() {
		return "", fmt.Errorf("%w: content id %q", ErrBadKeyInput, id)
	}
	if !v.valid() {
		return "", fmt.Errorf("%w: variant %q", ErrBadKeyInput, v)
	}
	if !validFormat(format) {
		return "", fmt.Errorf("%w: format %q", ErrBadKeyInput, format)
	}
	return fmt.Sprintf("%s/%s/%s%s.%s", v.category(), owner, id, v.suffix(), format), nil
}

// KeyPrefixes returns the prefixes orphan reconciliation scans.
func KeyPrefixes() []string {
	return []string{"photos/", "thumbnails/"}
}

// ParsedKey is the reverse mapping of DeriveKey, used by reconciliation to
// decide whether a listed object still has an owning row.
type ParsedKey struct {
	Owner     identity.Identity
	ContentID identity.ContentID
	Variant   Variant
}

// ParseKey inverts DeriveKey. Keys that do not match the derived layout
// return an error; reconciliation treats those as foreign objects and
// leaves them alone.
func ParseKey(key string) (ParsedKey, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return ParsedKey{}, fmt.Errorf("parse key %q: want 3 segments", key)
	}
	var v Variant
	switch parts[0] {
	case "photos":
		v = VariantOriginal
	case "thumbnails":
		v = VariantThumbnail
	default:
		return ParsedKey{}, fmt.Errorf("parse key %q: unknown category", key)
	}

	owner, err := identity.NormalizeIdentity(parts[1])
	if err != nil {
		return ParsedKey{}, fmt.Errorf("parse key %q: %w", key, err)
	}

	name := parts[2]
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		name = name[:dot]
	}
	if v == VariantThumbnail {
		trimmed := strings.TrimSuffix(name, "_thumb")
		if trimmed == name {
			return ParsedKey{}, fmt.Errorf("parse key %q: missing thumbnail suffix", key)
		}
		name = trimmed
	}
	id, err := identity.NormalizeContentID(name)
	if err != nil {
		return ParsedKey{}, fmt.Errorf("parse key %q: %w", key, err)
	}

	return ParsedKey{Owner: owner, ContentID: id, Variant: v}, nil
}

func validFormat(format string) bool {
	if len(format) == 0 || len(format) > 5 {
		return false
	}
	for i := 0; i < len(format); i++ {
		b := format[i]
		if b < 'a' || b > 'z' {
			if b < '0' || b > '9' {
				return false
			}
		}
	}
	return true
}
