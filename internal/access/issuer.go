// Package access mints read URLs for stored objects. There is no revocation
// list; safety rests on short TTLs for private content and the per-item
// public flag decided at upload time.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photokeeper/internal/config"
)

// ErrSigningUnavailable means the signing infrastructure is down. Fatal
// for the request: a private object is never served through an unsigned
// fallback URL.
var ErrSigningUnavailable = errors.New("signing unavailable")

// ReadSigner is the slice of the blob store the issuer needs.
type ReadSigner interface {
	SignRead(ctx context.Context, key string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

type Issuer struct {
	signer ReadSigner
	cfg    config.SignerConfig
}

func NewIssuer(signer ReadSigner, cfg config.SignerConfig) *Issuer {
	return &Issuer{signer: signer, cfg: cfg}
}

// IssueReadURL returns a URL for key. Public objects get the plain bucket
// URL; private ones get a presigned URL valid for the configured TTL.
func (i *Issuer) IssueReadURL(ctx context.Context, key string, public bool) (string, error) {
	if public {
		return i.signer.PublicURL(key), nil
	}

	ttl := i.cfg.PrivateTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	url, err := i.signer.SignRead(ctx, key, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	return url, nil
}
