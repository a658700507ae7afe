package models

import (
	"time"

	"photokeeper/internal/identity"
)

type ContentStatus string

const (
	ContentStatusActive ContentStatus = "active"
	ContentStatusPurged ContentStatus = "purged"
)

// ContentItem is one logical uploaded asset. Visibility is not stored here:
// the deletion ledger is authoritative for "deleted", and the owner's
// account status governs public reachability.
type ContentItem struct {
	ID           identity.ContentID
	Owner        identity.Identity
	Format       string
	SizeBytes    int64
	Public       bool
	HasThumbnail bool
	Status       ContentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
