package models

import (
	"time"

	"photokeeper/internal/identity"
)

type DeletionStatus string

const (
	DeletionStatusPending DeletionStatus = "pending"
	DeletionStatusPurging DeletionStatus = "purging"
	DeletionStatusPurged  DeletionStatus = "purged"
	DeletionStatusFailed  DeletionStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s DeletionStatus) Terminal() bool {
	return s == DeletionStatusPurged
}

type DeletionReason string

const (
	ReasonOwnerRequest   DeletionReason = "owner_request"
	ReasonAccountPurge   DeletionReason = "account_purge"
	ReasonAdminTakedown  DeletionReason = "admin_takedown"
	ReasonRetentionLapse DeletionReason = "retention_lapse"
)

func (r DeletionReason) Valid() bool {
	switch r {
	case ReasonOwnerRequest, ReasonAccountPurge, ReasonAdminTakedown, ReasonRetentionLapse:
		return true
	}
	return false
}

// DeletionRecord tracks deletion intent for one content item. Reaching
// purged means both the bytes and the metadata row are gone. A failed
// record with a retry deadline re-enters pending on the next sweep; a
// failed record without one has exhausted its retries and waits for review.
type DeletionRecord struct {
	ID          string
	ContentID   identity.ContentID
	Status      DeletionStatus
	Reason      DeletionReason
	Attempts    int
	LastError   string
	NextRetryAt *time.Time
	RequestedAt time.Time
	UpdatedAt   time.Time
}
