package models

import (
	"time"

	"photokeeper/internal/identity"
)

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusOffline AccountStatus = "offline"
	AccountStatusFrozen  AccountStatus = "frozen"
	AccountStatusPurged  AccountStatus = "purged"
)

// Next returns the only legal forward transition; the lifecycle is linear
// with no skipping.
func (s AccountStatus) Next() (AccountStatus, bool) {
	switch s {
	case AccountStatusActive:
		return AccountStatusOffline, true
	case AccountStatusOffline:
		return AccountStatusFrozen, true
	case AccountStatusFrozen:
		return AccountStatusPurged, true
	}
	return "", false
}

// AccountRecord mirrors the owning account's lifecycle state. The grace
// deadline governs eligibility for the next forward transition and is
// cleared on reactivation.
type AccountRecord struct {
	Identity        identity.Identity
	Status          AccountStatus
	StatusChangedAt time.Time
	GraceDeadline   *time.Time
}
