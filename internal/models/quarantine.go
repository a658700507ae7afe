package models

import "time"

// QuarantineRecord tracks an orphaned object that reconciliation moved
// under the quarantine prefix. The object may be permanently deleted only
// after CanDeleteAt, and only if the original key is still unreferenced.
type QuarantineRecord struct {
	ID            string
	OriginalKey   string
	QuarantineKey string
	QuarantinedAt time.Time
	CanDeleteAt   time.Time
}
