// Package gc implements the two background reconciliation cycles: the
// frequent pending-deletion sweep and the infrequent orphan reconciliation.
// Multiple collectors may run concurrently; the atomic pending → purging
// ledger transition is the only concurrency guard, and it is enough.
package gc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"photokeeper/internal/config"
	"photokeeper/internal/identity"
	"photokeeper/internal/models"
	"photokeeper/internal/repository"
	"photokeeper/internal/storage"
)

// Ledger is the collector's slice of the deletion ledger.
type Ledger interface {
	DuePending(ctx context.Context, limit int) ([]models.DeletionRecord, error)
	RequeueDueFailed(ctx context.Context, limit int) (int, error)
	MarkPurging(ctx context.Context, id string) error
	MarkPurged(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt *time.Time) error
	LiveByContentID(ctx context.Context, contentID identity.ContentID) (models.DeletionRecord, error)
	HasEntry(ctx context.Context, contentID identity.ContentID) (bool, error)
	Escalated(ctx context.Context, limit int) ([]models.DeletionRecord, error)
}

type ContentStore interface {
	Get(ctx context.Context, id identity.ContentID) (models.ContentItem, error)
	Exists(ctx context.Context, id identity.ContentID) (bool, error)
	Remove(ctx context.Context, id identity.ContentID) error
}

type Blobs interface {
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Move(ctx context.Context, src, dst string) error
}

type Quarantine interface {
	Add(ctx context.Context, originalKey, quarantineKey string, canDeleteAt time.Time) (models.QuarantineRecord, error)
	All(ctx context.Context, limit int) ([]models.QuarantineRecord, error)
	Due(ctx context.Context, now time.Time, limit int) ([]models.QuarantineRecord, error)
	Remove(ctx context.Context, id string) error
}

type Collector struct {
	ledger     Ledger
	content    ContentStore
	blobs      Blobs
	quarantine Quarantine
	cfg        config.GCConfig
	qPrefix    string
	log        zerolog.Logger
	now        func() time.Time
}

func NewCollector(ledger Ledger, content ContentStore, blobs Blobs, quarantine Quarantine, cfg config.GCConfig, quarantinePrefix string, log zerolog.Logger) *Collector {
	return &Collector{
		ledger:     ledger,
		content:    content,
		blobs:      blobs,
		quarantine: quarantine,
		cfg:        cfg,
		qPrefix:    quarantinePrefix,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SweepPending runs one sweep batch: due failed entries re-enter pending,
// then each pending entry is claimed and purged. The batch is interruptible
// between entries; partial progress is normal and no transaction spans the
// batch.
func (c *Collector) SweepPending(ctx context.Context) error {
	requeued, err := c.ledger.RequeueDueFailed(ctx, c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("requeue failed entries: %w", err)
	}
	if requeued > 0 {
		c.log.Info().Int("count", requeued).Msg("failed entries re-entered pending")
	}

	pending, err := c.ledger.DuePending(ctx, c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.processEntry(ctx, entry)
	}

	c.reportEscalated(ctx)
	return nil
}

// SweepOne handles a purge nudge for a single content item.
func (c *Collector) SweepOne(ctx context.Context, contentID identity.ContentID) error {
	entry, err := c.ledger.LiveByContentID(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrLedgerEntryNotFound) {
			return nil
		}
		return err
	}
	if entry.Status != models.DeletionStatusPending {
		return nil
	}
	c.processEntry(ctx, entry)
	return nil
}

// processEntry claims one pending entry and drives it to a terminal or
// retryable state. Losing the claim to another worker is expected and not
// an error.
func (c *Collector) processEntry(ctx context.Context, entry models.DeletionRecord) {
	if err := c.ledger.MarkPurging(ctx, entry.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return // another worker owns it
		}
		c.log.Error().Err(err).Str("entry_id", entry.ID).Msg("claim failed")
		return
	}

	if err := c.purge(ctx, entry); err != nil {
		c.fail(ctx, entry, err)
		return
	}

	if err := c.ledger.MarkPurged(ctx, entry.ID); err != nil {
		c.log.Error().Err(err).Str("entry_id", entry.ID).Msg("mark purged failed")
		return
	}
	if err := c.content.Remove(ctx, entry.ContentID); err != nil {
		// Entry is terminal and the row stays invisible through the
		// ledger; the stray row needs operator cleanup, not re-deletion.
		c.log.Error().Err(err).Str("content_id", entry.ContentID.String()).Msg("remove metadata row failed")
	}

	c.log.Info().
		Str("entry_id", entry.ID).
		Str("content_id", entry.ContentID.String()).
		Str("reason", string(entry.Reason)).
		Msg("content purged")
}

// purge removes every storage variant. Blob deletion is idempotent, so a
// retry after a partial failure re-deletes already-gone keys harmlessly.
func (c *Collector) purge(ctx context.Context, entry models.DeletionRecord) error {
	item, err := c.content.Get(ctx, entry.ContentID)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			// Row already gone; any stray bytes are orphans for
			// reconciliation to find.
			return nil
		}
		return err
	}

	for _, variant := range storage.Variants {
		key, err := storage.DeriveKey(item.Owner, item.ID, variant, item.Format)
		if err != nil {
			return err
		}
		if err := c.blobs.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// fail records a failed attempt. Within the retry budget the entry gets a
// backoff deadline and re-enters pending later; past the budget it stays
// failed with no deadline and is escalated for review.
func (c *Collector) fail(ctx context.Context, entry models.DeletionRecord, cause error) {
	attempt := entry.Attempts + 1

	var nextRetry *time.Time
	if attempt < c.cfg.MaxAttempts {
		delay := c.cfg.BackoffBase << uint(entry.Attempts)
		t := c.now().Add(delay)
		nextRetry = &t
	}

	if err := c.ledger.MarkFailed(ctx, entry.ID, cause.Error(), nextRetry); err != nil {
		c.log.Error().Err(err).Str("entry_id", entry.ID).Msg("mark failed failed")
		return
	}

	evt := c.log.Warn()
	if nextRetry == nil {
		evt = c.log.Error().Bool("escalated", true)
	}
	evt.Err(cause).
		Str("entry_id", entry.ID).
		Str("content_id", entry.ContentID.String()).
		Int("attempt", attempt).
		Msg("purge attempt failed")
}

func (c *Collector) reportEscalated(ctx context.Context) {
	escalated, err := c.ledger.Escalated(ctx, c.cfg.BatchSize)
	if err != nil {
		c.log.Error().Err(err).Msg("list escalated failed")
		return
	}
	for _, entry := range escalated {
		c.log.Error().
			Str("entry_id", entry.ID).
			Str("content_id", entry.ContentID.String()).
			Str("last_error", entry.LastError).
			Int("attempts", entry.Attempts).
			Msg("purge exhausted retries, needs review")
	}
}

// ReconcileOrphans runs one reconciliation pass. Phase one quarantines
// blobs with neither a content row nor a ledger entry; phase two restores
// any quarantined blob whose reference has since appeared; phase three
// permanently deletes quarantined blobs whose retention window elapsed
// without the original key reappearing. An orphan is never deleted on
// first sight: a leaked blob is recoverable, a premature delete is not.
func (c *Collector) ReconcileOrphans(ctx context.Context) error {
	for _, prefix := range storage.KeyPrefixes() {
		if err := c.quarantineOrphans(ctx, prefix); err != nil {
			return err
		}
	}
	if err := c.restoreReappeared(ctx); err != nil {
		return err
	}
	return c.purgeQuarantine(ctx)
}

func (c *Collector) quarantineOrphans(ctx context.Context, prefix string) error {
	keys, err := c.blobs.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		parsed, err := storage.ParseKey(key)
		if err != nil {
			// Not one of ours; leave foreign objects alone.
			c.log.Debug().Str("key", key).Msg("skipping unparseable key")
			continue
		}

		referenced, err := c.referenced(ctx, parsed.ContentID)
		if err != nil {
			return err
		}
		if referenced {
			continue
		}

		qKey := c.qPrefix + key
		if _, err := c.quarantine.Add(ctx, key, qKey, c.now().Add(c.cfg.RetentionWindow)); err != nil {
			return fmt.Errorf("record quarantine %s: %w", key, err)
		}
		if err := c.blobs.Move(ctx, key, qKey); err != nil {
			return fmt.Errorf("quarantine %s: %w", key, err)
		}

		c.log.Warn().Str("key", key).Msg("orphan quarantined")
	}
	return nil
}

// restoreReappeared re-checks every quarantine record, not just the due
// ones. A blob quarantined in the window between an upload's object write
// and its metadata row landing must come back on the next pass, while the
// item is active, not once the retention window runs out.
func (c *Collector) restoreReappeared(ctx context.Context) error {
	records, err := c.quarantine.All(ctx, c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list quarantine: %w", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		parsed, err := storage.ParseKey(rec.OriginalKey)
		if err != nil {
			continue
		}
		referenced, err := c.referenced(ctx, parsed.ContentID)
		if err != nil {
			return err
		}
		if !referenced {
			continue
		}
		if err := c.restoreRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) restoreRecord(ctx context.Context, rec models.QuarantineRecord) error {
	if err := c.blobs.Move(ctx, rec.QuarantineKey, rec.OriginalKey); err != nil {
		return fmt.Errorf("restore %s: %w", rec.OriginalKey, err)
	}
	if err := c.quarantine.Remove(ctx, rec.ID); err != nil {
		return err
	}
	c.log.Warn().Str("key", rec.OriginalKey).Msg("quarantined blob reappeared, restored")
	return nil
}

func (c *Collector) purgeQuarantine(ctx context.Context) error {
	due, err := c.quarantine.Due(ctx, c.now(), c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due quarantine: %w", err)
	}

	for _, rec := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Last reappearance check before the irreversible step.
		if parsed, err := storage.ParseKey(rec.OriginalKey); err == nil {
			referenced, err := c.referenced(ctx, parsed.ContentID)
			if err != nil {
				return err
			}
			if referenced {
				if err := c.restoreRecord(ctx, rec); err != nil {
					return err
				}
				continue
			}
		}

		if err := c.blobs.Delete(ctx, rec.QuarantineKey); err != nil {
			return fmt.Errorf("delete quarantined %s: %w", rec.QuarantineKey, err)
		}
		if err := c.quarantine.Remove(ctx, rec.ID); err != nil {
			return err
		}

		c.log.Info().
			Str("key", rec.OriginalKey).
			Time("quarantined_at", rec.QuarantinedAt).
			Msg("quarantined orphan deleted")
	}
	return nil
}

// referenced reports whether a content id still has either an active row
// or a ledger entry; either one keeps its blobs off-limits.
func (c *Collector) referenced(ctx context.Context, id identity.ContentID) (bool, error) {
	exists, err := c.content.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	return c.ledger.HasEntry(ctx, id)
}
