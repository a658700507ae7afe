package gc

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"photokeeper/internal/identity"
	"photokeeper/internal/models"
	"photokeeper/internal/repository"
	"photokeeper/internal/storage"
)

// memLedger mirrors the SQL ledger's guarded transitions under a mutex, so
// the optimistic-lock semantics the collector relies on hold in tests too.
type memLedger struct {
	mu      sync.Mutex
	records map[string]*models.DeletionRecord
	now     func() time.Time
}

func newMemLedger(now func() time.Time) *memLedger {
	return &memLedger{
		records: make(map[string]*models.DeletionRecord),
		now:     now,
	}
}

func (m *memLedger) add(contentID identity.ContentID) models.DeletionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := models.DeletionRecord{
		ID:          ksuid.New().String(),
		ContentID:   contentID,
		Status:      models.DeletionStatusPending,
		Reason:      models.ReasonOwnerRequest,
		RequestedAt: m.now(),
		UpdatedAt:   m.now(),
	}
	m.records[rec.ID] = &rec
	return rec
}

func (m *memLedger) get(id string) models.DeletionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *memLedger) DuePending(_ context.Context, limit int) ([]models.DeletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeletionRecord
	for _, rec := range m.records {
		if rec.Status == models.DeletionStatusPending && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memLedger) RequeueDueFailed(_ context.Context, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if n >= limit {
			break
		}
		if rec.Status == models.DeletionStatusFailed && rec.NextRetryAt != nil && !rec.NextRetryAt.After(m.now()) {
			rec.Status = models.DeletionStatusPending
			rec.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *memLedger) MarkPurging(_ context.Context, id string) error {
	return m.transition(id, models.DeletionStatusPending, models.DeletionStatusPurging)
}

func (m *memLedger) MarkPurged(_ context.Context, id string) error {
	return m.transition(id, models.DeletionStatusPurging, models.DeletionStatusPurged)
}

func (m *memLedger) transition(id string, from, to models.DeletionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Status != from {
		return repository.ErrConflict
	}
	rec.Status = to
	rec.UpdatedAt = m.now()
	return nil
}

func (m *memLedger) MarkFailed(_ context.Context, id string, lastError string, nextRetryAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Status != models.DeletionStatusPurging {
		return repository.ErrConflict
	}
	rec.Status = models.DeletionStatusFailed
	rec.Attempts++
	rec.LastError = lastError
	rec.NextRetryAt = nextRetryAt
	rec.UpdatedAt = m.now()
	return nil
}

func (m *memLedger) LiveByContentID(_ context.Context, contentID identity.ContentID) (models.DeletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ContentID == contentID && !rec.Status.Terminal() {
			return *rec, nil
		}
	}
	return models.DeletionRecord{}, repository.ErrLedgerEntryNotFound
}

func (m *memLedger) HasEntry(_ context.Context, contentID identity.ContentID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ContentID == contentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) Escalated(_ context.Context, limit int) ([]models.DeletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeletionRecord
	for _, rec := range m.records {
		if rec.Status == models.DeletionStatusFailed && rec.NextRetryAt == nil && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type memContent struct {
	mu    sync.Mutex
	items map[identity.ContentID]models.ContentItem
}

func newMemContent() *memContent {
	return &memContent{items: make(map[identity.ContentID]models.ContentItem)}
}

func (m *memContent) put(item models.ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *memContent) Get(_ context.Context, id identity.ContentID) (models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return models.ContentItem{}, repository.ErrContentNotFound
	}
	return item, nil
}

func (m *memContent) Exists(_ context.Context, id identity.ContentID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok, nil
}

func (m *memContent) Remove(_ context.Context, id identity.ContentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failing map[string]bool
	deletes int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		objects: make(map[string][]byte),
		failing: make(map[string]bool),
	}
}

func (m *memBlobs) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memBlobs) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memBlobs) failKey(key string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[key] = fail
}

func (m *memBlobs) deleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

// Delete is idempotent, like the real blob store: missing keys succeed.
func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[key] {
		return storage.ErrUnavailable
	}
	m.deletes++
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memBlobs) Move(_ context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[src]
	if !ok {
		return storage.ErrUnavailable
	}
	m.objects[dst] = data
	delete(m.objects, src)
	return nil
}

type memQuarantine struct {
	mu      sync.Mutex
	records map[string]models.QuarantineRecord // by original key
}

func newMemQuarantine() *memQuarantine {
	return &memQuarantine{records: make(map[string]models.QuarantineRecord)}
}

func (m *memQuarantine) Add(_ context.Context, originalKey, quarantineKey string, canDeleteAt time.Time) (models.QuarantineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[originalKey]; ok {
		return rec, nil
	}
	rec := models.QuarantineRecord{
		ID:            ksuid.New().String(),
		OriginalKey:   originalKey,
		QuarantineKey: quarantineKey,
		QuarantinedAt: canDeleteAt.Add(-time.Hour), // not asserted on
		CanDeleteAt:   canDeleteAt,
	}
	m.records[originalKey] = rec
	return rec, nil
}

func (m *memQuarantine) All(_ context.Context, limit int) ([]models.QuarantineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QuarantineRecord
	for _, rec := range m.records {
		if len(out) >= limit {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memQuarantine) Due(_ context.Context, now time.Time, limit int) ([]models.QuarantineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QuarantineRecord
	for _, rec := range m.records {
		if !rec.CanDeleteAt.After(now) && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memQuarantine) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.records {
		if rec.ID == id {
			delete(m.records, key)
		}
	}
	return nil
}

func (m *memQuarantine) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
