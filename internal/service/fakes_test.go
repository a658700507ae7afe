package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"photokeeper/internal/identity"
	"photokeeper/internal/models"
	"photokeeper/internal/repository"
)

type memContent struct {
	mu    sync.Mutex
	items map[identity.ContentID]models.ContentItem
}

func newMemContent() *memContent {
	return &memContent{items: make(map[identity.ContentID]models.ContentItem)}
}

func (m *memContent) Create(_ context.Context, item models.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; ok {
		return fmt.Errorf("duplicate content id %s", item.ID)
	}
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	m.items[item.ID] = item
	return nil
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

func (m *memContent) OwnedIDs(_ context.Context, owner identity.Identity) ([]identity.ContentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []identity.ContentID
	for id, item := range m.items {
		if item.Owner == owner && item.Status == models.ContentStatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries map[identity.ContentID][]models.DeletionRecord
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[identity.ContentID][]models.DeletionRecord)}
}

func (m *memLedger) RequestDelete(_ context.Context, contentID identity.ContentID, reason models.DeletionReason) (models.DeletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.entries[contentID] {
		if !rec.Status.Terminal() {
			return rec, nil
		}
	}
	rec := models.DeletionRecord{
		ID:          ksuid.New().String(),
		ContentID:   contentID,
		Status:      models.DeletionStatusPending,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	m.entries[contentID] = append(m.entries[contentID], rec)
	return rec, nil
}

func (m *memLedger) HasEntry(_ context.Context, contentID identity.ContentID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[contentID]) > 0, nil
}

func (m *memLedger) entryCount(contentID identity.ContentID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[contentID])
}

// setStatus force-sets the single entry for a content id, simulating
// collector progress.
func (m *memLedger) setStatus(contentID identity.ContentID, status models.DeletionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.entries[contentID]
	for i := range recs {
		recs[i].Status = status
	}
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[identity.Identity]models.AccountRecord
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[identity.Identity]models.AccountRecord)}
}

func (m *memAccounts) Ensure(_ context.Context, id identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		m.accounts[id] = models.AccountRecord{
			Identity:        id,
			Status:          models.AccountStatusActive,
			StatusChangedAt: time.Now().UTC(),
		}
	}
	return nil
}

func (m *memAccounts) Get(_ context.Context, id identity.Identity) (models.AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.accounts[id]
	if !ok {
		return models.AccountRecord{}, repository.ErrAccountNotFound
	}
	return rec, nil
}

func (m *memAccounts) Transition(_ context.Context, id identity.Identity, from, to models.AccountStatus, grace *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.accounts[id]
	if !ok || rec.Status != from {
		return repository.ErrConflict
	}
	rec.Status = to
	rec.StatusChangedAt = time.Now().UTC()
	rec.GraceDeadline = grace
	m.accounts[id] = rec
	return nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBlobs) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type fakeIssuer struct{}

func (fakeIssuer) IssueReadURL(_ context.Context, key string, public bool) (string, error) {
	if public {
		return "https://cdn.example/" + key, nil
	}
	return "https://store.example/" + key + "?sig=abc", nil
}
