package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"photokeeper/internal/cache"
	"photokeeper/internal/config"
	"photokeeper/internal/identity"
	"photokeeper/internal/models"
	"photokeeper/internal/repository"
	"photokeeper/internal/storage"
)

var (
	// ErrNotFound covers both items that never existed and items whose
	// ledger entry has left none; callers cannot tell the two apart.
	ErrNotFound = errors.New("content not found")

	ErrAccessDenied = errors.New("access denied")
)

// ContentStore is the metadata slice the service needs.
type ContentStore interface {
	Create(ctx context.Context, item models.ContentItem) error
	Get(ctx context.Context, id identity.ContentID) (models.ContentItem, error)
	OwnedIDs(ctx context.Context, owner identity.Identity) ([]identity.ContentID, error)
}

// Ledger is the deletion-intent slice. It is authoritative for visibility:
// any entry, terminal or not, makes the item invisible.
type Ledger interface {
	RequestDelete(ctx context.Context, contentID identity.ContentID, reason models.DeletionReason) (models.DeletionRecord, error)
	HasEntry(ctx context.Context, contentID identity.ContentID) (bool, error)
}

type Accounts interface {
	Ensure(ctx context.Context, id identity.Identity) error
	Get(ctx context.Context, id identity.Identity) (models.AccountRecord, error)
	Transition(ctx context.Context, id identity.Identity, from, to models.AccountStatus, grace *time.Time) error
}

type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type URLIssuer interface {
	IssueReadURL(ctx context.Context, key string, public bool) (string, error)
}

// Authorizer is the external read-authorization decision, consumed here,
// never computed.
type Authorizer interface {
	CanRead(ctx context.Context, requester identity.Identity, item models.ContentItem, owner models.AccountRecord) (bool, error)
}

type UploadInput struct {
	Owner     string // raw identity as supplied by auth
	Data      []byte
	Thumbnail []byte // optional pre-rendered variant
	Format    string
	Public    bool
}

type ContentService struct {
	store    ContentStore
	ledger   Ledger
	accounts Accounts
	blobs    BlobWriter
	issuer   URLIssuer
	authz    Authorizer
	rdb      *redis.Client // nil disables caching and purge nudges
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewContentService(store ContentStore, ledger Ledger, accounts Accounts, blobs BlobWriter, issuer URLIssuer, authz Authorizer, rdb *redis.Client, cfg *config.AppConfig, log zerolog.Logger) *ContentService {
	return &ContentService{
		store:    store,
		ledger:   ledger,
		accounts: accounts,
		blobs:    blobs,
		issuer:   issuer,
		authz:    authz,
		rdb:      rdb,
		cfg:      cfg,
		log:      log,
	}
}

// Upload stores the bytes for a new content item and creates its metadata
// row. The content id is minted here; the derived key layout guarantees it
// can never collide with any other item's objects.
func (s *ContentService) Upload(ctx context.Context, input UploadInput) (identity.ContentID, error) {
	owner, err := identity.NormalizeIdentity(input.Owner)
	if err != nil {
		return "", err
	}
	if len(input.Data) == 0 {
		return "", errors.New("empty upload")
	}

	id := identity.NewContentID()

	key, err := storage.DeriveKey(owner, id, storage.VariantOriginal, input.Format)
	if err != nil {
		return "", err
	}
	contentType := "image/" + input.Format

	if err := s.blobs.Put(ctx, key, input.Data, contentType); err != nil {
		return "", fmt.Errorf("put original: %w", err)
	}

	if len(input.Thumbnail) > 0 {
		thumbKey, err := storage.DeriveKey(owner, id, storage.VariantThumbnail, input.Format)
		if err != nil {
			return "", err
		}
		if err := s.blobs.Put(ctx, thumbKey, input.Thumbnail, contentType); err != nil {
			return "", fmt.Errorf("put thumbnail: %w", err)
		}
	}

	item := models.ContentItem{
		ID:           id,
		Owner:        owner,
		Format:       input.Format,
		SizeBytes:    int64(len(input.Data)),
		Public:       input.Public,
		HasThumbnail: len(input.Thumbnail) > 0,
		Status:       models.ContentStatusActive,
	}
	if err := s.accounts.Ensure(ctx, owner); err != nil {
		return "", fmt.Errorf("ensure account: %w", err)
	}
	if err := s.store.Create(ctx, item); err != nil {
		return "", fmt.Errorf("save metadata: %w", err)
	}

	s.log.Info().
		Str("content_id", id.String()).
		Str("owner", owner.String()).
		Bool("public", input.Public).
		Msg("content uploaded")

	return id, nil
}

// GetReadURL resolves a read request to a signed (or public) URL. The
// ledger is re-checked on every access: once an entry exists the item is
// gone from the caller's point of view, no matter what the blob store
// still holds.
func (s *ContentService) GetReadURL(ctx context.Context, requesterRaw, contentIDRaw string, variant storage.Variant) (string, error) {
	requester, err := identity.NormalizeIdentity(requesterRaw)
	if err != nil {
		return "", err
	}
	id, err := identity.NormalizeContentID(contentIDRaw)
	if err != nil {
		return "", err
	}

	item, err := s.store.Get(ctx, id)
	if err != nil {
		return "", ErrNotFound
	}

	visible, err := s.visible(ctx, id)
	if err != nil {
		return "", err
	}
	if !visible {
		return "", ErrNotFound
	}

	// A variant that was never stored does not exist; signing its derived
	// key would hand out a URL that 404s at the blob store.
	if variant == storage.VariantThumbnail && !item.HasThumbnail {
		return "", ErrNotFound
	}

	owner, err := s.ownerRecord(ctx, item.Owner)
	if err != nil {
		return "", err
	}

	allowed, err := s.authz.CanRead(ctx, requester, item, owner)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", ErrAccessDenied
	}

	key, err := storage.DeriveKey(item.Owner, item.ID, variant, item.Format)
	if err != nil {
		return "", err
	}

	// Public delivery only while the owner is in good standing; an offline
	// or frozen account demotes everything to signed, owner-only reads.
	public := item.Public && owner.Status == models.AccountStatusActive

	return s.issuer.IssueReadURL(ctx, key, public)
}

// Delete records deletion intent. Asynchronous: physical removal is the
// collector's job, but the item is invisible from this moment on.
func (s *ContentService) Delete(ctx context.Context, ownerRaw, contentIDRaw string) (models.DeletionRecord, error) {
	owner, err := identity.NormalizeIdentity(ownerRaw)
	if err != nil {
		return models.DeletionRecord{}, err
	}
	id, err := identity.NormalizeContentID(contentIDRaw)
	if err != nil {
		return models.DeletionRecord{}, err
	}

	item, err := s.store.Get(ctx, id)
	if err != nil {
		return models.DeletionRecord{}, ErrNotFound
	}
	if item.Owner != owner {
		return models.DeletionRecord{}, ErrAccessDenied
	}

	return s.RequestDelete(ctx, id, models.ReasonOwnerRequest)
}

// RequestDelete is the narrow command surface the account lifecycle emits
// into. Idempotent: repeated calls return the existing live entry.
func (s *ContentService) RequestDelete(ctx context.Context, id identity.ContentID, reason models.DeletionReason) (models.DeletionRecord, error) {
	if !reason.Valid() {
		return models.DeletionRecord{}, fmt.Errorf("unknown deletion reason %q", reason)
	}

	rec, err := s.ledger.RequestDelete(ctx, id, reason)
	if err != nil {
		return models.DeletionRecord{}, err
	}

	s.invalidateVisibility(ctx, id)
	s.nudgeCollector(ctx, rec)

	return rec, nil
}

// visible consults the short-lived cache before the ledger. Only the
// positive verdict is cached, and deletes remove the key, so a read right
// after a delete always sees the ledger.
func (s *ContentService) visible(ctx context.Context, id identity.ContentID) (bool, error) {
	if s.rdb != nil {
		if val, err := s.rdb.Get(ctx, cache.VisibilityKey(id.String())).Result(); err == nil && val == "1" {
			return true, nil
		}
	}

	has, err := s.ledger.HasEntry(ctx, id)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	if s.rdb != nil {
		ttl := s.cfg.Cache.VisibilityTTL
		if ttl <= 0 || ttl > time.Minute {
			ttl = time.Minute
		}
		if err := s.rdb.Set(ctx, cache.VisibilityKey(id.String()), "1", ttl).Err(); err != nil {
			s.log.Warn().Err(err).Str("content_id", id.String()).Msg("visibility cache set failed")
		}
	}
	return true, nil
}

func (s *ContentService) invalidateVisibility(ctx context.Context, id identity.ContentID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cache.VisibilityKey(id.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("content_id", id.String()).Msg("visibility cache invalidation failed")
	}
}

// nudgeCollector is best-effort; a lost nudge only delays the purge until
// the next scheduled sweep.
func (s *ContentService) nudgeCollector(ctx context.Context, rec models.DeletionRecord) {
	if s.rdb == nil {
		return
	}
	_, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.GC.NudgeStream,
		Values: map[string]any{
			"type":      "purge",
			"entryId":   rec.ID,
			"contentId": rec.ContentID.String(),
		},
	}).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("entry_id", rec.ID).Msg("purge nudge failed")
	}
}

func (s *ContentService) ownerRecord(ctx context.Context, owner identity.Identity) (models.AccountRecord, error) {
	rec, err := s.accounts.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			// Uploads predating lifecycle tracking; treat as active.
			return models.AccountRecord{
				Identity: owner,
				Status:   models.AccountStatusActive,
			}, nil
		}
		return models.AccountRecord{}, err
	}
	return rec, nil
}
