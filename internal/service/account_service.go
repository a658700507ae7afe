package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"photokeeper/internal/config"
	"photokeeper/internal/identity"
	"photokeeper/internal/models"
)

var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// DeleteRequester is the narrow command interface the lifecycle machine
// emits into when an account is purged. ContentService implements it; the
// lifecycle never touches the ledger directly.
type DeleteRequester interface {
	RequestDelete(ctx context.Context, id identity.ContentID, reason models.DeletionReason) (models.DeletionRecord, error)
}

type AccountService struct {
	accounts Accounts
	content  ContentStore
	deleter  DeleteRequester
	cfg      config.LifecycleConfig
	log      zerolog.Logger
}

func NewAccountService(accounts Accounts, content ContentStore, deleter DeleteRequester, cfg config.LifecycleConfig, log zerolog.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		content:  content,
		deleter:  deleter,
		cfg:      cfg,
		log:      log,
	}
}

// Transition moves an account to target. Forward transitions are strictly
// linear (active → offline → frozen → purged); reactivation back to active
// is legal from offline or frozen. The frozen → purged step bulk-creates
// deletion records for every owned content item before the account row is
// claimed, so a crash mid-way is retried with idempotent requests.
func (s *AccountService) Transition(ctx context.Context, idRaw string, target models.AccountStatus) (models.AccountRecord, error) {
	id, err := identity.NormalizeIdentity(idRaw)
	if err != nil {
		return models.AccountRecord{}, err
	}

	rec, err := s.accounts.Get(ctx, id)
	if err != nil {
		return models.AccountRecord{}, err
	}

	if target == models.AccountStatusActive {
		return s.reactivate(ctx, rec)
	}

	next, ok := rec.Status.Next()
	if !ok || next != target {
		return models.AccountRecord{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, rec.Status, target)
	}

	if target == models.AccountStatusPurged {
		if err := s.requestOwnedDeletions(ctx, id); err != nil {
			return models.AccountRecord{}, err
		}
	}

	grace := s.graceFor(target)
	if err := s.accounts.Transition(ctx, id, rec.Status, target, grace); err != nil {
		return models.AccountRecord{}, err
	}

	s.log.Info().
		Str("identity", id.String()).
		Str("from", string(rec.Status)).
		Str("to", string(target)).
		Msg("account transitioned")

	return s.accounts.Get(ctx, id)
}

// reactivate clears the grace deadline and restores visibility for every
// owned item whose ledger entry has not advanced past pending. Purging or
// purged items stay gone.
func (s *AccountService) reactivate(ctx context.Context, rec models.AccountRecord) (models.AccountRecord, error) {
	switch rec.Status {
	case models.AccountStatusOffline, models.AccountStatusFrozen:
	case models.AccountStatusActive:
		return rec, nil
	default:
		return models.AccountRecord{}, fmt.Errorf("%w: %s -> active", ErrIllegalTransition, rec.Status)
	}

	if err := s.accounts.Transition(ctx, rec.Identity, rec.Status, models.AccountStatusActive, nil); err != nil {
		return models.AccountRecord{}, err
	}

	s.log.Info().Str("identity", rec.Identity.String()).Msg("account reactivated")
	return s.accounts.Get(ctx, rec.Identity)
}

func (s *AccountService) requestOwnedDeletions(ctx context.Context, id identity.Identity) error {
	owned, err := s.content.OwnedIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("list owned content: %w", err)
	}

	for _, contentID := range owned {
		if _, err := s.deleter.RequestDelete(ctx, contentID, models.ReasonAccountPurge); err != nil {
			return fmt.Errorf("request delete %s: %w", contentID, err)
		}
	}

	s.log.Info().
		Str("identity", id.String()).
		Int("items", len(owned)).
		Msg("account purge requested owned deletions")
	return nil
}

func (s *AccountService) graceFor(target models.AccountStatus) *time.Time {
	var d time.Duration
	switch target {
	case models.AccountStatusOffline:
		d = s.cfg.OfflineGrace
	case models.AccountStatusFrozen:
		d = s.cfg.FrozenGrace
	default:
		return nil
	}
	t := time.Now().UTC().Add(d)
	return &t
}
