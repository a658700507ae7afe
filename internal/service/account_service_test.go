package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photokeeper/internal/config"
	"photokeeper/internal/identity"
	"photokeeper/internal/models"
)

func newAccountEnv(t *testing.T) (*testEnv, *AccountService) {
	t.Helper()
	env := newTestEnv(t)
	svc := NewAccountService(
		env.accounts,
		env.store,
		env.svc,
		config.LifecycleConfig{OfflineGrace: 30 * 24 * time.Hour, FrozenGrace: 60 * 24 * time.Hour},
		zerolog.Nop(),
	)
	return env, svc
}

func TestTransitionActiveToOfflineStampsGrace(t *testing.T) {
	env, svc := newAccountEnv(t)
	env.upload(t, ownerRaw, false)

	rec, err := svc.Transition(context.Background(), ownerRaw, models.AccountStatusOffline)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusOffline, rec.Status)
	require.NotNil(t, rec.GraceDeadline)
	assert.True(t, rec.GraceDeadline.After(time.Now()))
}

func TestTransitionCannotSkipStates(t *testing.T) {
	env, svc := newAccountEnv(t)
	env.upload(t, ownerRaw, false)

	_, err := svc.Transition(context.Background(), ownerRaw, models.AccountStatusFrozen)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = svc.Transition(context.Background(), ownerRaw, models.AccountStatusPurged)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

// Offline hides content but deletes nothing.
func TestOfflineCreatesNoDeletionRecords(t *testing.T) {
	env, svc := newAccountEnv(t)
	id := env.upload(t, ownerRaw, false)

	_, err := svc.Transition(context.Background(), ownerRaw, models.AccountStatusOffline)
	require.NoError(t, err)
	assert.Equal(t, 0, env.ledger.entryCount(id))
}

func TestPurgeCreatesOneLedgerEntryPerItem(t *testing.T) {
	env, svc := newAccountEnv(t)
	ids := []identity.ContentID{
		env.upload(t, ownerRaw, false),
		env.upload(t, ownerRaw, true),
		env.upload(t, ownerRaw, false),
	}

	ctx := context.Background()
	_, err := svc.Transition(ctx, ownerRaw, models.AccountStatusOffline)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, ownerRaw, models.AccountStatusFrozen)
	require.NoError(t, err)
	rec, err := svc.Transition(ctx, ownerRaw, models.AccountStatusPurged)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusPurged, rec.Status)

	for _, id := range ids {
		assert.Equal(t, 1, env.ledger.entryCount(id))
	}
}

func TestReactivationClearsGraceAndRestoresReads(t *testing.T) {
	env, svc := newAccountEnv(t)
	id := env.upload(t, ownerRaw, true)

	ctx := context.Background()
	_, err := svc.Transition(ctx, ownerRaw, models.AccountStatusOffline)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, ownerRaw, models.AccountStatusFrozen)
	require.NoError(t, err)

	rec, err := svc.Transition(ctx, ownerRaw, models.AccountStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusActive, rec.Status)
	assert.Nil(t, rec.GraceDeadline)

	url, err := env.svc.GetReadURL(ctx, otherRaw, id.String(), "original")
	require.NoError(t, err)
	assert.Contains(t, url, "cdn.example")
}

func TestPurgedAccountCannotReactivate(t *testing.T) {
	env, svc := newAccountEnv(t)
	env.upload(t, ownerRaw, false)

	ctx := context.Background()
	for _, target := range []models.AccountStatus{
		models.AccountStatusOffline,
		models.AccountStatusFrozen,
		models.AccountStatusPurged,
	} {
		_, err := svc.Transition(ctx, ownerRaw, target)
		require.NoError(t, err)
	}

	_, err := svc.Transition(ctx, ownerRaw, models.AccountStatusActive)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestTransitionUnknownAccount(t *testing.T) {
	_, svc := newAccountEnv(t)
	_, err := svc.Transition(context.Background(), otherRaw, models.AccountStatusOffline)
	assert.Error(t, err)
}
