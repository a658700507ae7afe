package service

import (
	"context"

	"photokeeper/internal/identity"
	"photokeeper/internal/models"
)

// OwnerOrPublicAuthorizer is the default read policy used when no external
// authorization service is plugged in: owners always read their own items;
// everyone else only reads public items of accounts in good standing.
type OwnerOrPublicAuthorizer struct{}

func (OwnerOrPublicAuthorizer) CanRead(_ context.Context, requester identity.Identity, item models.ContentItem, owner models.AccountRecord) (bool, error) {
	if requester == item.Owner {
		return true, nil
	}
	return item.Public && owner.Status == models.AccountStatusActive, nil
}
