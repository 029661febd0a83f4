package repository

import (
	"context"
	"errors"

	"profilehub-api/internal/model"
)

// ErrProfileNotFound is returned when no document exists for the requested
// account and profile kind.
var ErrProfileNotFound = errors.New("profile document not found")

// ProfileRepository defines profile document data access methods. The sync
// engine assumes at least last-writer-wins on whole-document saves; the
// partial-write variants exist for ops tooling and do not advance
// revisions.
type ProfileRepository interface {
	// GetProfile retrieves a profile document. Returns ErrProfileNotFound
	// when absent.
	GetProfile(ctx context.Context, accountID string, profileID model.ProfileID) (*model.ProfileDocument, error)

	// SaveProfile inserts or replaces the whole document.
	SaveProfile(ctx context.Context, doc *model.ProfileDocument) error

	// UpdateProfileStats merges the given attributes into stats.attributes.
	UpdateProfileStats(ctx context.Context, accountID string, profileID model.ProfileID, attrs map[string]interface{}) error

	// AddItemToProfile inserts a single item instance.
	AddItemToProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error

	// RemoveItemFromProfile removes a single item instance.
	RemoveItemFromProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string) error

	// UpdateItemInProfile replaces a single item instance.
	UpdateItemInProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error

	// GetStats returns statistics about the profile database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}

// KeyAccountRepository defines launcher key account data access methods.
type KeyAccountRepository interface {
	// GetKeyAccountByAccountID finds a key account by game account id.
	GetKeyAccountByAccountID(ctx context.Context, accountID string) (int64, error)

	// ValidateKeyAndHWID validates a key+hwid+account combination for token
	// generation.
	ValidateKeyAndHWID(ctx context.Context, key, hwid, accountID string) (*model.KeyAccountValidation, error)
}
