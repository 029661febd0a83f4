package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"profilehub-api/internal/model"
)

// MemoryProfileRepository implements ProfileRepository with an in-process
// map. Use for development and tests; documents are stored marshalled so
// callers always get isolated copies, same as the durable backends.
type MemoryProfileRepository struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryProfileRepository creates an empty in-memory repository.
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{docs: make(map[string][]byte)}
}

func memKey(accountID string, profileID model.ProfileID) string {
	return accountID + "|" + string(profileID)
}

// GetProfile retrieves a profile document.
func (r *MemoryProfileRepository) GetProfile(ctx context.Context, accountID string, profileID model.ProfileID) (*model.ProfileDocument, error) {
	r.mu.RLock()
	data, ok := r.docs[memKey(accountID, profileID)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrProfileNotFound
	}

	var doc model.ProfileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode profile document: %w", err)
	}
	return &doc, nil
}

// SaveProfile inserts or replaces the whole document.
func (r *MemoryProfileRepository) SaveProfile(ctx context.Context, doc *model.ProfileDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode profile document: %w", err)
	}

	r.mu.Lock()
	r.docs[memKey(doc.AccountID, doc.ProfileID)] = data
	r.mu.Unlock()
	return nil
}

// UpdateProfileStats merges attributes into stats.attributes.
func (r *MemoryProfileRepository) UpdateProfileStats(ctx context.Context, accountID string, profileID model.ProfileID, attrs map[string]interface{}) error {
	return r.modify(ctx, accountID, profileID, func(doc *model.ProfileDocument) error {
		if doc.Stats.Attributes == nil {
			doc.Stats.Attributes = make(map[string]interface{})
		}
		for k, v := range attrs {
			doc.Stats.Attributes[k] = v
		}
		return nil
	})
}

// AddItemToProfile inserts a single item instance.
func (r *MemoryProfileRepository) AddItemToProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error {
	return r.modify(ctx, accountID, profileID, func(doc *model.ProfileDocument) error {
		doc.Items[itemID] = item
		return nil
	})
}

// RemoveItemFromProfile removes a single item instance.
func (r *MemoryProfileRepository) RemoveItemFromProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string) error {
	return r.modify(ctx, accountID, profileID, func(doc *model.ProfileDocument) error {
		delete(doc.Items, itemID)
		return nil
	})
}

// UpdateItemInProfile replaces a single item instance.
func (r *MemoryProfileRepository) UpdateItemInProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error {
	return r.AddItemToProfile(ctx, accountID, profileID, itemID, item)
}

func (r *MemoryProfileRepository) modify(ctx context.Context, accountID string, profileID model.ProfileID, fn func(*model.ProfileDocument) error) error {
	doc, err := r.GetProfile(ctx, accountID, profileID)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	doc.Updated = time.Now().UTC()
	return r.SaveProfile(ctx, doc)
}

// GetStats returns statistics about the repository.
func (r *MemoryProfileRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bytes int
	for _, data := range r.docs {
		bytes += len(data)
	}
	return map[string]interface{}{
		"total_profiles": len(r.docs),
		"db_size_bytes":  bytes,
	}, nil
}

// Close is a no-op for the in-memory repository.
func (r *MemoryProfileRepository) Close() error {
	return nil
}

// Ensure MemoryProfileRepository implements ProfileRepository
var _ ProfileRepository = (*MemoryProfileRepository)(nil)
