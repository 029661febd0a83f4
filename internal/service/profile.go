package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"profilehub-api/internal/cache"
	"profilehub-api/internal/engine"
	"profilehub-api/internal/model"
	"profilehub-api/internal/repository"
	"profilehub-api/pkg/uid"
)

// ErrInsufficientFunds indicates a wallet debit larger than the balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvalidPayload indicates a command payload that fails domain
// validation.
var ErrInvalidPayload = errors.New("invalid command payload")

// currencyTemplate maps a currency code to the template id of its wallet
// item.
func currencyTemplate(code string) string {
	return "currency:" + code
}

// ProfileService implements the profile command handlers on top of the
// sync engine. Handlers own domain rules (prices, grants, funds checks);
// all revision and change-shaping logic lives in the engine.
type ProfileService struct {
	repo        repository.ProfileRepository
	cache       cache.Cache
	snapshotTTL time.Duration
	newItemID   func() string
}

// NewProfileService creates a new profile service.
// Returns nil if repo is nil (required dependency).
func NewProfileService(repo repository.ProfileRepository) *ProfileService {
	if repo == nil {
		return nil
	}
	return &ProfileService{
		repo:      repo,
		newItemID: uid.New,
	}
}

// NewProfileServiceWithCache creates a profile service with a read-side
// snapshot cache for the query path.
func NewProfileServiceWithCache(repo repository.ProfileRepository, c cache.Cache, snapshotTTL time.Duration) *ProfileService {
	s := NewProfileService(repo)
	if s == nil {
		return nil
	}
	s.cache = c
	s.snapshotTTL = snapshotTTL
	return s
}

// SetItemIDAllocator overrides the item-instance id allocator.
func (s *ProfileService) SetItemIDAllocator(fn func() string) {
	if fn != nil {
		s.newItemID = fn
	}
}

// QueryProfile is the read-only command: no mutation, no revision advance.
// A client whose declared revision is stale gets a full snapshot; an
// in-sync client gets an empty delta. Snapshots may be served from the
// cache.
func (s *ProfileService) QueryProfile(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64) (*model.CommandResponse, error) {
	doc, err := s.loadForQuery(ctx, accountID, profileID)
	if err != nil {
		return nil, err
	}
	return engine.QueryResponse(doc, clientRevision, time.Now()), nil
}

// loadForQuery reads a profile through the snapshot cache when one is
// configured. Cache entries are deleted after every commit; the TTL bounds
// staleness if an invalidation is lost.
func (s *ProfileService) loadForQuery(ctx context.Context, accountID string, profileID model.ProfileID) (*model.ProfileDocument, error) {
	if s.cache == nil {
		return s.getProfile(ctx, accountID, profileID)
	}

	key := cache.ProfileKey(accountID, profileID)
	data, err := s.cache.GetOrSet(ctx, key, s.snapshotTTL, func() ([]byte, error) {
		doc, err := s.getProfile(ctx, accountID, profileID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	})
	if err != nil {
		return nil, err
	}

	var doc model.ProfileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cached profile: %w", err)
	}
	return &doc, nil
}

func (s *ProfileService) getProfile(ctx context.Context, accountID string, profileID model.ProfileID) (*model.ProfileDocument, error) {
	doc, err := s.repo.GetProfile(ctx, accountID, profileID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		return nil, engine.ErrProfileNotFound
	}
	return doc, err
}

// commit persists the session and invalidates cached snapshots for every
// profile the command journaled. Invalidation runs even on partial
// failure, since committed secondaries are already durable.
func (s *ProfileService) commit(ctx context.Context, sess *engine.Session, clientRevision int64) (*model.CommandResponse, error) {
	resp, err := sess.Commit(ctx, clientRevision)
	if s.cache != nil {
		for _, ref := range sess.CommittedProfiles() {
			if cerr := s.cache.Delete(ctx, cache.ProfileKey(ref.AccountID, ref.ProfileID)); cerr != nil {
				log.Printf("[ProfileService] Cache invalidation failed for %s: %v", ref, cerr)
			}
		}
	}
	return resp, err
}

// MarkItemSeenPayload lists the item instances to flag as seen.
type MarkItemSeenPayload struct {
	ItemIDs []string `json:"itemIds"`
}

// MarkItemSeen sets the item_seen attribute on each listed instance.
func (s *ProfileService) MarkItemSeen(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload MarkItemSeenPayload) (*model.CommandResponse, error) {
	if len(payload.ItemIDs) == 0 {
		return nil, fmt.Errorf("%w: itemIds is required", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	p := sess.Primary()
	for _, itemID := range payload.ItemIDs {
		if err := p.SetItemAttribute(itemID, "item_seen", true); err != nil {
			return nil, err
		}
	}
	return s.commit(ctx, sess, clientRevision)
}

// EquipItemPayload names the instance and the loadout slot to put it in.
type EquipItemPayload struct {
	ItemID string `json:"itemId"`
	Slot   string `json:"slot"`
}

// EquipItem writes the loadout slot stat and marks the item with its slot.
func (s *ProfileService) EquipItem(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload EquipItemPayload) (*model.CommandResponse, error) {
	if payload.ItemID == "" || payload.Slot == "" {
		return nil, fmt.Errorf("%w: itemId and slot are required", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	p := sess.Primary()
	if _, err := p.Item(payload.ItemID); err != nil {
		return nil, err
	}
	p.SetStat("loadout_"+payload.Slot, payload.ItemID)
	if err := p.SetItemAttribute(payload.ItemID, "equipped_slot", payload.Slot); err != nil {
		return nil, err
	}
	return s.commit(ctx, sess, clientRevision)
}

// SetItemFavoriteStatusPayload toggles the favorite flag on an instance.
type SetItemFavoriteStatusPayload struct {
	ItemID   string `json:"itemId"`
	Favorite bool   `json:"favorite"`
}

// SetItemFavoriteStatus writes the favorite attribute on an instance.
func (s *ProfileService) SetItemFavoriteStatus(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload SetItemFavoriteStatusPayload) (*model.CommandResponse, error) {
	if payload.ItemID == "" {
		return nil, fmt.Errorf("%w: itemId is required", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	if err := sess.Primary().SetItemAttribute(payload.ItemID, "favorite", payload.Favorite); err != nil {
		return nil, err
	}
	return s.commit(ctx, sess, clientRevision)
}

// SetStatPayload is a generic profile-level stat write.
type SetStatPayload struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// SetStat writes a profile stat. Writing the current value still counts as
// a mutation and advances the revision; stat writes are never silent
// no-ops.
func (s *ProfileService) SetStat(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload SetStatPayload) (*model.CommandResponse, error) {
	if payload.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	sess.Primary().SetStat(payload.Name, payload.Value)
	return s.commit(ctx, sess, clientRevision)
}

// CurrencyPayload names a currency code and an amount.
type CurrencyPayload struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// GrantCurrency credits a currency balance, creating the wallet item on
// first grant.
func (s *ProfileService) GrantCurrency(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload CurrencyPayload) (*model.CommandResponse, error) {
	if payload.Currency == "" || payload.Amount <= 0 {
		return nil, fmt.Errorf("%w: currency and a positive amount are required", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	creditCurrency(sess.Primary(), payload.Currency, payload.Amount, s.newItemID)
	return s.commit(ctx, sess, clientRevision)
}

// RemoveCurrency debits a currency balance. The wallet item is kept at
// quantity zero rather than removed, so the balance history stays visible
// to clients.
func (s *ProfileService) RemoveCurrency(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload CurrencyPayload) (*model.CommandResponse, error) {
	if payload.Currency == "" || payload.Amount <= 0 {
		return nil, fmt.Errorf("%w: currency and a positive amount are required", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	if err := debitCurrency(sess.Primary(), payload.Currency, payload.Amount); err != nil {
		return nil, err
	}
	return s.commit(ctx, sess, clientRevision)
}

func creditCurrency(p *engine.Profile, currency string, amount int64, newItemID func() string) {
	template := currencyTemplate(currency)
	if itemID, item := p.FindItemByTemplate(template); item != nil {
		p.SetItemQuantity(itemID, item.Quantity+amount)
		return
	}
	p.AddItem(newItemID(), &model.Item{
		TemplateID: template,
		Attributes: map[string]interface{}{},
		Quantity:   amount,
	})
}

func debitCurrency(p *engine.Profile, currency string, amount int64) error {
	itemID, item := p.FindItemByTemplate(currencyTemplate(currency))
	if item == nil || item.Quantity < amount {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, currency)
	}
	return p.SetItemQuantity(itemID, item.Quantity-amount)
}

// ItemGrant describes one item to create.
type ItemGrant struct {
	TemplateID string                 `json:"templateId"`
	Quantity   int64                  `json:"quantity"`
	Attributes map[string]interface{} `json:"attributes"`
}

// GrantItemsPayload lists items to create in the profile.
type GrantItemsPayload struct {
	Items []ItemGrant `json:"items"`
}

// GrantItems adds new item instances with freshly allocated ids.
func (s *ProfileService) GrantItems(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload GrantItemsPayload) (*model.CommandResponse, error) {
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("%w: items is required", ErrInvalidPayload)
	}
	for _, grant := range payload.Items {
		if grant.TemplateID == "" {
			return nil, fmt.Errorf("%w: templateId is required for every item", ErrInvalidPayload)
		}
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	p := sess.Primary()
	for _, grant := range payload.Items {
		grantItem(p, grant, s.newItemID)
	}
	return s.commit(ctx, sess, clientRevision)
}

func grantItem(p *engine.Profile, grant ItemGrant, newItemID func() string) string {
	quantity := grant.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	attrs := grant.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	itemID := newItemID()
	p.AddItem(itemID, &model.Item{
		TemplateID: grant.TemplateID,
		Attributes: attrs,
		Quantity:   quantity,
	})
	return itemID
}

// RemoveItemsPayload lists the instances to delete.
type RemoveItemsPayload struct {
	ItemIDs []string `json:"itemIds"`
}

// RemoveItems deletes item instances. Any missing id aborts the whole
// command before anything is persisted.
func (s *ProfileService) RemoveItems(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload RemoveItemsPayload) (*model.CommandResponse, error) {
	if len(payload.ItemIDs) == 0 {
		return nil, fmt.Errorf("%w: itemIds is required", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, profileID)
	if err != nil {
		return nil, err
	}

	p := sess.Primary()
	for _, itemID := range payload.ItemIDs {
		if err := p.RemoveItem(itemID); err != nil {
			return nil, err
		}
	}
	return s.commit(ctx, sess, clientRevision)
}

// PurchaseCatalogEntryPayload describes a catalog purchase. Price and
// currency come from the (externally owned) catalog content the caller
// resolved.
type PurchaseCatalogEntryPayload struct {
	TemplateID string `json:"templateId"`
	Currency   string `json:"currency"`
	Price      int64  `json:"price"`
	Quantity   int64  `json:"quantity"`
}

// PurchaseNotification reports a completed purchase to the client.
type PurchaseNotification struct {
	Type       string   `json:"type"`
	TemplateID string   `json:"templateId"`
	ItemIDs    []string `json:"itemIds"`
	Currency   string   `json:"currency"`
	Price      int64    `json:"price"`
}

// PurchaseCatalogEntry debits the account's wallet profile and grants the
// purchased item into its inventory profile. The wallet is the primary
// (the request names it); the inventory update rides in multiUpdate with
// its own revision.
func (s *ProfileService) PurchaseCatalogEntry(ctx context.Context, accountID string, profileID model.ProfileID, clientRevision int64, payload PurchaseCatalogEntryPayload) (*model.CommandResponse, error) {
	if profileID != model.ProfileWallet {
		return nil, fmt.Errorf("%w: purchases run against the %s profile", ErrInvalidPayload, model.ProfileWallet)
	}
	if payload.TemplateID == "" || payload.Currency == "" {
		return nil, fmt.Errorf("%w: templateId and currency are required", ErrInvalidPayload)
	}
	if payload.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, accountID, model.ProfileWallet)
	if err != nil {
		return nil, err
	}

	if payload.Price > 0 {
		if err := debitCurrency(sess.Primary(), payload.Currency, payload.Price); err != nil {
			return nil, err
		}
	}

	inventory, err := sess.Open(ctx, accountID, model.ProfileInventory)
	if err != nil {
		return nil, err
	}

	itemID := grantItem(inventory, ItemGrant{TemplateID: payload.TemplateID, Quantity: payload.Quantity}, s.newItemID)

	sess.Notify(PurchaseNotification{
		Type:       "CatalogPurchase",
		TemplateID: payload.TemplateID,
		ItemIDs:    []string{itemID},
		Currency:   payload.Currency,
		Price:      payload.Price,
	})

	return s.commit(ctx, sess, clientRevision)
}

// GiftItemsPayload moves item instances to another account's inventory.
type GiftItemsPayload struct {
	ReceiverAccountID string   `json:"receiverAccountId"`
	ItemIDs           []string `json:"itemIds"`
	Message           string   `json:"message"`
}

// GiftNotification reports a sent gift to the sender.
type GiftNotification struct {
	Type              string   `json:"type"`
	ReceiverAccountID string   `json:"receiverAccountId"`
	ItemIDs           []string `json:"itemIds"`
}

// GiftItems removes instances from the sender's inventory and grants
// copies into the receiver's inventory. The two profiles are persisted one
// at a time, sender first; a failure on the receiver after the sender's
// save surfaces as a partial failure and is not rolled back.
func (s *ProfileService) GiftItems(ctx context.Context, senderAccountID string, profileID model.ProfileID, clientRevision int64, payload GiftItemsPayload) (*model.CommandResponse, error) {
	if profileID != model.ProfileInventory {
		return nil, fmt.Errorf("%w: gifts run against the %s profile", ErrInvalidPayload, model.ProfileInventory)
	}
	if payload.ReceiverAccountID == "" || len(payload.ItemIDs) == 0 {
		return nil, fmt.Errorf("%w: receiverAccountId and itemIds are required", ErrInvalidPayload)
	}
	if payload.ReceiverAccountID == senderAccountID {
		return nil, fmt.Errorf("%w: cannot gift to the sending account", ErrInvalidPayload)
	}

	sess, err := engine.Begin(ctx, s.repo, senderAccountID, model.ProfileInventory)
	if err != nil {
		return nil, err
	}

	receiver, err := sess.Open(ctx, payload.ReceiverAccountID, model.ProfileInventory)
	if err != nil {
		return nil, err
	}

	sender := sess.Primary()
	grantedIDs := make([]string, 0, len(payload.ItemIDs))
	for _, itemID := range payload.ItemIDs {
		item, err := sender.Item(itemID)
		if err != nil {
			return nil, err
		}
		gifted := item.Clone()
		if gifted.Attributes == nil {
			gifted.Attributes = map[string]interface{}{}
		}
		gifted.Attributes["gift_from"] = senderAccountID
		if payload.Message != "" {
			gifted.Attributes["gift_message"] = payload.Message
		}
		if err := sender.RemoveItem(itemID); err != nil {
			return nil, err
		}
		newID := s.newItemID()
		receiver.AddItem(newID, gifted)
		grantedIDs = append(grantedIDs, newID)
	}

	sess.Notify(GiftNotification{
		Type:              "GiftSent",
		ReceiverAccountID: payload.ReceiverAccountID,
		ItemIDs:           grantedIDs,
	})

	return s.commit(ctx, sess, clientRevision)
}

// ProvisionAccount creates the standard set of empty profile documents for
// an account, skipping any that already exist. Provisioning writes at
// revision zero and never advances a revision pair.
func (s *ProfileService) ProvisionAccount(ctx context.Context, accountID string) ([]model.ProfileID, error) {
	var created []model.ProfileID
	for _, profileID := range model.KnownProfileIDs {
		_, err := s.repo.GetProfile(ctx, accountID, profileID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrProfileNotFound) {
			return created, err
		}
		if err := s.repo.SaveProfile(ctx, model.NewProfileDocument(accountID, profileID)); err != nil {
			return created, fmt.Errorf("failed to provision %s/%s: %w", accountID, profileID, err)
		}
		created = append(created, profileID)
	}
	if len(created) > 0 {
		log.Printf("[ProfileService] Provisioned %d profile(s) for account %s", len(created), accountID)
	}
	return created, nil
}
