package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"profilehub-api/internal/cache"
	"profilehub-api/internal/engine"
	"profilehub-api/internal/model"
	"profilehub-api/internal/repository"
)

type failingSaveRepo struct {
	repository.ProfileRepository
	failAccount string
	failProfile model.ProfileID
}

var errBackendDown = errors.New("backend down")

func (r *failingSaveRepo) SaveProfile(ctx context.Context, doc *model.ProfileDocument) error {
	if doc.AccountID == r.failAccount && doc.ProfileID == r.failProfile {
		return errBackendDown
	}
	return r.ProfileRepository.SaveProfile(ctx, doc)
}

func newTestService(t *testing.T, repo repository.ProfileRepository) *ProfileService {
	t.Helper()
	svc := NewProfileService(repo)
	if svc == nil {
		t.Fatal("NewProfileService returned nil")
	}
	var n int
	svc.SetItemIDAllocator(func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	})
	return svc
}

func seed(t *testing.T, repo repository.ProfileRepository, accountID string, profileID model.ProfileID, rvn int64, items map[string]*model.Item) {
	t.Helper()
	doc := model.NewProfileDocument(accountID, profileID)
	doc.Rvn = rvn
	doc.CommandRevision = rvn
	for id, item := range items {
		doc.Items[id] = item
	}
	if err := repo.SaveProfile(context.Background(), doc); err != nil {
		t.Fatalf("seed %s/%s: %v", accountID, profileID, err)
	}
}

func currencyItem(code string, quantity int64) *model.Item {
	return &model.Item{
		TemplateID: currencyTemplate(code),
		Attributes: map[string]interface{}{},
		Quantity:   quantity,
	}
}

func TestGrantItemsAdvancesRevisionAndEmitsDelta(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileInventory, 5, nil)
	svc := newTestService(t, repo)

	resp, err := svc.GrantItems(ctx, "acct-1", model.ProfileInventory, 5, GrantItemsPayload{
		Items: []ItemGrant{{TemplateID: "pickaxe_basic"}},
	})
	if err != nil {
		t.Fatalf("GrantItems: %v", err)
	}

	if resp.ProfileRevision != 6 || resp.ProfileCommandRevision != 6 {
		t.Fatalf("expected revisions 6/6, got %d/%d", resp.ProfileRevision, resp.ProfileCommandRevision)
	}
	if resp.ProfileChangesBaseRevision != 5 {
		t.Fatalf("expected base revision 5, got %d", resp.ProfileChangesBaseRevision)
	}
	if len(resp.ProfileChanges) != 1 || resp.ProfileChanges[0].ChangeType != model.ChangeItemAdded {
		t.Fatalf("expected a single itemAdded, got %+v", resp.ProfileChanges)
	}
	if resp.ProfileChanges[0].Item == nil || resp.ProfileChanges[0].Item.Quantity != 1 {
		t.Fatalf("grant without quantity should default to 1, got %+v", resp.ProfileChanges[0].Item)
	}

	stored, err := repo.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if stored.Rvn != 6 || len(stored.Items) != 1 {
		t.Fatalf("persisted state rvn=%d items=%d, want 6/1", stored.Rvn, len(stored.Items))
	}
}

func TestQueryProfileStaleClientGetsFullUpdate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileInventory, 6, map[string]*model.Item{
		"item-a": {TemplateID: "pickaxe_basic", Quantity: 1},
	})
	svc := newTestService(t, repo)

	resp, err := svc.QueryProfile(ctx, "acct-1", model.ProfileInventory, 3)
	if err != nil {
		t.Fatalf("QueryProfile: %v", err)
	}
	if resp.ProfileRevision != 6 {
		t.Fatalf("query changed the revision: %d", resp.ProfileRevision)
	}
	if resp.ProfileChangesBaseRevision != 3 {
		t.Fatalf("full update must echo the client's revision, got %d", resp.ProfileChangesBaseRevision)
	}
	if len(resp.ProfileChanges) != 1 || resp.ProfileChanges[0].ChangeType != model.ChangeFullProfileUpdate {
		t.Fatalf("expected fullProfileUpdate, got %+v", resp.ProfileChanges)
	}
}

func TestStaleClientMutationStillGetsDelta(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileCampaign, 6, nil)
	svc := newTestService(t, repo)

	resp, err := svc.SetStat(ctx, "acct-1", model.ProfileCampaign, 2, SetStatPayload{Name: "quest_progress", Value: 7})
	if err != nil {
		t.Fatalf("SetStat: %v", err)
	}
	if resp.ProfileRevision != 7 {
		t.Fatalf("expected revision 7, got %d", resp.ProfileRevision)
	}
	if resp.ProfileChangesBaseRevision != 6 {
		t.Fatalf("delta base must be the pre-command revision, got %d", resp.ProfileChangesBaseRevision)
	}
	if len(resp.ProfileChanges) != 1 || resp.ProfileChanges[0].ChangeType != model.ChangeStatModified {
		t.Fatalf("expected the statModified delta, got %+v", resp.ProfileChanges)
	}
}

func TestSetStatSameValueStillAdvances(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileCampaign, 4, nil)
	svc := newTestService(t, repo)

	if _, err := svc.SetStat(ctx, "acct-1", model.ProfileCampaign, 4, SetStatPayload{Name: "difficulty", Value: "hard"}); err != nil {
		t.Fatalf("SetStat: %v", err)
	}
	resp, err := svc.SetStat(ctx, "acct-1", model.ProfileCampaign, 5, SetStatPayload{Name: "difficulty", Value: "hard"})
	if err != nil {
		t.Fatalf("SetStat: %v", err)
	}
	if resp.ProfileRevision != 6 {
		t.Fatalf("rewriting the same value must still advance, got %d", resp.ProfileRevision)
	}
}

func TestPurchaseCatalogEntrySplitsAcrossProfiles(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileWallet, 2, map[string]*model.Item{
		"wallet-vb": currencyItem("vbucks", 1000),
	})
	seed(t, repo, "acct-1", model.ProfileInventory, 9, nil)
	svc := newTestService(t, repo)

	resp, err := svc.PurchaseCatalogEntry(ctx, "acct-1", model.ProfileWallet, 2, PurchaseCatalogEntryPayload{
		TemplateID: "glider_rare",
		Currency:   "vbucks",
		Price:      800,
	})
	if err != nil {
		t.Fatalf("PurchaseCatalogEntry: %v", err)
	}

	if resp.ProfileID != model.ProfileWallet || resp.ProfileRevision != 3 {
		t.Fatalf("primary should be wallet at revision 3, got %s/%d", resp.ProfileID, resp.ProfileRevision)
	}
	if len(resp.MultiUpdate) != 1 {
		t.Fatalf("expected 1 multiUpdate entry, got %+v", resp.MultiUpdate)
	}
	mu := resp.MultiUpdate[0]
	if mu.ProfileID != model.ProfileInventory || mu.ProfileRevision != 10 || mu.ProfileChangesBaseRevision != 9 {
		t.Fatalf("unexpected inventory update: %+v", mu)
	}
	if len(resp.Notifications) != 1 {
		t.Fatalf("expected a purchase notification, got %+v", resp.Notifications)
	}

	wallet, _ := repo.GetProfile(ctx, "acct-1", model.ProfileWallet)
	if wallet.Items["wallet-vb"].Quantity != 200 {
		t.Fatalf("wallet balance %d, want 200", wallet.Items["wallet-vb"].Quantity)
	}
	inventory, _ := repo.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if len(inventory.Items) != 1 {
		t.Fatalf("inventory item count %d, want 1", len(inventory.Items))
	}
}

func TestPurchaseCatalogEntryInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileWallet, 2, map[string]*model.Item{
		"wallet-vb": currencyItem("vbucks", 100),
	})
	seed(t, repo, "acct-1", model.ProfileInventory, 9, nil)
	svc := newTestService(t, repo)

	_, err := svc.PurchaseCatalogEntry(ctx, "acct-1", model.ProfileWallet, 2, PurchaseCatalogEntryPayload{
		TemplateID: "glider_rare",
		Currency:   "vbucks",
		Price:      800,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	wallet, _ := repo.GetProfile(ctx, "acct-1", model.ProfileWallet)
	if wallet.Rvn != 2 || wallet.Items["wallet-vb"].Quantity != 100 {
		t.Fatalf("failed purchase leaked writes: rvn=%d balance=%d", wallet.Rvn, wallet.Items["wallet-vb"].Quantity)
	}
}

func TestPurchaseCatalogEntryRequiresWalletProfile(t *testing.T) {
	repo := repository.NewMemoryProfileRepository()
	svc := newTestService(t, repo)

	_, err := svc.PurchaseCatalogEntry(context.Background(), "acct-1", model.ProfileInventory, 0, PurchaseCatalogEntryPayload{
		TemplateID: "glider_rare",
		Currency:   "vbucks",
		Price:      1,
	})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestRemoveItemsMissingItemAbortsWholeCommand(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileInventory, 4, map[string]*model.Item{
		"item-a": {TemplateID: "pickaxe_basic", Quantity: 1},
	})
	svc := newTestService(t, repo)

	_, err := svc.RemoveItems(ctx, "acct-1", model.ProfileInventory, 4, RemoveItemsPayload{
		ItemIDs: []string{"item-a", "ghost"},
	})
	var nf *engine.ItemNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ItemNotFoundError, got %v", err)
	}

	// item-a was removed in memory before the failure, but nothing reached
	// the repository.
	stored, _ := repo.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if stored.Rvn != 4 {
		t.Fatalf("aborted command advanced revision to %d", stored.Rvn)
	}
	if _, ok := stored.Items["item-a"]; !ok {
		t.Fatal("aborted command deleted item-a from the store")
	}
}

func TestGrantCurrencyCreatesThenAccumulates(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileWallet, 0, nil)
	svc := newTestService(t, repo)

	first, err := svc.GrantCurrency(ctx, "acct-1", model.ProfileWallet, 0, CurrencyPayload{Currency: "vbucks", Amount: 500})
	if err != nil {
		t.Fatalf("GrantCurrency: %v", err)
	}
	if len(first.ProfileChanges) != 1 || first.ProfileChanges[0].ChangeType != model.ChangeItemAdded {
		t.Fatalf("first grant should add the wallet item, got %+v", first.ProfileChanges)
	}

	second, err := svc.GrantCurrency(ctx, "acct-1", model.ProfileWallet, 1, CurrencyPayload{Currency: "vbucks", Amount: 250})
	if err != nil {
		t.Fatalf("GrantCurrency: %v", err)
	}
	if len(second.ProfileChanges) != 1 || second.ProfileChanges[0].ChangeType != model.ChangeItemQuantityChanged {
		t.Fatalf("second grant should adjust quantity, got %+v", second.ProfileChanges)
	}
	if second.ProfileChanges[0].Quantity == nil || *second.ProfileChanges[0].Quantity != 750 {
		t.Fatalf("unexpected balance in delta: %+v", second.ProfileChanges[0])
	}
}

func TestRemoveCurrencyKeepsZeroBalanceItem(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileWallet, 0, map[string]*model.Item{
		"wallet-vb": currencyItem("vbucks", 300),
	})
	svc := newTestService(t, repo)

	if _, err := svc.RemoveCurrency(ctx, "acct-1", model.ProfileWallet, 0, CurrencyPayload{Currency: "vbucks", Amount: 300}); err != nil {
		t.Fatalf("RemoveCurrency: %v", err)
	}

	stored, _ := repo.GetProfile(ctx, "acct-1", model.ProfileWallet)
	item, ok := stored.Items["wallet-vb"]
	if !ok {
		t.Fatal("zero balance removed the wallet item")
	}
	if item.Quantity != 0 {
		t.Fatalf("balance %d, want 0", item.Quantity)
	}
}

func TestGiftItemsPartialFailureLeavesSenderDurable(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryProfileRepository()
	seed(t, mem, "sender", model.ProfileInventory, 3, map[string]*model.Item{
		"item-a": {TemplateID: "emote_rare", Quantity: 1},
	})
	seed(t, mem, "receiver", model.ProfileInventory, 7, nil)
	repo := &failingSaveRepo{ProfileRepository: mem, failAccount: "receiver", failProfile: model.ProfileInventory}
	svc := newTestService(t, repo)

	_, err := svc.GiftItems(ctx, "sender", model.ProfileInventory, 3, GiftItemsPayload{
		ReceiverAccountID: "receiver",
		ItemIDs:           []string{"item-a"},
	})
	var pf *engine.PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if len(pf.Committed) != 1 || pf.Committed[0].AccountID != "sender" {
		t.Fatalf("unexpected committed set: %+v", pf.Committed)
	}
	if pf.Failed.AccountID != "receiver" {
		t.Fatalf("unexpected failed ref: %+v", pf.Failed)
	}

	// The sender's save happened first and stays durable. The item is gone
	// from the sender and never reached the receiver; that is the documented
	// remediation surface, not a rollback.
	sender, _ := mem.GetProfile(ctx, "sender", model.ProfileInventory)
	if sender.Rvn != 4 {
		t.Fatalf("sender revision %d, want 4", sender.Rvn)
	}
	if _, ok := sender.Items["item-a"]; ok {
		t.Fatal("sender still holds the gifted item")
	}
	receiver, _ := mem.GetProfile(ctx, "receiver", model.ProfileInventory)
	if receiver.Rvn != 7 || len(receiver.Items) != 0 {
		t.Fatalf("receiver state rvn=%d items=%d, want 7/0", receiver.Rvn, len(receiver.Items))
	}
}

func TestGiftItemsCarriesGiftAttributes(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "sender", model.ProfileInventory, 3, map[string]*model.Item{
		"item-a": {TemplateID: "emote_rare", Quantity: 1},
	})
	seed(t, repo, "receiver", model.ProfileInventory, 7, nil)
	svc := newTestService(t, repo)

	resp, err := svc.GiftItems(ctx, "sender", model.ProfileInventory, 3, GiftItemsPayload{
		ReceiverAccountID: "receiver",
		ItemIDs:           []string{"item-a"},
		Message:           "gg",
	})
	if err != nil {
		t.Fatalf("GiftItems: %v", err)
	}
	if len(resp.MultiUpdate) != 1 || resp.MultiUpdate[0].ProfileRevision != 8 {
		t.Fatalf("unexpected receiver update: %+v", resp.MultiUpdate)
	}

	receiver, _ := repo.GetProfile(ctx, "receiver", model.ProfileInventory)
	if len(receiver.Items) != 1 {
		t.Fatalf("receiver item count %d, want 1", len(receiver.Items))
	}
	for _, item := range receiver.Items {
		if item.Attributes["gift_from"] != "sender" || item.Attributes["gift_message"] != "gg" {
			t.Fatalf("gift attributes missing: %+v", item.Attributes)
		}
	}
}

func TestGiftItemsRejectsSelfGift(t *testing.T) {
	repo := repository.NewMemoryProfileRepository()
	svc := newTestService(t, repo)

	_, err := svc.GiftItems(context.Background(), "sender", model.ProfileInventory, 0, GiftItemsPayload{
		ReceiverAccountID: "sender",
		ItemIDs:           []string{"item-a"},
	})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestProvisionAccountIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	svc := newTestService(t, repo)

	created, err := svc.ProvisionAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ProvisionAccount: %v", err)
	}
	if len(created) != len(model.KnownProfileIDs) {
		t.Fatalf("created %d profiles, want %d", len(created), len(model.KnownProfileIDs))
	}
	for _, profileID := range model.KnownProfileIDs {
		doc, err := repo.GetProfile(ctx, "acct-1", profileID)
		if err != nil {
			t.Fatalf("GetProfile(%s): %v", profileID, err)
		}
		if doc.Rvn != 0 || doc.CommandRevision != 0 {
			t.Fatalf("provisioned %s at revisions %d/%d, want 0/0", profileID, doc.Rvn, doc.CommandRevision)
		}
	}

	again, err := svc.ProvisionAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ProvisionAccount: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second provision created %d profiles", len(again))
	}
}

func TestMissingProfileMapsToEngineNotFound(t *testing.T) {
	repo := repository.NewMemoryProfileRepository()
	svc := newTestService(t, repo)

	_, err := svc.QueryProfile(context.Background(), "ghost", model.ProfileInventory, engine.ClientRevisionUnknown)
	if !errors.Is(err, engine.ErrProfileNotFound) {
		t.Fatalf("expected engine.ErrProfileNotFound, got %v", err)
	}

	_, err = svc.SetStat(context.Background(), "ghost", model.ProfileCampaign, 0, SetStatPayload{Name: "x", Value: 1})
	if !errors.Is(err, engine.ErrProfileNotFound) {
		t.Fatalf("expected engine.ErrProfileNotFound, got %v", err)
	}
}

func TestSnapshotCacheInvalidatedAfterCommit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seed(t, repo, "acct-1", model.ProfileInventory, 5, nil)

	svc := NewProfileServiceWithCache(repo, cache.NewMemoryCache(), time.Minute)
	if svc == nil {
		t.Fatal("NewProfileServiceWithCache returned nil")
	}
	svc.SetItemIDAllocator(func() string { return "item-x" })

	// Prime the cache.
	resp, err := svc.QueryProfile(ctx, "acct-1", model.ProfileInventory, 4)
	if err != nil {
		t.Fatalf("QueryProfile: %v", err)
	}
	if resp.ProfileRevision != 5 {
		t.Fatalf("expected revision 5, got %d", resp.ProfileRevision)
	}

	if _, err := svc.GrantItems(ctx, "acct-1", model.ProfileInventory, 5, GrantItemsPayload{
		Items: []ItemGrant{{TemplateID: "pickaxe_basic"}},
	}); err != nil {
		t.Fatalf("GrantItems: %v", err)
	}

	// The commit must have evicted the snapshot; a query now sees the new
	// revision instead of the cached one.
	resp, err = svc.QueryProfile(ctx, "acct-1", model.ProfileInventory, 5)
	if err != nil {
		t.Fatalf("QueryProfile: %v", err)
	}
	if resp.ProfileRevision != 6 {
		t.Fatalf("stale snapshot served after commit: revision %d", resp.ProfileRevision)
	}
}
