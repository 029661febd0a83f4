package engine

import (
	"context"
	"errors"
	"testing"

	"profilehub-api/internal/model"
	"profilehub-api/internal/repository"
)

// failingSaveRepo wraps a repository and fails SaveProfile for one profile
// kind, simulating a backend outage mid-command.
type failingSaveRepo struct {
	repository.ProfileRepository
	failProfile model.ProfileID
}

var errDiskFull = errors.New("disk full")

func (r *failingSaveRepo) SaveProfile(ctx context.Context, doc *model.ProfileDocument) error {
	if doc.ProfileID == r.failProfile {
		return errDiskFull
	}
	return r.ProfileRepository.SaveProfile(ctx, doc)
}

func seedProfile(t *testing.T, repo repository.ProfileRepository, accountID string, profileID model.ProfileID, rvn int64) {
	t.Helper()
	doc := model.NewProfileDocument(accountID, profileID)
	doc.Rvn = rvn
	doc.CommandRevision = rvn
	if err := repo.SaveProfile(context.Background(), doc); err != nil {
		t.Fatalf("seed %s/%s: %v", accountID, profileID, err)
	}
}

func TestSessionCommitAdvancesRevisionOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seedProfile(t, repo, "acct-1", model.ProfileInventory, 5)

	sess, err := Begin(ctx, repo, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	p := sess.Primary()
	p.AddItem("item-1", &model.Item{TemplateID: "pickaxe_basic", Quantity: 1})
	p.SetStat("level", 2)

	resp, err := sess.Commit(ctx, 5)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Two journal entries, one command: the revision pair moves by exactly one.
	if resp.ProfileRevision != 6 || resp.ProfileCommandRevision != 6 {
		t.Fatalf("expected revisions 6/6, got %d/%d", resp.ProfileRevision, resp.ProfileCommandRevision)
	}
	if resp.ProfileChangesBaseRevision != 5 {
		t.Fatalf("expected base revision 5, got %d", resp.ProfileChangesBaseRevision)
	}
	if len(resp.ProfileChanges) != 2 {
		t.Fatalf("expected 2 changes, got %+v", resp.ProfileChanges)
	}
	if resp.ProfileChanges[0].ChangeType != model.ChangeItemAdded {
		t.Fatalf("changes out of order: %+v", resp.ProfileChanges)
	}

	stored, err := repo.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if stored.Rvn != 6 || stored.CommandRevision != 6 {
		t.Fatalf("stored revisions %d/%d, want 6/6", stored.Rvn, stored.CommandRevision)
	}
	if _, ok := stored.Items["item-1"]; !ok {
		t.Fatal("persisted document is missing the added item")
	}
}

func TestSessionNoOpCommitDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seedProfile(t, repo, "acct-1", model.ProfileInventory, 5)
	stored, _ := repo.GetProfile(ctx, "acct-1", model.ProfileInventory)
	seededUpdated := stored.Updated

	sess, err := Begin(ctx, repo, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	resp, err := sess.Commit(ctx, 5)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if resp.ProfileRevision != 5 || resp.ProfileCommandRevision != 5 {
		t.Fatalf("no-op advanced revisions to %d/%d", resp.ProfileRevision, resp.ProfileCommandRevision)
	}

	stored, err = repo.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if stored.Rvn != 5 {
		t.Fatalf("no-op persisted a revision change: %d", stored.Rvn)
	}
	if !stored.Updated.Equal(seededUpdated) {
		t.Fatal("no-op rewrote the stored document")
	}
}

func TestSessionBeginMissingProfile(t *testing.T) {
	repo := repository.NewMemoryProfileRepository()

	_, err := Begin(context.Background(), repo, "acct-1", model.ProfileInventory)
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestSessionSecondaryRevisionsIndependent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seedProfile(t, repo, "acct-1", model.ProfileWallet, 2)
	seedProfile(t, repo, "acct-1", model.ProfileInventory, 9)

	sess, err := Begin(ctx, repo, "acct-1", model.ProfileWallet)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	inventory, err := sess.Open(ctx, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sess.Primary().SetStat("spent", 100)
	inventory.AddItem("item-1", &model.Item{TemplateID: "glider_rare", Quantity: 1})

	resp, err := sess.Commit(ctx, 2)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if resp.ProfileID != model.ProfileWallet || resp.ProfileRevision != 3 {
		t.Fatalf("primary should be wallet at revision 3, got %s/%d", resp.ProfileID, resp.ProfileRevision)
	}
	if len(resp.MultiUpdate) != 1 {
		t.Fatalf("expected 1 multiUpdate entry, got %+v", resp.MultiUpdate)
	}
	mu := resp.MultiUpdate[0]
	if mu.ProfileID != model.ProfileInventory || mu.ProfileRevision != 10 {
		t.Fatalf("secondary should be inventory at revision 10, got %s/%d", mu.ProfileID, mu.ProfileRevision)
	}
	if mu.ProfileChangesBaseRevision != 9 {
		t.Fatalf("secondary base revision %d, want 9", mu.ProfileChangesBaseRevision)
	}
	if len(mu.ProfileChanges) != 1 || mu.ProfileChanges[0].ChangeType != model.ChangeItemAdded {
		t.Fatalf("unexpected secondary changes: %+v", mu.ProfileChanges)
	}
}

func TestSessionUntouchedSecondaryStaysOut(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seedProfile(t, repo, "acct-1", model.ProfileWallet, 2)
	seedProfile(t, repo, "acct-1", model.ProfileInventory, 9)

	sess, err := Begin(ctx, repo, "acct-1", model.ProfileWallet)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := sess.Open(ctx, "acct-1", model.ProfileInventory); err != nil {
		t.Fatalf("Open: %v", err)
	}

	sess.Primary().SetStat("spent", 100)

	resp, err := sess.Commit(ctx, 2)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(resp.MultiUpdate) != 0 {
		t.Fatalf("untouched secondary leaked into multiUpdate: %+v", resp.MultiUpdate)
	}

	stored, _ := repo.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if stored.Rvn != 9 {
		t.Fatalf("untouched secondary was advanced to %d", stored.Rvn)
	}
}

func TestSessionPersistenceFailureLeavesNothingCommitted(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryProfileRepository()
	seedProfile(t, mem, "acct-1", model.ProfileInventory, 5)
	repo := &failingSaveRepo{ProfileRepository: mem, failProfile: model.ProfileInventory}

	sess, err := Begin(ctx, repo, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	sess.Primary().SetStat("level", 3)

	_, err = sess.Commit(ctx, 5)
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected the cause to unwrap, got %v", err)
	}

	stored, _ := mem.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if stored.Rvn != 5 {
		t.Fatalf("failed save leaked a revision advance: %d", stored.Rvn)
	}
	if sess.Primary().Document().Rvn != 5 {
		t.Fatalf("in-memory handle claims unpersisted revision %d", sess.Primary().Document().Rvn)
	}
}

func TestSessionPartialFailureKeepsCommittedDurable(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryProfileRepository()
	seedProfile(t, mem, "acct-1", model.ProfileWallet, 2)
	seedProfile(t, mem, "acct-1", model.ProfileInventory, 9)
	repo := &failingSaveRepo{ProfileRepository: mem, failProfile: model.ProfileInventory}

	sess, err := Begin(ctx, repo, "acct-1", model.ProfileWallet)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	inventory, err := sess.Open(ctx, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sess.Primary().SetStat("spent", 100)
	inventory.AddItem("item-1", &model.Item{TemplateID: "glider_rare", Quantity: 1})

	_, err = sess.Commit(ctx, 2)
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if len(pf.Committed) != 1 || pf.Committed[0].ProfileID != model.ProfileWallet {
		t.Fatalf("unexpected committed set: %+v", pf.Committed)
	}
	if pf.Failed.ProfileID != model.ProfileInventory {
		t.Fatalf("unexpected failed ref: %+v", pf.Failed)
	}

	// The wallet save already happened and is not rolled back.
	wallet, _ := mem.GetProfile(ctx, "acct-1", model.ProfileWallet)
	if wallet.Rvn != 3 {
		t.Fatalf("committed wallet revision %d, want 3", wallet.Rvn)
	}
	if wallet.Stats.Attributes["spent"] == nil {
		t.Fatal("committed wallet lost its stat write")
	}

	inv, _ := mem.GetProfile(ctx, "acct-1", model.ProfileInventory)
	if inv.Rvn != 9 {
		t.Fatalf("failed inventory revision %d, want 9", inv.Rvn)
	}
}

func TestProfileItemHelpers(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	seedProfile(t, repo, "acct-1", model.ProfileInventory, 0)

	sess, err := Begin(ctx, repo, "acct-1", model.ProfileInventory)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	p := sess.Primary()

	var nf *ItemNotFoundError
	if err := p.RemoveItem("ghost"); !errors.As(err, &nf) {
		t.Fatalf("expected ItemNotFoundError, got %v", err)
	}
	if err := p.SetItemQuantity("ghost", 2); !errors.As(err, &nf) {
		t.Fatalf("expected ItemNotFoundError, got %v", err)
	}
	if err := p.SetItemAttribute("ghost", "favorite", true); !errors.As(err, &nf) {
		t.Fatalf("expected ItemNotFoundError, got %v", err)
	}

	p.AddItem("item-1", &model.Item{TemplateID: "pickaxe_basic", Quantity: 3})
	if err := p.SetItemQuantity("item-1", 0); err != nil {
		t.Fatalf("SetItemQuantity: %v", err)
	}
	// Quantity zero keeps the item; removal is always an explicit record.
	if _, err := p.Item("item-1"); err != nil {
		t.Fatalf("zero quantity removed the item: %v", err)
	}

	id, item := p.FindItemByTemplate("pickaxe_basic")
	if id != "item-1" || item == nil {
		t.Fatalf("FindItemByTemplate returned %q/%v", id, item)
	}
	if id, item := p.FindItemByTemplate("missing"); id != "" || item != nil {
		t.Fatalf("expected empty result, got %q/%v", id, item)
	}
}
