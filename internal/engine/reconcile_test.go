package engine

import (
	"testing"
	"time"

	"profilehub-api/internal/model"
)

func docAtRevision(rvn int64) *model.ProfileDocument {
	doc := model.NewProfileDocument("acct-1", model.ProfileInventory)
	doc.Rvn = rvn
	doc.CommandRevision = rvn
	return doc
}

func TestReconcileDeltaWhenClientOneBehind(t *testing.T) {
	doc := docAtRevision(6)
	changes := []model.ChangeRecord{model.StatModified("level", 10)}

	shaped, base := reconcile(5, doc, changes)
	if base != 5 {
		t.Fatalf("expected base revision 5, got %d", base)
	}
	if len(shaped) != 1 || shaped[0].ChangeType != model.ChangeStatModified {
		t.Fatalf("expected the delta to pass through, got %+v", shaped)
	}
}

func TestReconcileDeltaWhenCommandMutated(t *testing.T) {
	// A stale client that triggered a real mutation still gets the delta
	// rather than a forced resync.
	doc := docAtRevision(6)
	changes := []model.ChangeRecord{model.ItemRemoved("item-a")}

	shaped, base := reconcile(2, doc, changes)
	if base != 5 {
		t.Fatalf("expected base revision 5, got %d", base)
	}
	if len(shaped) != 1 || shaped[0].ChangeType != model.ChangeItemRemoved {
		t.Fatalf("expected the delta to pass through, got %+v", shaped)
	}
}

func TestReconcileFullUpdateForStaleClient(t *testing.T) {
	doc := docAtRevision(6)

	shaped, base := reconcile(3, doc, nil)
	if base != 3 {
		t.Fatalf("full update must echo the client's base revision, got %d", base)
	}
	if len(shaped) != 1 || shaped[0].ChangeType != model.ChangeFullProfileUpdate {
		t.Fatalf("expected a single fullProfileUpdate, got %+v", shaped)
	}
	if shaped[0].Profile == nil || shaped[0].Profile.Rvn != 6 {
		t.Fatalf("full update must carry the authoritative document, got %+v", shaped[0].Profile)
	}
}

func TestQueryResponseDoesNotAdvanceRevision(t *testing.T) {
	doc := docAtRevision(6)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	resp := QueryResponse(doc, ClientRevisionUnknown, now)
	if doc.Rvn != 6 || doc.CommandRevision != 6 {
		t.Fatalf("query advanced the revision pair: rvn=%d commandRevision=%d", doc.Rvn, doc.CommandRevision)
	}
	if resp.ProfileRevision != 6 || resp.ProfileCommandRevision != 6 {
		t.Fatalf("unexpected response revisions: %+v", resp)
	}
	if resp.ProfileChangesBaseRevision != ClientRevisionUnknown {
		t.Fatalf("expected base revision %d, got %d", ClientRevisionUnknown, resp.ProfileChangesBaseRevision)
	}
	if len(resp.ProfileChanges) != 1 || resp.ProfileChanges[0].ChangeType != model.ChangeFullProfileUpdate {
		t.Fatalf("unknown-revision client should get a full snapshot, got %+v", resp.ProfileChanges)
	}
	if !resp.ServerTime.Equal(now) {
		t.Fatalf("expected server time %v, got %v", now, resp.ServerTime)
	}
}

func TestQueryResponseEmptyDeltaWhenInSync(t *testing.T) {
	doc := docAtRevision(6)

	resp := QueryResponse(doc, 5, time.Now())
	if len(resp.ProfileChanges) != 0 {
		t.Fatalf("expected an empty delta, got %+v", resp.ProfileChanges)
	}
	if resp.ProfileChanges == nil {
		t.Fatal("profileChanges must marshal as an empty array, not null")
	}
	if resp.ProfileChangesBaseRevision != 5 {
		t.Fatalf("expected base revision 5, got %d", resp.ProfileChangesBaseRevision)
	}
}

func TestQueryResponseIsRepeatable(t *testing.T) {
	doc := docAtRevision(4)
	now := time.Now()

	first := QueryResponse(doc, 1, now)
	second := QueryResponse(doc, 1, now)
	if first.ProfileRevision != second.ProfileRevision ||
		first.ProfileChangesBaseRevision != second.ProfileChangesBaseRevision ||
		len(first.ProfileChanges) != len(second.ProfileChanges) {
		t.Fatalf("repeated queries diverged: %+v vs %+v", first, second)
	}
}
