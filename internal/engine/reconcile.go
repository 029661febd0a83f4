package engine

import (
	"time"

	"profilehub-api/internal/model"
)

// ClientRevisionUnknown is the client-declared revision meaning "first call
// or no cached state".
const ClientRevisionUnknown = -1

// reconcile decides whether a response carries the incremental change list
// or a single full-snapshot record, given the client's last-known revision
// and the post-command document.
//
// The delta path is taken when the client was exactly one command behind,
// or when the command produced any changes at all. A stale client that
// triggered a real mutation still gets the delta: smaller payloads win over
// forcing a resync, at the cost of possible client-side divergence until
// the next empty-journal call. That trade is a compatibility-bound policy,
// not an accident.
//
// The full-update path echoes the client's claimed base revision, since the
// server is not asserting a delta from it.
func reconcile(clientRevision int64, doc *model.ProfileDocument, changes []model.ChangeRecord) (shaped []model.ChangeRecord, baseRevision int64) {
	authoritative := doc.Rvn
	if clientRevision == authoritative-1 || len(changes) > 0 {
		if changes == nil {
			changes = []model.ChangeRecord{}
		}
		return changes, authoritative - 1
	}
	return []model.ChangeRecord{model.FullProfileUpdate(doc)}, clientRevision
}

// QueryResponse shapes a read-only response for a profile document. Used by
// the query path, which never mutates and therefore never advances the
// revision pair: a stale client gets a full snapshot, an in-sync client an
// empty delta. Calling it twice with the same inputs yields the same shape.
func QueryResponse(doc *model.ProfileDocument, clientRevision int64, now time.Time) *model.CommandResponse {
	changes, base := reconcile(clientRevision, doc, nil)
	return &model.CommandResponse{
		ProfileRevision:            doc.Rvn,
		ProfileID:                  doc.ProfileID,
		ProfileChangesBaseRevision: base,
		ProfileChanges:             changes,
		ProfileCommandRevision:     doc.CommandRevision,
		ServerTime:                 now.UTC(),
		ResponseVersion:            model.ResponseVersion,
	}
}
